// Package tou composes the calendar classifier, time bucketer and metric
// reducers into per-bucket, per-meter aggregate series and On-Peak/Off-Peak
// summary totals. A run is a stateless single-pass transform: it reads an
// immutable reading snapshot and produces fresh output values.
package tou

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/smartgrid-analytics/tou-aggregator/internal/bucket"
	"github.com/smartgrid-analytics/tou-aggregator/internal/calendar"
	"github.com/smartgrid-analytics/tou-aggregator/internal/models"
	"github.com/smartgrid-analytics/tou-aggregator/internal/reduce"
	"github.com/smartgrid-analytics/tou-aggregator/internal/store"
)

// ErrMissingReferenceDate is returned for a day-granularity run without a
// reference date. This is a caller contract violation, not a data condition.
var ErrMissingReferenceDate = errors.New("tou: day granularity requires a reference date")

// Request describes one aggregation run
type Request struct {
	Granularity models.Granularity
	Meters      []string
	Metrics     []string

	// ReferenceDate anchors the wrapped 09:00-08:59 axis. Required for day
	// granularity, ignored otherwise.
	ReferenceDate time.Time

	// Year and Month select the displayed period for month and year
	// granularity.
	Year  int
	Month time.Month

	// Strict treats missing metric values as absent instead of coercing
	// them to 0 inside the reducers.
	Strict bool
}

// Result is the full output of one run: the chart-ready rows, the flat
// record list and the two-per-meter TOU summary
type Result struct {
	Granularity models.Granularity
	Buckets     []models.ClassifiedBucket
	Rows        []models.BucketRow
	Records     []models.AggregateRecord
	Summary     []models.SummaryEntry
}

// Aggregator runs TOU aggregations. The classifier carries the injected
// timezone and holiday set; the selector maps metrics to their reducer.
type Aggregator struct {
	classifier *calendar.Classifier
	selector   *reduce.Selector
	workers    int
}

// New creates an aggregator. workers bounds the per-(bucket, meter, metric)
// reduction pool; values below 1 run the reductions inline.
func New(classifier *calendar.Classifier, selector *reduce.Selector, workers int) *Aggregator {
	return &Aggregator{classifier: classifier, selector: selector, workers: workers}
}

// Window returns the half-open reading window [from, to) implied by the
// request, in the classifier's timezone. The day window starts at 09:00 of
// the reference date and ends at 09:00 the next calendar day.
func (a *Aggregator) Window(req Request) (time.Time, time.Time, error) {
	loc := a.classifier.Location()
	switch req.Granularity {
	case models.GranularityDay:
		if req.ReferenceDate.IsZero() {
			return time.Time{}, time.Time{}, ErrMissingReferenceDate
		}
		d := req.ReferenceDate.In(loc)
		from := time.Date(d.Year(), d.Month(), d.Day(), bucket.DayStartHour, 0, 0, 0, loc)
		return from, from.AddDate(0, 0, 1), nil
	case models.GranularityMonth:
		if req.Year == 0 || req.Month < time.January || req.Month > time.December {
			return time.Time{}, time.Time{}, fmt.Errorf("tou: month granularity requires year and month, got year=%d month=%d", req.Year, req.Month)
		}
		from := time.Date(req.Year, req.Month, 1, 0, 0, 0, 0, loc)
		return from, from.AddDate(0, 1, 0), nil
	case models.GranularityYear:
		if req.Year == 0 {
			return time.Time{}, time.Time{}, fmt.Errorf("tou: year granularity requires a year")
		}
		from := time.Date(req.Year, time.January, 1, 0, 0, 0, 0, loc)
		return from, from.AddDate(1, 0, 0), nil
	}
	return time.Time{}, time.Time{}, fmt.Errorf("tou: unknown granularity %q", req.Granularity)
}

// Run executes one aggregation over the given reading snapshot. Absence of
// readings is not an error: the result keeps its full shape with zero
// values. Only structurally invalid requests fail.
func (a *Aggregator) Run(readings []models.Reading, req Request) (*Result, error) {
	from, to, err := a.Window(req)
	if err != nil {
		return nil, err
	}

	meters := dedupe(req.Meters)
	metrics := dedupe(req.Metrics)
	buckets := bucket.Generate(req.Granularity)
	classified := a.classify(buckets, req)

	// Group the snapshot by normalized meter once; each reduction job then
	// scans only its own meter's readings.
	byMeter := make(map[string][]models.Reading, len(meters))
	for _, r := range readings {
		if r.Timestamp.Before(from) || !r.Timestamp.Before(to) {
			continue
		}
		id := store.NormalizeMeterID(r.MeterID)
		byMeter[id] = append(byMeter[id], r)
	}

	records := a.reduceAll(classified, meters, metrics, byMeter, req)

	res := &Result{
		Granularity: req.Granularity,
		Buckets:     classified,
		Records:     records,
		Rows:        buildRows(classified, meters, metrics, records),
		Summary:     buildSummary(classified, meters, records),
	}
	return res, nil
}

// classify resolves each bucket's tariff period. Day buckets classify
// against the single reference date; month buckets against their own
// implied date; year buckets are uniformly on-peak.
func (a *Aggregator) classify(buckets []models.Bucket, req Request) []models.ClassifiedBucket {
	out := make([]models.ClassifiedBucket, len(buckets))
	for i, b := range buckets {
		var period models.Period
		switch req.Granularity {
		case models.GranularityDay:
			period = a.classifier.ClassifyDayView(req.ReferenceDate, b.WindowStart)
		case models.GranularityMonth:
			period = a.classifier.ClassifyMonthView(req.Year, req.Month, b.Key)
		default:
			period = a.classifier.ClassifyYearView(time.Month(b.Key))
		}
		out[i] = models.ClassifiedBucket{Bucket: b, OnPeak: period == models.PeriodOnPeak}
	}
	return out
}

// reduceAll produces exactly one record per (bucket, meter, metric) triple.
// The units of work are independent, so they are spread across a bounded
// worker pool; each worker writes into its own slot of the preallocated
// result slice, keeping the output deterministic for any worker count.
func (a *Aggregator) reduceAll(buckets []models.ClassifiedBucket, meters, metrics []string, byMeter map[string][]models.Reading, req Request) []models.AggregateRecord {
	total := len(buckets) * len(meters) * len(metrics)
	records := make([]models.AggregateRecord, total)
	if total == 0 {
		return records
	}

	job := func(idx int) {
		bi := idx / (len(meters) * len(metrics))
		rem := idx % (len(meters) * len(metrics))
		mi := rem / len(metrics)
		ki := rem % len(metrics)

		b := buckets[bi]
		meter := meters[mi]
		metric := metrics[ki]

		samples := collectSamples(byMeter[store.NormalizeMeterID(meter)], b.Bucket, metric, req.Granularity)
		records[idx] = models.AggregateRecord{
			BucketKey: b.Key,
			MeterID:   meter,
			Metric:    metric,
			Value:     reduce.Apply(a.selector.KindOf(metric), samples, req.Strict),
		}
	}

	if a.workers <= 1 {
		for i := 0; i < total; i++ {
			job(i)
		}
		return records
	}

	jobs := make(chan int, total)
	var wg sync.WaitGroup
	wg.Add(a.workers)
	for w := 0; w < a.workers; w++ {
		go func() {
			defer wg.Done()
			for idx := range jobs {
				job(idx)
			}
		}()
	}
	for i := 0; i < total; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return records
}

// collectSamples gathers every matching reading of one meter for one bucket.
// A reading that matches the bucket but lacks the metric contributes a
// missing sample, so the compat/strict policy is decided by the reducer.
func collectSamples(readings []models.Reading, b models.Bucket, metric string, g models.Granularity) []reduce.Sample {
	var samples []reduce.Sample
	for _, r := range readings {
		if !inBucket(r.Timestamp, b, g) {
			continue
		}
		v, ok := r.Values[metric]
		samples = append(samples, reduce.Sample{Timestamp: r.Timestamp, Value: v, Missing: !ok})
	}
	return samples
}

// inBucket tests bucket membership: minutes-of-day for day granularity
// (non-wrapped), day-of-month or month index otherwise
func inBucket(ts time.Time, b models.Bucket, g models.Granularity) bool {
	switch g {
	case models.GranularityDay:
		minute := ts.Hour()*60 + ts.Minute()
		return minute >= b.WindowStart && minute < b.WindowEnd
	case models.GranularityMonth:
		return ts.Day() == b.Key
	case models.GranularityYear:
		return int(ts.Month()) == b.Key
	}
	return false
}

// buildRows folds the flat record list into time-ordered chart rows with
// nested meter -> metric value maps
func buildRows(buckets []models.ClassifiedBucket, meters, metrics []string, records []models.AggregateRecord) []models.BucketRow {
	rows := make([]models.BucketRow, len(buckets))
	stride := len(meters) * len(metrics)
	for bi, b := range buckets {
		values := make(map[string]map[string]float64, len(meters))
		for mi, meter := range meters {
			perMetric := make(map[string]float64, len(metrics))
			for ki, metric := range metrics {
				perMetric[metric] = records[bi*stride+mi*len(metrics)+ki].Value
			}
			values[meter] = perMetric
		}
		rows[bi] = models.BucketRow{
			Key:       b.Key,
			AxisValue: b.AxisValue,
			Label:     b.Label,
			OnPeak:    b.OnPeak,
			Values:    values,
		}
	}
	return rows
}

// buildSummary folds every record into two running totals per meter and
// emits exactly two entries per meter, on-peak first, even when a total is
// zero
func buildSummary(buckets []models.ClassifiedBucket, meters []string, records []models.AggregateRecord) []models.SummaryEntry {
	onPeakByKey := make(map[int]bool, len(buckets))
	for _, b := range buckets {
		onPeakByKey[b.Key] = b.OnPeak
	}

	onPeak := make(map[string]float64, len(meters))
	offPeak := make(map[string]float64, len(meters))
	for _, rec := range records {
		if onPeakByKey[rec.BucketKey] {
			onPeak[rec.MeterID] += rec.Value
		} else {
			offPeak[rec.MeterID] += rec.Value
		}
	}

	summary := make([]models.SummaryEntry, 0, 2*len(meters))
	for _, meter := range meters {
		summary = append(summary,
			models.SummaryEntry{MeterID: meter, Period: models.PeriodOnPeak, Total: onPeak[meter]},
			models.SummaryEntry{MeterID: meter, Period: models.PeriodOffPeak, Total: offPeak[meter]},
		)
	}
	return summary
}

// dedupe removes duplicates while preserving first-seen order
func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
