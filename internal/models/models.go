package models

import (
	"time"
)

// Granularity selects the period scale of an aggregation run
type Granularity string

const (
	GranularityDay   Granularity = "day"
	GranularityMonth Granularity = "month"
	GranularityYear  Granularity = "year"
)

// Valid reports whether g is one of the three supported granularities
func (g Granularity) Valid() bool {
	switch g {
	case GranularityDay, GranularityMonth, GranularityYear:
		return true
	}
	return false
}

// Period is the Time-of-Use tariff period of a bucket or summary row
type Period string

const (
	PeriodOnPeak  Period = "onpeak"
	PeriodOffPeak Period = "offpeak"
)

// HolidayCategory classifies a holiday record from the external calendar source
type HolidayCategory string

const (
	HolidayPublic     HolidayCategory = "public"
	HolidayBank       HolidayCategory = "bank"
	HolidayObservance HolidayCategory = "observance"
)

// Reading represents a single raw meter reading with its per-metric values.
// Values holds only the metric columns that decoded to a number; a metric
// absent from the map was missing or non-numeric at the source.
type Reading struct {
	Timestamp time.Time          `json:"timestamp"`
	MeterID   string             `json:"meterId"`
	Values    map[string]float64 `json:"values"`
}

// Holiday represents one entry of the yearly holiday table.
// Only the calendar date matters for classification; Date carries
// midnight in the aggregation timezone.
type Holiday struct {
	Date     time.Time       `json:"date"`
	Name     string          `json:"name"`
	Category HolidayCategory `json:"category"`
}

// Bucket is one fixed slot of the aggregation axis.
// WindowStart/WindowEnd are minutes-of-day for the day granularity and the
// day-of-month or month index for the other two.
type Bucket struct {
	Key         int     `json:"key"`
	AxisValue   float64 `json:"axisValue"`
	Label       string  `json:"label"`
	WindowStart int     `json:"windowStart"`
	WindowEnd   int     `json:"windowEnd"`
}

// ClassifiedBucket is a Bucket with its resolved tariff period
type ClassifiedBucket struct {
	Bucket
	OnPeak bool `json:"onPeak"`
}

// AggregateRecord is the reduced value for one (bucket, meter, metric) triple
type AggregateRecord struct {
	BucketKey int     `json:"bucketKey"`
	MeterID   string  `json:"meterId"`
	Metric    string  `json:"metric"`
	Value     float64 `json:"value"`
}

// SummaryEntry is one of the two per-meter TOU totals
type SummaryEntry struct {
	MeterID string  `json:"meterId"`
	Period  Period  `json:"period"`
	Total   float64 `json:"total"`
}

// BucketRow is one time-ordered row of the output series: the classified
// bucket plus every reduced value for it, keyed meter -> metric
type BucketRow struct {
	Key       int                           `json:"key"`
	AxisValue float64                       `json:"axisValue"`
	Label     string                        `json:"label"`
	OnPeak    bool                          `json:"onPeak"`
	Values    map[string]map[string]float64 `json:"values"`
}
