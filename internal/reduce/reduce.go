// Package reduce collapses the readings that land in one bucket for one
// meter and metric into a single scalar. Two strategies exist: a difference
// reducer for cumulative counters and a max reducer for instantaneous
// metrics.
package reduce

import (
	"strings"
	"time"
)

// Kind selects the reduction strategy for a metric
type Kind int

const (
	// KindInstantaneous metrics (power, reactive power, apparent power)
	// reduce to the maximum observed value.
	KindInstantaneous Kind = iota
	// KindCumulative metrics (imported energy counters) reduce to the
	// clamped difference between the last and first value of the bucket.
	KindCumulative
)

// Sample is one candidate value inside a bucket. Missing marks a reading
// that matched the bucket and meter but carried no usable value for the
// metric; in compat mode it participates as 0, in strict mode it is skipped.
type Sample struct {
	Timestamp time.Time
	Value     float64
	Missing   bool
}

// Selector maps metric names to their reduction strategy. Metrics listed as
// cumulative use the difference reducer; everything else reduces by max.
type Selector struct {
	cumulative map[string]bool
}

// NewSelector builds a selector from the configured cumulative metric names.
// Matching is case-insensitive.
func NewSelector(cumulativeMetrics []string) *Selector {
	s := &Selector{cumulative: make(map[string]bool, len(cumulativeMetrics))}
	for _, m := range cumulativeMetrics {
		m = strings.TrimSpace(m)
		if m != "" {
			s.cumulative[strings.ToLower(m)] = true
		}
	}
	return s
}

// KindOf returns the reduction strategy for a metric name
func (s *Selector) KindOf(metric string) Kind {
	if s != nil && s.cumulative[strings.ToLower(metric)] {
		return KindCumulative
	}
	return KindInstantaneous
}

// Apply runs the strategy for kind over the bucket's samples
func Apply(kind Kind, samples []Sample, strict bool) float64 {
	if kind == KindCumulative {
		return Difference(samples, strict)
	}
	return Max(samples, strict)
}

// Difference reduces a cumulative counter to max(0, last-first), where first
// is the value with the earliest timestamp and last the value with the
// latest. Ties resolve to the most recently seen candidate during the scan
// (the comparisons are <= and >=, not strict). An empty sample set reduces
// to 0.
func Difference(samples []Sample, strict bool) float64 {
	var (
		found           bool
		first, last     float64
		firstTS, lastTS time.Time
	)
	for _, s := range samples {
		v, ok := s.value(strict)
		if !ok {
			continue
		}
		if !found {
			first, firstTS = v, s.Timestamp
			last, lastTS = v, s.Timestamp
			found = true
			continue
		}
		if !s.Timestamp.After(firstTS) {
			first, firstTS = v, s.Timestamp
		}
		if !s.Timestamp.Before(lastTS) {
			last, lastTS = v, s.Timestamp
		}
	}
	if !found {
		return 0
	}
	diff := last - first
	if diff < 0 {
		return 0
	}
	return diff
}

// Max reduces an instantaneous metric to the maximum observed value, 0 when
// no sample qualifies
func Max(samples []Sample, strict bool) float64 {
	var (
		found bool
		max   float64
	)
	for _, s := range samples {
		v, ok := s.value(strict)
		if !ok {
			continue
		}
		if !found || v > max {
			max = v
			found = true
		}
	}
	if !found {
		return 0
	}
	return max
}

// value resolves a sample under the active missing-value policy
func (s Sample) value(strict bool) (float64, bool) {
	if s.Missing {
		if strict {
			return 0, false
		}
		return 0, true
	}
	return s.Value, true
}
