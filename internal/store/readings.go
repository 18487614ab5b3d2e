// Package store holds the in-memory snapshot of raw readings fed by the
// Kafka consumers. The aggregation core only ever sees immutable copies
// handed out by Query, so a run is never affected by concurrent ingestion.
package store

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/smartgrid-analytics/tou-aggregator/internal/models"
)

// NormalizeMeterID canonicalizes a meter identifier for matching. Sources
// disagree on whether identifiers are numeric or string typed, so numeric
// identifiers compare by value ("007" matches "7") and everything else by
// trimmed string.
func NormalizeMeterID(id string) string {
	id = strings.TrimSpace(id)
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return strconv.FormatInt(n, 10)
	}
	return id
}

// ReadingStore is an append-only buffer of readings with windowed queries
type ReadingStore struct {
	mu       sync.RWMutex
	readings []models.Reading
}

// NewReadingStore creates an empty store
func NewReadingStore() *ReadingStore {
	return &ReadingStore{}
}

// Append adds a batch of readings to the store
func (s *ReadingStore) Append(batch []models.Reading) {
	if len(batch) == 0 {
		return
	}
	s.mu.Lock()
	s.readings = append(s.readings, batch...)
	s.mu.Unlock()
}

// Query returns a copy of every reading with timestamp in [from, to) whose
// meter is in the selection. An empty meter selection matches nothing, which
// mirrors the aggregator's empty-selection contract. The result is sorted by
// timestamp (stable, preserving ingestion order for equal timestamps) so
// repeated runs over the same data are deterministic.
func (s *ReadingStore) Query(from, to time.Time, meters []string) []models.Reading {
	wanted := make(map[string]bool, len(meters))
	for _, m := range meters {
		wanted[NormalizeMeterID(m)] = true
	}

	s.mu.RLock()
	out := make([]models.Reading, 0, len(s.readings)/2)
	for _, r := range s.readings {
		if r.Timestamp.Before(from) || !r.Timestamp.Before(to) {
			continue
		}
		if !wanted[NormalizeMeterID(r.MeterID)] {
			continue
		}
		out = append(out, r)
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// Len returns the number of buffered readings
func (s *ReadingStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.readings)
}

// Prune drops readings older than before and returns how many were removed.
// Called on a schedule to bound memory growth.
func (s *ReadingStore) Prune(before time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.readings[:0]
	for _, r := range s.readings {
		if !r.Timestamp.Before(before) {
			kept = append(kept, r)
		}
	}
	removed := len(s.readings) - len(kept)
	s.readings = kept
	return removed
}
