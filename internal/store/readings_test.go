package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartgrid-analytics/tou-aggregator/internal/models"
)

func reading(ts time.Time, meter string, kwh float64) models.Reading {
	return models.Reading{
		Timestamp: ts,
		MeterID:   meter,
		Values:    map[string]float64{"ImportKWh": kwh},
	}
}

func TestNormalizeMeterID(t *testing.T) {
	assert.Equal(t, "7", NormalizeMeterID("007"))
	assert.Equal(t, "7", NormalizeMeterID(" 7 "))
	assert.Equal(t, "M1", NormalizeMeterID(" M1"))
	assert.Equal(t, "M1", NormalizeMeterID("M1"))
}

func TestQuery_WindowIsHalfOpen(t *testing.T) {
	s := NewReadingStore()
	base := time.Date(2026, 9, 2, 9, 0, 0, 0, time.UTC)
	s.Append([]models.Reading{
		reading(base.Add(-time.Minute), "M1", 1),
		reading(base, "M1", 2),
		reading(base.Add(time.Hour), "M1", 3),
		reading(base.Add(2*time.Hour), "M1", 4),
	})

	out := s.Query(base, base.Add(2*time.Hour), []string{"M1"})
	require.Len(t, out, 2)
	assert.Equal(t, 2.0, out[0].Values["ImportKWh"])
	assert.Equal(t, 3.0, out[1].Values["ImportKWh"])
}

func TestQuery_MeterFilterNormalized(t *testing.T) {
	s := NewReadingStore()
	base := time.Date(2026, 9, 2, 9, 0, 0, 0, time.UTC)
	s.Append([]models.Reading{
		reading(base, "007", 1),
		reading(base, "M2", 2),
	})

	out := s.Query(base, base.Add(time.Hour), []string{"7"})
	require.Len(t, out, 1)
	assert.Equal(t, "007", out[0].MeterID)
}

func TestQuery_EmptyMeterSelection(t *testing.T) {
	s := NewReadingStore()
	base := time.Date(2026, 9, 2, 9, 0, 0, 0, time.UTC)
	s.Append([]models.Reading{reading(base, "M1", 1)})

	assert.Empty(t, s.Query(base, base.Add(time.Hour), nil))
}

func TestQuery_SortedByTimestamp(t *testing.T) {
	s := NewReadingStore()
	base := time.Date(2026, 9, 2, 9, 0, 0, 0, time.UTC)
	s.Append([]models.Reading{
		reading(base.Add(30*time.Minute), "M1", 2),
		reading(base, "M1", 1),
		reading(base.Add(45*time.Minute), "M1", 3),
	})

	out := s.Query(base, base.Add(time.Hour), []string{"M1"})
	require.Len(t, out, 3)
	assert.True(t, out[0].Timestamp.Before(out[1].Timestamp))
	assert.True(t, out[1].Timestamp.Before(out[2].Timestamp))
}

func TestQuery_ReturnsCopy(t *testing.T) {
	s := NewReadingStore()
	base := time.Date(2026, 9, 2, 9, 0, 0, 0, time.UTC)
	s.Append([]models.Reading{reading(base, "M1", 1)})

	out := s.Query(base, base.Add(time.Hour), []string{"M1"})
	require.Len(t, out, 1)
	out[0].MeterID = "mutated"

	again := s.Query(base, base.Add(time.Hour), []string{"M1"})
	require.Len(t, again, 1)
	assert.Equal(t, "M1", again[0].MeterID)
}

func TestPrune(t *testing.T) {
	s := NewReadingStore()
	base := time.Date(2026, 9, 2, 9, 0, 0, 0, time.UTC)
	s.Append([]models.Reading{
		reading(base.Add(-48*time.Hour), "M1", 1),
		reading(base, "M1", 2),
	})

	removed := s.Prune(base.Add(-24 * time.Hour))
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, s.Len())
}
