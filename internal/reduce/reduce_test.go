package reduce

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func at(minute int) time.Time {
	return time.Date(2026, 9, 2, 9, minute, 0, 0, time.UTC)
}

func TestDifference_Basic(t *testing.T) {
	samples := []Sample{
		{Timestamp: at(0), Value: 100},
		{Timestamp: at(45), Value: 140},
	}
	assert.Equal(t, 40.0, Difference(samples, false))
}

func TestDifference_OrderIndependent(t *testing.T) {
	samples := []Sample{
		{Timestamp: at(45), Value: 140},
		{Timestamp: at(15), Value: 110},
		{Timestamp: at(0), Value: 100},
	}
	assert.Equal(t, 40.0, Difference(samples, false))
}

func TestDifference_NegativeClampsToZero(t *testing.T) {
	// Counter reset inside the bucket
	samples := []Sample{
		{Timestamp: at(0), Value: 500},
		{Timestamp: at(30), Value: 12},
	}
	assert.Equal(t, 0.0, Difference(samples, false))
}

func TestDifference_Empty(t *testing.T) {
	assert.Equal(t, 0.0, Difference(nil, false))
}

func TestDifference_SingleSample(t *testing.T) {
	assert.Equal(t, 0.0, Difference([]Sample{{Timestamp: at(0), Value: 77}}, false))
}

func TestDifference_TieBreakMostRecentlySeen(t *testing.T) {
	// Two candidates share the earliest timestamp and two share the latest;
	// the scan resolves both ties to the most recently seen candidate.
	samples := []Sample{
		{Timestamp: at(0), Value: 100},
		{Timestamp: at(0), Value: 90}, // replaces first
		{Timestamp: at(30), Value: 140},
		{Timestamp: at(30), Value: 150}, // replaces last
	}
	assert.Equal(t, 60.0, Difference(samples, false))
}

func TestDifference_CompatMissingBecomesZero(t *testing.T) {
	// A missing value at the end of the bucket becomes an artificial last
	// value of 0, collapsing the difference to the clamp
	samples := []Sample{
		{Timestamp: at(0), Value: 100},
		{Timestamp: at(30), Value: 140},
		{Timestamp: at(45), Missing: true},
	}
	assert.Equal(t, 0.0, Difference(samples, false))
}

func TestDifference_StrictSkipsMissing(t *testing.T) {
	samples := []Sample{
		{Timestamp: at(0), Value: 100},
		{Timestamp: at(30), Value: 140},
		{Timestamp: at(45), Missing: true},
	}
	assert.Equal(t, 40.0, Difference(samples, true))
}

func TestDifference_StrictAllMissing(t *testing.T) {
	samples := []Sample{
		{Timestamp: at(0), Missing: true},
		{Timestamp: at(30), Missing: true},
	}
	assert.Equal(t, 0.0, Difference(samples, true))
}

func TestMax_Basic(t *testing.T) {
	samples := []Sample{
		{Timestamp: at(0), Value: 120},
		{Timestamp: at(10), Value: 95},
		{Timestamp: at(20), Value: 130},
	}
	assert.Equal(t, 130.0, Max(samples, false))
}

func TestMax_Empty(t *testing.T) {
	assert.Equal(t, 0.0, Max(nil, false))
}

func TestMax_NegativeValuesKept(t *testing.T) {
	samples := []Sample{
		{Timestamp: at(0), Value: -42},
		{Timestamp: at(10), Value: -17},
	}
	assert.Equal(t, -17.0, Max(samples, false))
}

func TestMax_CompatMissingParticipatesAsZero(t *testing.T) {
	samples := []Sample{
		{Timestamp: at(0), Value: -42},
		{Timestamp: at(10), Missing: true},
	}
	assert.Equal(t, 0.0, Max(samples, false))
}

func TestMax_StrictSkipsMissing(t *testing.T) {
	samples := []Sample{
		{Timestamp: at(0), Value: -42},
		{Timestamp: at(10), Missing: true},
	}
	assert.Equal(t, -42.0, Max(samples, true))
}

func TestSelector_KindOf(t *testing.T) {
	s := NewSelector([]string{"ImportKWh", " ExportKWh ", ""})

	assert.Equal(t, KindCumulative, s.KindOf("ImportKWh"))
	assert.Equal(t, KindCumulative, s.KindOf("importkwh"))
	assert.Equal(t, KindCumulative, s.KindOf("ExportKWh"))
	assert.Equal(t, KindInstantaneous, s.KindOf("DemandW"))
}

func TestApply_SelectsStrategy(t *testing.T) {
	samples := []Sample{
		{Timestamp: at(0), Value: 100},
		{Timestamp: at(45), Value: 140},
	}
	assert.Equal(t, 40.0, Apply(KindCumulative, samples, false))
	assert.Equal(t, 140.0, Apply(KindInstantaneous, samples, false))
}
