// Package bucket generates the fixed aggregation axis for each granularity
// and assigns reading timestamps to axis slots. Buckets are always generated
// exhaustively up front; data presence never changes the shape of the axis.
package bucket

import (
	"fmt"
	"time"

	"github.com/smartgrid-analytics/tou-aggregator/internal/models"
)

const (
	// DayStartHour is the tariff day boundary: the day-view axis runs from
	// 09:00 to 08:59 the next calendar day.
	DayStartHour = 9

	// DayBucketCount covers every hour of the wrapped tariff day: hours
	// 09..23 of the reference date followed by wrapped hours 00..08 of the
	// next morning.
	DayBucketCount = 24

	// MonthBucketCount is fixed at days 1..30 regardless of the actual
	// length of the displayed month. Day 31 of longer months is dropped by
	// construction.
	MonthBucketCount = 30

	// YearBucketCount is one bucket per calendar month.
	YearBucketCount = 12
)

// Generate returns the complete ordered bucket axis for a granularity.
// Day buckets carry minute-of-day windows; month and year buckets carry
// their index in both window fields.
func Generate(g models.Granularity) []models.Bucket {
	switch g {
	case models.GranularityDay:
		buckets := make([]models.Bucket, 0, DayBucketCount)
		for i := 0; i < DayBucketCount; i++ {
			hour := (DayStartHour + i) % 24
			buckets = append(buckets, models.Bucket{
				Key:         hour,
				AxisValue:   wrapHour(hour),
				Label:       fmt.Sprintf("%02d:00", hour),
				WindowStart: hour * 60,
				WindowEnd:   (hour + 1) * 60,
			})
		}
		return buckets
	case models.GranularityMonth:
		buckets := make([]models.Bucket, 0, MonthBucketCount)
		for day := 1; day <= MonthBucketCount; day++ {
			buckets = append(buckets, models.Bucket{
				Key:         day,
				AxisValue:   float64(day),
				Label:       fmt.Sprintf("%02d", day),
				WindowStart: day,
				WindowEnd:   day,
			})
		}
		return buckets
	case models.GranularityYear:
		buckets := make([]models.Bucket, 0, YearBucketCount)
		for m := 1; m <= YearBucketCount; m++ {
			buckets = append(buckets, models.Bucket{
				Key:         m,
				AxisValue:   float64(m),
				Label:       time.Month(m).String()[:3],
				WindowStart: m,
				WindowEnd:   m,
			})
		}
		return buckets
	}
	return nil
}

// Assign maps a timestamp to its bucket key for the granularity. The second
// return value is false when the timestamp has no bucket, which only happens
// for day-of-month 31 at month granularity.
func Assign(t time.Time, g models.Granularity) (int, bool) {
	switch g {
	case models.GranularityDay:
		return t.Hour(), true
	case models.GranularityMonth:
		day := t.Day()
		if day > MonthBucketCount {
			return 0, false
		}
		return day, true
	case models.GranularityYear:
		return int(t.Month()), true
	}
	return 0, false
}

// AxisValue returns the continuous sortable axis position of a timestamp on
// the wrapped day axis: hours 9..23 keep their natural value, midnight and
// the following morning are offset by 24, so 01:00 maps to 25.0 and 08:45
// to 32.75.
func AxisValue(t time.Time) float64 {
	h := float64(t.Hour()) + float64(t.Minute())/60
	if t.Hour() < DayStartHour {
		h += 24
	}
	return h
}

// wrapHour encodes a bucket hour on the monotonic day axis
func wrapHour(hour int) float64 {
	if hour < DayStartHour {
		return float64(hour + 24)
	}
	return float64(hour)
}
