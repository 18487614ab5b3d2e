package calendar

import (
	"time"

	"github.com/smartgrid-analytics/tou-aggregator/internal/models"
)

// On-peak window for working days: 09:00 inclusive to 22:00 exclusive,
// expressed in minutes of day
const (
	onPeakStartMinute = 9 * 60
	onPeakEndMinute   = 22 * 60
)

// DateClass is the whole-date classification exposed for calendar/legend
// rendering: a date is either non-working (weekend or holiday, off-peak all
// day) or a working date whose tariff period depends on the time of day.
type DateClass string

const (
	DateOnPeak     DateClass = "onpeak"
	DateOffPeak    DateClass = "offpeak"
	DateNonWorking DateClass = "nonworking"
)

// HolidaySet is an immutable exact-date lookup built once per aggregation
// run. Lookups are safe for unsynchronized concurrent use.
type HolidaySet struct {
	loc   *time.Location
	dates map[string]models.Holiday
}

// NewHolidaySet normalizes each holiday to its calendar date in loc.
// Time-of-day and category are ignored for matching; only exact date
// equality counts.
func NewHolidaySet(holidays []models.Holiday, loc *time.Location) *HolidaySet {
	if loc == nil {
		loc = time.UTC
	}
	s := &HolidaySet{loc: loc, dates: make(map[string]models.Holiday, len(holidays))}
	for _, h := range holidays {
		s.dates[h.Date.In(loc).Format("2006-01-02")] = h
	}
	return s
}

// Contains reports whether the calendar date of t appears in the holiday table
func (s *HolidaySet) Contains(t time.Time) bool {
	if s == nil {
		return false
	}
	_, ok := s.dates[t.In(s.loc).Format("2006-01-02")]
	return ok
}

// Len returns the number of distinct holiday dates in the set
func (s *HolidaySet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.dates)
}

// Classifier decides working-day status and On-Peak/Off-Peak periods.
// The timezone is injected so date math never depends on the runtime's
// local clock or locale.
type Classifier struct {
	loc      *time.Location
	holidays *HolidaySet
}

// NewClassifier creates a classifier for the given timezone and holiday set.
// A nil holiday set falls back to weekend-only logic.
func NewClassifier(loc *time.Location, holidays *HolidaySet) *Classifier {
	if loc == nil {
		loc = time.UTC
	}
	return &Classifier{loc: loc, holidays: holidays}
}

// Location returns the injected timezone
func (c *Classifier) Location() *time.Location {
	return c.loc
}

// IsNonWorkingDay reports whether date is a Saturday, a Sunday, or an exact
// match against the holiday table
func (c *Classifier) IsNonWorkingDay(date time.Time) bool {
	d := date.In(c.loc)
	if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return true
	}
	return c.holidays.Contains(d)
}

// ClassifyDayView resolves the tariff period for a time of day on the given
// date. Non-working days are off-peak for all times; working days are
// on-peak from 09:00 up to but not including 22:00.
func (c *Classifier) ClassifyDayView(date time.Time, minuteOfDay int) models.Period {
	if c.IsNonWorkingDay(date) {
		return models.PeriodOffPeak
	}
	if minuteOfDay >= onPeakStartMinute && minuteOfDay < onPeakEndMinute {
		return models.PeriodOnPeak
	}
	return models.PeriodOffPeak
}

// ClassifyMonthView resolves the tariff period for a whole day of a month.
// Time of day is irrelevant at this granularity: a working day is on-peak,
// a non-working day is off-peak.
func (c *Classifier) ClassifyMonthView(year int, month time.Month, day int) models.Period {
	date := time.Date(year, month, day, 0, 0, 0, 0, c.loc)
	if c.IsNonWorkingDay(date) {
		return models.PeriodOffPeak
	}
	return models.PeriodOnPeak
}

// ClassifyYearView is unconditionally on-peak. A year-granularity bucket
// mixes working and non-working days; the source system treats such buckets
// as uniformly on-peak rather than computing a weighted blend. Known
// simplification, kept as documented behavior.
func (c *Classifier) ClassifyYearView(month time.Month) models.Period {
	return models.PeriodOnPeak
}

// ClassifyDate classifies a whole calendar date for legend rendering.
// When minuteOfDay is negative the date is classified as a whole day:
// non-working, otherwise on-peak. With a minute of day it follows the
// day-view rule, reporting non-working days as such.
func (c *Classifier) ClassifyDate(date time.Time, minuteOfDay int) DateClass {
	if c.IsNonWorkingDay(date) {
		return DateNonWorking
	}
	if minuteOfDay < 0 {
		return DateOnPeak
	}
	if c.ClassifyDayView(date, minuteOfDay) == models.PeriodOnPeak {
		return DateOnPeak
	}
	return DateOffPeak
}
