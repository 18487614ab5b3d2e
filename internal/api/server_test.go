package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartgrid-analytics/tou-aggregator/internal/bucket"
	"github.com/smartgrid-analytics/tou-aggregator/internal/config"
	"github.com/smartgrid-analytics/tou-aggregator/internal/models"
	"github.com/smartgrid-analytics/tou-aggregator/internal/store"
)

type staticHolidays struct {
	holidays []models.Holiday
}

func (s *staticHolidays) Year(ctx context.Context, year int) []models.Holiday {
	return s.holidays
}

func testServer(readings []models.Reading, holidays []models.Holiday) *Server {
	readingStore := store.NewReadingStore()
	readingStore.Append(readings)
	return NewServer(readingStore, &staticHolidays{holidays}, nil, config.AggregationConfig{
		Timezone:          time.UTC,
		CumulativeMetrics: []string{"ImportKWh"},
		Workers:           2,
	})
}

func get(t *testing.T, s *Server, url string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestSeries_Day(t *testing.T) {
	readings := []models.Reading{
		{
			Timestamp: time.Date(2026, 9, 2, 9, 0, 0, 0, time.UTC),
			MeterID:   "M1",
			Values:    map[string]float64{"ImportKWh": 100},
		},
		{
			Timestamp: time.Date(2026, 9, 2, 9, 45, 0, 0, time.UTC),
			MeterID:   "M1",
			Values:    map[string]float64{"ImportKWh": 140},
		},
	}
	s := testServer(readings, nil)

	rec := get(t, s, "/api/v1/tou/series?granularity=day&date=2026-09-02&meters=M1&metrics=ImportKWh")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp seriesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.RunID)
	require.Len(t, resp.Rows, bucket.DayBucketCount)
	assert.Equal(t, 40.0, resp.Rows[0].Values["M1"]["ImportKWh"])
	assert.True(t, resp.Rows[0].OnPeak)
}

func TestSeries_MissingDateIsBadRequest(t *testing.T) {
	s := testServer(nil, nil)
	rec := get(t, s, "/api/v1/tou/series?granularity=day&meters=M1&metrics=ImportKWh")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSeries_UnknownGranularityIsBadRequest(t *testing.T) {
	s := testServer(nil, nil)
	rec := get(t, s, "/api/v1/tou/series?granularity=week&date=2026-09-02")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSeries_NoDataStillFullShape(t *testing.T) {
	s := testServer(nil, nil)
	rec := get(t, s, "/api/v1/tou/series?granularity=month&year=2026&month=9&meters=M1&metrics=DemandW")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp seriesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Rows, bucket.MonthBucketCount)
	for _, row := range resp.Rows {
		assert.Equal(t, 0.0, row.Values["M1"]["DemandW"])
	}
}

func TestSummary_TwoEntriesPerMeter(t *testing.T) {
	s := testServer(nil, nil)
	rec := get(t, s, "/api/v1/tou/summary?granularity=day&date=2026-09-02&meters=M1,M2&metrics=DemandW")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp summaryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Summary, 4)
	assert.Equal(t, models.PeriodOnPeak, resp.Summary[0].Period)
	assert.Equal(t, models.PeriodOffPeak, resp.Summary[1].Period)
}

func TestClassify(t *testing.T) {
	holidays := []models.Holiday{
		{Date: time.Date(2026, 12, 25, 0, 0, 0, 0, time.UTC), Name: "Christmas Day"},
	}
	s := testServer(nil, holidays)

	tests := []struct {
		name string
		url  string
		want string
	}{
		{"weekday", "/api/v1/tou/classify?date=2026-09-02", "onpeak"},
		{"saturday", "/api/v1/tou/classify?date=2026-09-05", "nonworking"},
		{"holiday", "/api/v1/tou/classify?date=2026-12-25", "nonworking"},
		{"weekday evening", "/api/v1/tou/classify?date=2026-09-02&time=23:00", "offpeak"},
		{"weekday morning peak", "/api/v1/tou/classify?date=2026-09-02&time=09:30", "onpeak"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, s, tt.url)
			require.Equal(t, http.StatusOK, rec.Code)

			var resp classifyResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.want, resp.Class)
		})
	}
}

func TestClassify_MissingDate(t *testing.T) {
	s := testServer(nil, nil)
	rec := get(t, s, "/api/v1/tou/classify")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	s := testServer(nil, nil)
	rec := get(t, s, "/api/v1/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}
