package holiday

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartgrid-analytics/tou-aggregator/internal/config"
)

func holidayServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		assert.Equal(t, "2026", r.URL.Query().Get("year"))
		json.NewEncoder(w).Encode([]map[string]string{
			{"date": "2026-12-25", "name": "Christmas Day", "category": "public"},
			{"date": "2026-01-01", "name": "New Year's Day", "category": "public"},
			{"date": "not-a-date", "name": "Broken Record", "category": "public"},
		})
	}))
}

func testConfig(url string) config.HolidayConfig {
	return config.HolidayConfig{URL: url, Timeout: 5 * time.Second}
}

func TestFetchYear(t *testing.T) {
	srv := holidayServer(t, nil)
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), time.UTC)
	holidays, err := c.FetchYear(context.Background(), 2026)
	require.NoError(t, err)

	// The record with the broken date is skipped, not fatal
	require.Len(t, holidays, 2)
	assert.Equal(t, "Christmas Day", holidays[0].Name)
	assert.Equal(t, time.Date(2026, 12, 25, 0, 0, 0, 0, time.UTC), holidays[0].Date)
}

func TestFetchYear_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), time.UTC)
	_, err := c.FetchYear(context.Background(), 2026)
	assert.Error(t, err)
}

func TestCache_YearFetchesOnceAndCaches(t *testing.T) {
	var hits int32
	srv := holidayServer(t, &hits)
	defer srv.Close()

	cache := NewCache(NewClient(testConfig(srv.URL), time.UTC))

	first := cache.Year(context.Background(), 2026)
	second := cache.Year(context.Background(), 2026)

	assert.Len(t, first, 2)
	assert.Len(t, second, 2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestCache_FetchFailureFallsBackToEmpty(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cache := NewCache(NewClient(testConfig(srv.URL), time.UTC))

	assert.Empty(t, cache.Year(context.Background(), 2026))
	// The failure is negative-cached; no refetch per call
	assert.Empty(t, cache.Year(context.Background(), 2026))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}
