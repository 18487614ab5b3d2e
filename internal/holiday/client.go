// Package holiday retrieves the yearly holiday table from the external
// calendar source and caches one immutable set per year for the classifier.
package holiday

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/smartgrid-analytics/tou-aggregator/internal/config"
	"github.com/smartgrid-analytics/tou-aggregator/internal/models"
)

// holidayRow is the wire format of one holiday record
type holidayRow struct {
	Date     string `json:"date"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// Client fetches holiday records over HTTP
type Client struct {
	url        string
	httpClient *http.Client
	loc        *time.Location
}

// NewClient creates a holiday client for the configured source URL
func NewClient(cfg config.HolidayConfig, loc *time.Location) *Client {
	if loc == nil {
		loc = time.UTC
	}
	return &Client{
		url:        cfg.URL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		loc:        loc,
	}
}

// FetchYear retrieves the holiday table for one calendar year. Records with
// an unparseable date are skipped and logged; the rest of the year still
// loads.
func (c *Client) FetchYear(ctx context.Context, year int) ([]models.Holiday, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build holiday request: %w", err)
	}
	q := req.URL.Query()
	q.Set("year", strconv.Itoa(year))
	req.URL.RawQuery = q.Encode()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch holidays for %d: %w", year, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("holiday source returned %d for year %d: %s", resp.StatusCode, year, body)
	}

	var rows []holidayRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode holiday response: %w", err)
	}

	holidays := make([]models.Holiday, 0, len(rows))
	for _, row := range rows {
		date, err := time.ParseInLocation("2006-01-02", row.Date, c.loc)
		if err != nil {
			log.Printf("Skipping holiday %q with unparseable date %q: %v", row.Name, row.Date, err)
			continue
		}
		holidays = append(holidays, models.Holiday{
			Date:     date,
			Name:     row.Name,
			Category: models.HolidayCategory(row.Category),
		})
	}
	return holidays, nil
}

// Cache keeps one holiday table per calendar year. Reads hand out the
// stored slice directly; it is never mutated after Refresh stores it.
type Cache struct {
	client *Client
	mu     sync.RWMutex
	years  map[int][]models.Holiday
}

// NewCache creates an empty cache backed by the given client
func NewCache(client *Client) *Cache {
	return &Cache{client: client, years: make(map[int][]models.Holiday)}
}

// Refresh fetches and stores the holiday table for a year
func (c *Cache) Refresh(ctx context.Context, year int) error {
	holidays, err := c.client.FetchYear(ctx, year)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.years[year] = holidays
	c.mu.Unlock()

	log.Printf("Holiday table for %d refreshed: %d records", year, len(holidays))
	return nil
}

// Year returns the cached holiday table for a year, fetching it on first
// use. A fetch failure degrades to an empty table so classification falls
// back to weekend-only logic instead of failing the run.
func (c *Cache) Year(ctx context.Context, year int) []models.Holiday {
	c.mu.RLock()
	holidays, ok := c.years[year]
	c.mu.RUnlock()
	if ok {
		return holidays
	}

	if err := c.Refresh(ctx, year); err != nil {
		log.Printf("Holiday fetch for %d failed, falling back to weekend-only classification: %v", year, err)
		c.mu.Lock()
		// Negative-cache the failure so every run does not re-fetch
		c.years[year] = nil
		c.mu.Unlock()
		return nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.years[year]
}

// StartScheduler refreshes the loaded years on the configured interval until
// the context is cancelled. Runs in the caller's goroutine, in the manner of
// a blocking worker loop.
func (c *Cache) StartScheduler(ctx context.Context, interval time.Duration) {
	scheduler := gocron.NewScheduler(time.UTC)

	log.Printf("Starting holiday refresh scheduler with interval %v", interval)

	_, err := scheduler.Every(interval).Do(func() {
		c.mu.RLock()
		years := make([]int, 0, len(c.years))
		for y := range c.years {
			years = append(years, y)
		}
		c.mu.RUnlock()

		for _, year := range years {
			refreshCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			if err := c.Refresh(refreshCtx, year); err != nil {
				log.Printf("Scheduled holiday refresh for %d failed: %v", year, err)
			}
			cancel()
		}
	})
	if err != nil {
		log.Printf("Failed to schedule holiday refresh: %v", err)
		return
	}

	scheduler.StartAsync()

	<-ctx.Done()

	scheduler.Stop()
	log.Println("Holiday refresh scheduler stopped")
}
