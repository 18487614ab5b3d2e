// Package api exposes the aggregation core to rendering and reporting
// collaborators over HTTP. Every request triggers a fresh stateless run
// against the current reading snapshot; there is no incremental
// recomputation.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/smartgrid-analytics/tou-aggregator/internal/calendar"
	"github.com/smartgrid-analytics/tou-aggregator/internal/config"
	"github.com/smartgrid-analytics/tou-aggregator/internal/models"
	"github.com/smartgrid-analytics/tou-aggregator/internal/reduce"
	"github.com/smartgrid-analytics/tou-aggregator/internal/store"
	"github.com/smartgrid-analytics/tou-aggregator/internal/tou"
)

// HolidayProvider hands out the holiday table for a calendar year
type HolidayProvider interface {
	Year(ctx context.Context, year int) []models.Holiday
}

// AggregateSink records completed runs for dashboards. Satisfied by the
// InfluxDB client; nil disables recording.
type AggregateSink interface {
	WriteAggregates(granularity models.Granularity, buckets []models.ClassifiedBucket, records []models.AggregateRecord, runTime time.Time) error
	WriteSummary(granularity models.Granularity, summary []models.SummaryEntry, runTime time.Time) error
}

// Server serves the TOU aggregation API
type Server struct {
	store    *store.ReadingStore
	holidays HolidayProvider
	sink     AggregateSink
	agg      config.AggregationConfig
	router   *mux.Router
}

// NewServer wires the API routes
func NewServer(readingStore *store.ReadingStore, holidays HolidayProvider, sink AggregateSink, agg config.AggregationConfig) *Server {
	s := &Server{
		store:    readingStore,
		holidays: holidays,
		sink:     sink,
		agg:      agg,
		router:   mux.NewRouter(),
	}

	s.router.HandleFunc("/api/v1/tou/series", s.handleSeries).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/tou/summary", s.handleSummary).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/tou/classify", s.handleClassify).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/healthz", s.handleHealth).Methods(http.MethodGet)

	return s
}

// Router returns the HTTP handler for the server
func (s *Server) Router() http.Handler {
	return s.router
}

type seriesResponse struct {
	RunID       string             `json:"runId"`
	Granularity models.Granularity `json:"granularity"`
	Rows        []models.BucketRow `json:"rows"`
}

type summaryResponse struct {
	RunID       string                `json:"runId"`
	Granularity models.Granularity    `json:"granularity"`
	Summary     []models.SummaryEntry `json:"summary"`
}

type classifyResponse struct {
	Date  string `json:"date"`
	Class string `json:"class"`
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	runID, res, err := s.run(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, seriesResponse{RunID: runID, Granularity: res.Granularity, Rows: res.Rows})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	runID, res, err := s.run(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, summaryResponse{RunID: runID, Granularity: res.Granularity, Summary: res.Summary})
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date, err := time.ParseInLocation("2006-01-02", q.Get("date"), s.agg.Timezone)
	if err != nil {
		http.Error(w, "missing or invalid date parameter, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	minuteOfDay := -1
	if raw := q.Get("time"); raw != "" {
		t, err := time.Parse("15:04", raw)
		if err != nil {
			http.Error(w, "invalid time parameter, expected HH:MM", http.StatusBadRequest)
			return
		}
		minuteOfDay = t.Hour()*60 + t.Minute()
	}

	classifier := s.classifierFor(r, date.Year())
	writeJSON(w, classifyResponse{
		Date:  q.Get("date"),
		Class: string(classifier.ClassifyDate(date, minuteOfDay)),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok", "readings": strconv.Itoa(s.store.Len())})
}

// run parses the request, executes one aggregation and records it to the
// sink when one is configured
func (s *Server) run(r *http.Request) (string, *tou.Result, error) {
	req, err := parseRequest(r, s.agg)
	if err != nil {
		return "", nil, err
	}

	runID := uuid.NewString()
	classifier := s.classifierFor(r, holidayYear(req))
	aggregator := tou.New(classifier, reduce.NewSelector(s.agg.CumulativeMetrics), s.agg.Workers)

	from, to, err := aggregator.Window(*req)
	if err != nil {
		return "", nil, err
	}

	readings := s.store.Query(from, to, req.Meters)
	res, err := aggregator.Run(readings, *req)
	if err != nil {
		return "", nil, err
	}

	log.Printf("[run %s] %s aggregation over %d readings, %d meters, %d metrics",
		runID, req.Granularity, len(readings), len(req.Meters), len(req.Metrics))

	if s.sink != nil {
		runTime := time.Now()
		go func(res *tou.Result) {
			if err := s.sink.WriteAggregates(res.Granularity, res.Buckets, res.Records, runTime); err != nil {
				log.Printf("[run %s] error recording aggregates: %v", runID, err)
			}
			if err := s.sink.WriteSummary(res.Granularity, res.Summary, runTime); err != nil {
				log.Printf("[run %s] error recording summary: %v", runID, err)
			}
		}(res)
	}

	return runID, res, nil
}

// classifierFor builds a classifier with the holiday table for a year
func (s *Server) classifierFor(r *http.Request, year int) *calendar.Classifier {
	var holidays []models.Holiday
	if s.holidays != nil {
		holidays = s.holidays.Year(r.Context(), year)
	}
	return calendar.NewClassifier(s.agg.Timezone, calendar.NewHolidaySet(holidays, s.agg.Timezone))
}

// parseRequest maps query parameters onto an aggregation request. Day runs
// require a date, month runs a year and month, year runs a year; anything
// structurally invalid fails fast with a 400.
func parseRequest(r *http.Request, agg config.AggregationConfig) (*tou.Request, error) {
	q := r.URL.Query()

	granularity := models.Granularity(q.Get("granularity"))
	if granularity == "" {
		granularity = models.GranularityDay
	}
	if !granularity.Valid() {
		return nil, &badRequestError{"unknown granularity, expected day, month or year"}
	}

	req := &tou.Request{
		Granularity: granularity,
		Meters:      splitParam(q.Get("meters")),
		Metrics:     splitParam(q.Get("metrics")),
		Strict:      agg.StrictValues,
	}

	switch granularity {
	case models.GranularityDay:
		date, err := time.ParseInLocation("2006-01-02", q.Get("date"), agg.Timezone)
		if err != nil {
			return nil, &badRequestError{"missing or invalid date parameter, expected YYYY-MM-DD"}
		}
		req.ReferenceDate = date
	case models.GranularityMonth:
		year, err := strconv.Atoi(q.Get("year"))
		if err != nil {
			return nil, &badRequestError{"missing or invalid year parameter"}
		}
		month, err := strconv.Atoi(q.Get("month"))
		if err != nil || month < 1 || month > 12 {
			return nil, &badRequestError{"missing or invalid month parameter, expected 1-12"}
		}
		req.Year = year
		req.Month = time.Month(month)
	case models.GranularityYear:
		year, err := strconv.Atoi(q.Get("year"))
		if err != nil {
			return nil, &badRequestError{"missing or invalid year parameter"}
		}
		req.Year = year
	}

	return req, nil
}

// holidayYear picks the calendar year whose holiday table a run needs
func holidayYear(req *tou.Request) int {
	if req.Granularity == models.GranularityDay {
		return req.ReferenceDate.Year()
	}
	return req.Year
}

func splitParam(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

type badRequestError struct{ msg string }

func (e *badRequestError) Error() string { return e.msg }
