package influxdb

import (
	"context"
	"fmt"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/smartgrid-analytics/tou-aggregator/internal/config"
	"github.com/smartgrid-analytics/tou-aggregator/internal/models"
)

// Client represents an InfluxDB v2 client
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	config   config.InfluxDBConfig
}

// NewClient initializes the InfluxDB v2 client and verifies connectivity
func NewClient(cfg config.InfluxDBConfig) (*Client, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)

	// Health check to verify the endpoint and credentials up front
	_, err := client.Health(context.Background())
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to InfluxDB: %v", err)
	}

	return &Client{
		client:   client,
		writeAPI: writeAPI,
		config:   cfg,
	}, nil
}

// WriteReadings writes raw meter readings, one point per metric column
func (c *Client) WriteReadings(readings []models.Reading) error {
	for _, r := range readings {
		fields := make(map[string]interface{}, len(r.Values))
		for metric, value := range r.Values {
			fields[metric] = value
		}
		if len(fields) == 0 {
			continue
		}

		point := write.NewPoint(
			"meter_reading",
			map[string]string{
				"meter_id": r.MeterID,
			},
			fields,
			r.Timestamp,
		)

		c.writeAPI.WritePoint(point)
	}

	return nil
}

// WriteAggregates writes one point per aggregate record, tagged with the
// bucket's tariff period so On-Peak/Off-Peak splits can be queried directly
func (c *Client) WriteAggregates(granularity models.Granularity, buckets []models.ClassifiedBucket, records []models.AggregateRecord, runTime time.Time) error {
	byKey := make(map[int]models.ClassifiedBucket, len(buckets))
	for _, b := range buckets {
		byKey[b.Key] = b
	}

	for _, rec := range records {
		b := byKey[rec.BucketKey]
		period := models.PeriodOffPeak
		if b.OnPeak {
			period = models.PeriodOnPeak
		}

		point := write.NewPoint(
			"tou_aggregate",
			map[string]string{
				"meter_id":    rec.MeterID,
				"metric":      rec.Metric,
				"granularity": string(granularity),
				"period":      string(period),
				"bucket":      strconv.Itoa(rec.BucketKey),
			},
			map[string]interface{}{
				"value": rec.Value,
				"axis":  b.AxisValue,
			},
			runTime,
		)

		c.writeAPI.WritePoint(point)
	}

	return nil
}

// WriteSummary writes the two-entries-per-meter TOU totals
func (c *Client) WriteSummary(granularity models.Granularity, summary []models.SummaryEntry, runTime time.Time) error {
	for _, entry := range summary {
		point := write.NewPoint(
			"tou_summary",
			map[string]string{
				"meter_id":    entry.MeterID,
				"granularity": string(granularity),
				"period":      string(entry.Period),
			},
			map[string]interface{}{
				"total": entry.Total,
			},
			runTime,
		)

		c.writeAPI.WritePoint(point)
	}

	return nil
}

// Close flushes pending writes and closes the InfluxDB client
func (c *Client) Close() {
	c.writeAPI.Flush()
	c.client.Close()
}
