package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/smartgrid-analytics/tou-aggregator/internal/config"
	"github.com/smartgrid-analytics/tou-aggregator/internal/models"

	"github.com/Shopify/sarama"
)

// BatchProcessor is a function that processes batches of decoded readings
type BatchProcessor func([]models.Reading) error

// Consumer represents a Kafka consumer for raw meter reading rows
type Consumer struct {
	id         string
	config     config.KafkaConfig
	consumer   sarama.ConsumerGroup
	processor  BatchProcessor
	msgBuffer  []models.Reading
	bufferLock sync.Mutex
	lastFlush  time.Time
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(id string, cfg config.KafkaConfig, processor BatchProcessor) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Consumer.Return.Errors = true
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	saramaConfig.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRoundRobin

	// Optimize for throughput
	saramaConfig.Consumer.Fetch.Min = 1
	saramaConfig.Consumer.Fetch.Default = 1024 * 1024 // 1MB
	saramaConfig.Consumer.MaxWaitTime = 250 * time.Millisecond

	client, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, err
	}

	return &Consumer{
		id:        id,
		config:    cfg,
		consumer:  client,
		processor: processor,
		msgBuffer: make([]models.Reading, 0, cfg.BatchSize),
		lastFlush: time.Now(),
	}, nil
}

// Consume starts consuming messages from Kafka
func (c *Consumer) Consume(ctx context.Context) error {
	errorChan := make(chan error)
	go func() {
		for err := range c.consumer.Errors() {
			log.Printf("Consumer %s error: %v", c.id, err)
			errorChan <- err
		}
	}()

	handler := &consumerGroupHandler{
		consumer: c,
		ctx:      ctx,
	}

	// Periodic flushing so slow topics still reach the store
	flushTicker := time.NewTicker(c.config.BatchTimeout)
	defer flushTicker.Stop()

	go func() {
		for {
			select {
			case <-flushTicker.C:
				c.flushBuffer()
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errorChan:
			return err
		default:
			if err := c.consumer.Consume(ctx, []string{c.config.Topic}, handler); err != nil {
				if err != context.Canceled {
					return err
				}
				return nil
			}
		}
	}
}

// addReading adds a decoded reading to the buffer and flushes if needed
func (c *Consumer) addReading(r models.Reading) {
	c.bufferLock.Lock()
	defer c.bufferLock.Unlock()

	c.msgBuffer = append(c.msgBuffer, r)

	if len(c.msgBuffer) >= c.config.BatchSize {
		c.flushBufferLocked()
	}
}

// flushBuffer flushes the message buffer
func (c *Consumer) flushBuffer() {
	c.bufferLock.Lock()
	defer c.bufferLock.Unlock()

	c.flushBufferLocked()
}

// flushBufferLocked flushes the message buffer while holding the lock
func (c *Consumer) flushBufferLocked() {
	if len(c.msgBuffer) == 0 {
		return
	}

	readings := make([]models.Reading, len(c.msgBuffer))
	copy(readings, c.msgBuffer)

	c.msgBuffer = c.msgBuffer[:0]
	c.lastFlush = time.Now()

	go func(batch []models.Reading) {
		if err := c.processor(batch); err != nil {
			log.Printf("Error processing readings: %v", err)
		}
	}(readings)
}

// Close shuts down the underlying consumer group
func (c *Consumer) Close() error {
	return c.consumer.Close()
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	consumer *Consumer
	ctx      context.Context
}

func (h *consumerGroupHandler) Setup(_ sarama.ConsumerGroupSession) error   { return nil }
func (h *consumerGroupHandler) Cleanup(_ sarama.ConsumerGroupSession) error { return nil }

func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		if h.ctx.Err() != nil {
			return h.ctx.Err()
		}

		r, err := DecodeReading(message.Value)
		if err != nil {
			// Malformed rows are skipped, never defaulted
			log.Printf("Skipping unreadable reading row: %v", err)
			session.MarkMessage(message, "")
			continue
		}

		h.consumer.addReading(r)
		session.MarkMessage(message, "")
	}
	return nil
}

// Reserved column names of a reading row; every other column is treated as
// a metric
const (
	timestampColumn = "reading_timestamp"
	meterIDColumn   = "meterId"
)

// timestampLayouts are the accepted encodings of reading_timestamp
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// DecodeReading parses one reading row. Rows carry a timestamp, a meter
// identifier and an open set of metric columns. A missing or unparseable
// timestamp fails the whole row; a non-numeric metric column only drops
// that column, leaving it absent from Values so the reducers can apply
// their missing-value policy.
func DecodeReading(data []byte) (models.Reading, error) {
	var row map[string]json.RawMessage
	if err := json.Unmarshal(data, &row); err != nil {
		return models.Reading{}, fmt.Errorf("decode reading row: %w", err)
	}

	rawTS, ok := row[timestampColumn]
	if !ok {
		return models.Reading{}, fmt.Errorf("reading row has no %s column", timestampColumn)
	}
	ts, err := parseTimestamp(rawTS)
	if err != nil {
		return models.Reading{}, err
	}

	rawMeter, ok := row[meterIDColumn]
	if !ok {
		return models.Reading{}, fmt.Errorf("reading row has no %s column", meterIDColumn)
	}
	meterID := parseMeterID(rawMeter)
	if meterID == "" {
		return models.Reading{}, fmt.Errorf("reading row has empty %s", meterIDColumn)
	}

	values := make(map[string]float64, len(row)-2)
	for column, raw := range row {
		if column == timestampColumn || column == meterIDColumn {
			continue
		}
		if v, ok := parseNumeric(raw); ok {
			values[column] = v
		}
	}

	return models.Reading{Timestamp: ts, MeterID: meterID, Values: values}, nil
}

func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, fmt.Errorf("reading timestamp is not a string: %w", err)
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable reading timestamp %q", s)
}

// parseMeterID accepts string or numeric meter identifiers
func parseMeterID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// parseNumeric accepts plain numbers and numeric strings
func parseNumeric(raw json.RawMessage) (float64, bool) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}
