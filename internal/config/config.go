package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Kafka       KafkaConfig
	InfluxDB    InfluxDBConfig
	Processor   ProcessorConfig
	Holiday     HolidayConfig
	API         APIConfig
	Aggregation AggregationConfig
}

// KafkaConfig holds Kafka-related configuration
type KafkaConfig struct {
	Brokers       []string
	Topic         string
	GroupID       string
	ConsumerCount int
	BatchSize     int
	BatchTimeout  time.Duration
}

// InfluxDBConfig holds InfluxDB-related configuration
type InfluxDBConfig struct {
	URL          string
	Org          string
	Token        string
	Bucket       string
	BatchSize    int
	BatchTimeout time.Duration
}

// ProcessorConfig holds reading-processor configuration
type ProcessorConfig struct {
	WorkerCount      int
	QueueSize        int
	WriteRawReadings bool
	RetentionDays    int
}

// HolidayConfig holds holiday-source configuration
type HolidayConfig struct {
	URL             string
	Timeout         time.Duration
	RefreshInterval time.Duration
}

// APIConfig holds HTTP API configuration
type APIConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// AggregationConfig holds the TOU aggregation core configuration
type AggregationConfig struct {
	// Timezone anchors all calendar math; never the runtime's local zone.
	Timezone *time.Location
	// CumulativeMetrics reduce by difference; all other metrics by max.
	CumulativeMetrics []string
	// Workers bounds the per-(bucket, meter, metric) reduction pool.
	Workers int
	// StrictValues treats missing metric values as absent instead of
	// coercing them to 0.
	StrictValues bool
}

// Load loads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	loc, err := time.LoadLocation(getEnv("TOU_TIMEZONE", "UTC"))
	if err != nil {
		return nil, fmt.Errorf("invalid TOU_TIMEZONE: %w", err)
	}

	return &Config{
		Kafka: KafkaConfig{
			Brokers:       getEnvStringSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			Topic:         getEnv("KAFKA_TOPIC", "meter-readings"),
			GroupID:       getEnv("KAFKA_GROUP_ID", "tou-aggregator"),
			ConsumerCount: getEnvInt("KAFKA_CONSUMER_COUNT", 4),
			BatchSize:     getEnvInt("KAFKA_BATCH_SIZE", 5000),
			BatchTimeout:  getEnvDuration("KAFKA_BATCH_TIMEOUT", 1*time.Second),
		},
		InfluxDB: InfluxDBConfig{
			URL:          getEnv("INFLUXDB_URL", "http://localhost:8086"),
			Org:          getEnv("INFLUXDB_ORG", "metering"),
			Token:        getEnv("INFLUX_TOKEN", ""),
			Bucket:       getEnv("INFLUXDB_BUCKET", "tou-aggregates"),
			BatchSize:    getEnvInt("INFLUXDB_BATCH_SIZE", 5000),
			BatchTimeout: getEnvDuration("INFLUXDB_BATCH_TIMEOUT", 500*time.Millisecond),
		},
		Processor: ProcessorConfig{
			WorkerCount:      getEnvInt("PROCESSOR_WORKER_COUNT", 4),
			QueueSize:        getEnvInt("PROCESSOR_QUEUE_SIZE", 100000),
			WriteRawReadings: getEnvBool("PROCESSOR_WRITE_RAW_READINGS", true),
			RetentionDays:    getEnvInt("PROCESSOR_RETENTION_DAYS", 400),
		},
		Holiday: HolidayConfig{
			URL:             getEnv("HOLIDAY_URL", "http://localhost:8081/holidays"),
			Timeout:         getEnvDuration("HOLIDAY_TIMEOUT", 10*time.Second),
			RefreshInterval: getEnvDuration("HOLIDAY_REFRESH_INTERVAL", 24*time.Hour),
		},
		API: APIConfig{
			Addr:         getEnv("API_ADDR", ":8080"),
			ReadTimeout:  getEnvDuration("API_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getEnvDuration("API_WRITE_TIMEOUT", 30*time.Second),
		},
		Aggregation: AggregationConfig{
			Timezone:          loc,
			CumulativeMetrics: getEnvStringSlice("TOU_CUMULATIVE_METRICS", []string{"ImportKWh", "ExportKWh"}),
			Workers:           getEnvInt("TOU_WORKERS", 4),
			StrictValues:      getEnvBool("TOU_STRICT_VALUES", false),
		},
	}, nil
}

// Helper functions to get environment variables with defaults
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value, exists := os.LookupEnv(key); exists {
		return strings.Split(value, ",")
	}
	return defaultValue
}
