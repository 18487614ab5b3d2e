package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/smartgrid-analytics/tou-aggregator/internal/api"
	"github.com/smartgrid-analytics/tou-aggregator/internal/config"
	"github.com/smartgrid-analytics/tou-aggregator/internal/holiday"
	"github.com/smartgrid-analytics/tou-aggregator/internal/influxdb"
	"github.com/smartgrid-analytics/tou-aggregator/internal/kafka"
	"github.com/smartgrid-analytics/tou-aggregator/internal/processor"
	"github.com/smartgrid-analytics/tou-aggregator/internal/store"
)

func main() {
	// Load .env if present; real deployments use the environment directly
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize InfluxDB sink
	influxClient, err := influxdb.NewClient(cfg.InfluxDB)
	if err != nil {
		log.Fatalf("Failed to create InfluxDB client: %v", err)
	}
	// Closed explicitly after consumers are stopped

	readingStore := store.NewReadingStore()

	// Holiday table cache with scheduled refresh
	holidayCache := holiday.NewCache(holiday.NewClient(cfg.Holiday, cfg.Aggregation.Timezone))
	warmCtx, warmCancel := context.WithTimeout(context.Background(), cfg.Holiday.Timeout)
	if err := holidayCache.Refresh(warmCtx, time.Now().In(cfg.Aggregation.Timezone).Year()); err != nil {
		log.Printf("Initial holiday fetch failed, starting with weekend-only classification: %v", err)
	}
	warmCancel()

	// Initialize processor
	proc := processor.NewProcessor(readingStore, influxClient, cfg.Processor)

	// Create context that can be canceled
	ctx, cancel := context.WithCancel(context.Background())

	// Handle termination signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go holidayCache.StartScheduler(ctx, cfg.Holiday.RefreshInterval)
	go pruneLoop(ctx, readingStore, cfg.Processor.RetentionDays)

	// Initialize consumers
	var wg sync.WaitGroup
	consumers := make([]*kafka.Consumer, cfg.Kafka.ConsumerCount)

	log.Printf("Starting %d Kafka consumers...", cfg.Kafka.ConsumerCount)

	for i := 0; i < cfg.Kafka.ConsumerCount; i++ {
		consumer, err := kafka.NewConsumer(
			fmt.Sprintf("consumer-%d", i),
			cfg.Kafka,
			proc.ProcessBatch,
		)
		if err != nil {
			log.Fatalf("Failed to create consumer %d: %v", i, err)
		}

		consumers[i] = consumer

		wg.Add(1)
		go func(c *kafka.Consumer, id int) {
			defer wg.Done()
			log.Printf("Starting consumer %d", id)
			if err := c.Consume(ctx); err != nil {
				log.Printf("Consumer %d error: %v", id, err)
			}
			log.Printf("Consumer %d stopped", id)
		}(consumer, i)
	}

	// HTTP API for rendering/reporting collaborators
	apiServer := api.NewServer(readingStore, holidayCache, influxClient, cfg.Aggregation)
	httpServer := &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      apiServer.Router(),
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
	}

	go func() {
		log.Printf("HTTP API listening on %s", cfg.API.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	// Wait for termination signal
	<-sigChan
	log.Println("Received termination signal. Shutting down...")

	// Cancel context to stop consumers and schedulers
	cancel()

	// Set a deadline for clean shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	// Create a channel to signal when all consumers are done
	done := make(chan struct{})

	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("All consumers stopped successfully")
	case <-shutdownCtx.Done():
		log.Println("Shutdown timed out, forcing exit")
	}

	proc.Stop()

	// Now it's safe to close the InfluxDB client
	log.Println("Closing InfluxDB client...")
	influxClient.Close()

	log.Println("Shutdown complete.")
}

// pruneLoop bounds the in-memory reading buffer to the retention window
func pruneLoop(ctx context.Context, readingStore *store.ReadingStore, retentionDays int) {
	if retentionDays <= 0 {
		return
	}

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().AddDate(0, 0, -retentionDays)
			if removed := readingStore.Prune(cutoff); removed > 0 {
				log.Printf("Pruned %d readings older than %s", removed, cutoff.Format("2006-01-02"))
			}
		case <-ctx.Done():
			return
		}
	}
}
