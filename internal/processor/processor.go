package processor

import (
	"log"
	"sync"

	"github.com/smartgrid-analytics/tou-aggregator/internal/config"
	"github.com/smartgrid-analytics/tou-aggregator/internal/models"
	"github.com/smartgrid-analytics/tou-aggregator/internal/store"
)

// RawSink receives raw readings for long-term storage. Satisfied by the
// InfluxDB client; nil disables raw persistence.
type RawSink interface {
	WriteReadings(readings []models.Reading) error
}

// Processor fans decoded reading batches out to the in-memory store and,
// optionally, to the raw sink
type Processor struct {
	store  *store.ReadingStore
	sink   RawSink
	config config.ProcessorConfig
	queue  chan []models.Reading
	wg     sync.WaitGroup
}

// NewProcessor creates a processor and starts its workers
func NewProcessor(readingStore *store.ReadingStore, sink RawSink, cfg config.ProcessorConfig) *Processor {
	p := &Processor{
		store:  readingStore,
		sink:   sink,
		config: cfg,
		queue:  make(chan []models.Reading, cfg.QueueSize),
	}

	p.wg.Add(cfg.WorkerCount)
	for i := 0; i < cfg.WorkerCount; i++ {
		go p.worker(i)
	}

	return p
}

// ProcessBatch enqueues a batch of readings. The batch is copied so the
// caller may reuse its slice.
func (p *Processor) ProcessBatch(readings []models.Reading) error {
	batch := make([]models.Reading, len(readings))
	copy(batch, readings)

	select {
	case p.queue <- batch:
		return nil
	default:
		// Queue is full, log and drop the batch
		log.Printf("Warning: processing queue is full, dropping %d readings", len(readings))
		return nil
	}
}

// worker drains batches from the queue
func (p *Processor) worker(id int) {
	defer p.wg.Done()

	for batch := range p.queue {
		p.store.Append(batch)

		if p.sink != nil && p.config.WriteRawReadings {
			if err := p.sink.WriteReadings(batch); err != nil {
				log.Printf("Worker %d: error writing raw readings: %v", id, err)
			}
		}
	}
}

// Stop drains the queue and waits for the workers to finish
func (p *Processor) Stop() {
	close(p.queue)
	p.wg.Wait()
}
