package ingest

import (
	"context"
	"log"
	"sync"
	"sync/atomic"

	"mintwatch/internal/domain"
	"mintwatch/internal/observability"
)

// Default dispatcher sizing.
const (
	DefaultQueueSize = 1024
	DefaultWorkers   = 8
)

// EnrichFunc runs enrichment for one mint.
type EnrichFunc func(ctx context.Context, mint string)

// Dispatcher fans detected mints out to a bounded worker pool. Submit never
// blocks: when the queue is full the event is dropped and counted, keeping
// the ingestion loop free under bursty detection.
type Dispatcher struct {
	queue   chan *domain.MintEvent
	enrich  EnrichFunc
	workers int
	logger  *log.Logger

	wg      sync.WaitGroup
	stopped atomic.Bool
}

// DispatcherOptions contains configuration for creating a Dispatcher.
type DispatcherOptions struct {
	Enrich    EnrichFunc
	QueueSize int
	Workers   int
	Logger    *log.Logger
}

// NewDispatcher creates a new dispatcher.
func NewDispatcher(opts DispatcherOptions) *Dispatcher {
	queueSize := opts.QueueSize
	if queueSize == 0 {
		queueSize = DefaultQueueSize
	}

	workers := opts.Workers
	if workers == 0 {
		workers = DefaultWorkers
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Dispatcher{
		queue:   make(chan *domain.MintEvent, queueSize),
		enrich:  opts.Enrich,
		workers: workers,
		logger:  logger,
	}
}

// Start launches the worker pool.
func (d *Dispatcher) Start() {
	for w := 0; w < d.workers; w++ {
		d.wg.Add(1)
		go d.worker()
	}
}

// Submit queues an event for enrichment without blocking. It returns false
// when the queue is full or the dispatcher is stopped.
func (d *Dispatcher) Submit(event *domain.MintEvent) bool {
	if d.stopped.Load() {
		return false
	}

	select {
	case d.queue <- event:
		observability.UpdateDispatchQueueLen(len(d.queue))
		return true
	default:
		observability.RecordDispatchDropped()
		d.logger.Printf("WARN dispatch queue full, dropping mint %s", event.Mint)
		return false
	}
}

// Stop drains the queue and waits for in-flight enrichment to finish.
// In-flight attempts are never cancelled on shutdown.
func (d *Dispatcher) Stop() {
	if d.stopped.Swap(true) {
		return
	}
	close(d.queue)
	d.wg.Wait()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for event := range d.queue {
		observability.UpdateDispatchQueueLen(len(d.queue))
		// Enrichment runs to completion even during shutdown; the source
		// bounds its own network calls.
		d.enrich(context.Background(), event.Mint)
	}
}
