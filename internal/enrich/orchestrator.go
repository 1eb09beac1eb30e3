// Package enrich drives metadata enrichment for detected mints: cache
// consultation, bounded retries against the metadata source, and completion
// notifications.
package enrich

import (
	"context"
	"log"
	"time"

	"mintwatch/internal/bus"
	"mintwatch/internal/cache"
	"mintwatch/internal/domain"
	"mintwatch/internal/observability"
)

// Default retry policy.
const (
	DefaultMaxRetries   = 3
	DefaultAttemptDelay = 2 * time.Second
)

// MetadataSource resolves metadata for a mint. Implementations bound their
// own network calls; the orchestrator imposes no per-attempt deadline.
type MetadataSource interface {
	// Exists reports whether a metadata record exists for the mint.
	// This probe is cheap relative to Fetch.
	Exists(ctx context.Context, mint string) (bool, error)

	// Fetch retrieves the full metadata, including the off-chain document
	// when one is linked. Returns nil when the record is absent.
	Fetch(ctx context.Context, mint string) (*domain.TokenMetadata, error)
}

// Classifier labels enriched tokens downstream. Calls are best-effort;
// failures never affect cache state.
type Classifier interface {
	Classify(ctx context.Context, item ClassifyItem) error
}

// ClassifyItem is the payload handed to the classifier after enrichment.
type ClassifyItem struct {
	Mint        string
	Name        string
	Description *string
	Timestamp   int64 // ms
}

// MetadataFound is the payload published on bus.TopicMetadataFound.
type MetadataFound struct {
	Mint     string
	Metadata *domain.TokenMetadata
}

// Orchestrator coordinates enrichment runs against the cache and source.
type Orchestrator struct {
	cache      *cache.MetadataCache
	source     MetadataSource
	classifier Classifier // optional
	notifier   *bus.Bus   // optional

	maxRetries   int
	attemptDelay time.Duration
	logger       *log.Logger

	// wait pauses between attempts; replaceable in tests.
	wait func(ctx context.Context, d time.Duration)
}

// Options contains configuration for creating an Orchestrator.
type Options struct {
	Cache      *cache.MetadataCache
	Source     MetadataSource
	Classifier Classifier
	Notifier   *bus.Bus

	MaxRetries   int
	AttemptDelay time.Duration
	Logger       *log.Logger
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	maxRetries := opts.MaxRetries
	if maxRetries == 0 {
		maxRetries = DefaultMaxRetries
	}

	attemptDelay := opts.AttemptDelay
	if attemptDelay == 0 {
		attemptDelay = DefaultAttemptDelay
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Orchestrator{
		cache:        opts.Cache,
		source:       opts.Source,
		classifier:   opts.Classifier,
		notifier:     opts.Notifier,
		maxRetries:   maxRetries,
		attemptDelay: attemptDelay,
		logger:       logger,
		wait:         sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// Enrich resolves metadata for a freshly detected mint. It returns without
// a network call when a success entry is cached, the failure cooldown is
// still running, or another run already holds the pending guard. No error
// escapes: all outcomes land in the cache, the bus, or the log.
func (o *Orchestrator) Enrich(ctx context.Context, mint string) {
	if entry, ok := o.cache.Get(mint); ok && entry.Outcome == cache.OutcomeSuccess {
		o.publishFound(mint, entry.Metadata)
		return
	}

	if !o.cache.ShouldRetry(mint) {
		return
	}

	if !o.cache.MarkPending(mint) {
		return
	}
	// Guard release must happen on every exit path.
	defer o.cache.ClearPending(mint)

	observability.RecordEnrichmentStarted()
	started := time.Now()

	run := newRun(mint, o.maxRetries)
	for !run.done() {
		o.step(ctx, run)
	}

	switch run.state {
	case runSucceeded:
		observability.RecordEnrichmentSucceeded(time.Since(started).Seconds())
	case runExhausted:
		observability.RecordEnrichmentExhausted(time.Since(started).Seconds())
		o.logger.Printf("WARN enrichment exhausted for %s after %d attempts", mint, run.attempt)
	}
}

// step advances the run's state machine by one transition.
func (o *Orchestrator) step(ctx context.Context, run *enrichmentRun) {
	switch run.state {
	case runIdle:
		if run.attempt > 0 {
			o.wait(ctx, o.attemptDelay)
		}
		run.beginAttempt()

	case runProbing:
		exists, err := o.source.Exists(ctx, run.mint)
		if err != nil {
			// Transport failure counts the same as "not found".
			o.logger.Printf("WARN metadata probe for %s: %v", run.mint, err)
			observability.RecordFetchError("probe")
			o.failAttempt(run)
			return
		}
		if !exists {
			o.failAttempt(run)
			return
		}
		run.recordExists()

	case runFetching:
		meta, err := o.source.Fetch(ctx, run.mint)
		if err != nil {
			o.logger.Printf("WARN metadata fetch for %s: %v", run.mint, err)
			observability.RecordFetchError("fetch")
			o.failAttempt(run)
			return
		}
		if meta == nil {
			o.failAttempt(run)
			return
		}

		o.cache.Put(run.mint, meta)
		run.recordSuccess()
		o.publishFound(run.mint, meta)
		o.classify(ctx, meta)
	}
}

// failAttempt records one failed attempt in the cache and advances the run.
func (o *Orchestrator) failAttempt(run *enrichmentRun) {
	o.cache.MarkFailedAttempt(run.mint)
	run.attemptFailed()
}

// publishFound emits the enrichment-completed notification.
func (o *Orchestrator) publishFound(mint string, meta *domain.TokenMetadata) {
	if o.notifier == nil {
		return
	}
	o.notifier.Publish(bus.TopicMetadataFound, MetadataFound{Mint: mint, Metadata: meta})
}

// classify forwards the enriched token downstream. Failures are logged and
// swallowed.
func (o *Orchestrator) classify(ctx context.Context, meta *domain.TokenMetadata) {
	if o.classifier == nil {
		return
	}

	item := ClassifyItem{
		Mint:        meta.Mint,
		Name:        meta.Name,
		Description: meta.Description,
		Timestamp:   meta.FetchedAt,
	}
	if err := o.classifier.Classify(ctx, item); err != nil {
		o.logger.Printf("WARN classification for %s: %v", meta.Mint, err)
		observability.RecordClassificationError()
	}
}
