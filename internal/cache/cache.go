// Package cache provides the in-memory metadata cache: lookup outcomes keyed
// by mint, TTL expiry, failure retry bookkeeping, and the pending set that
// deduplicates concurrent fetches.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"mintwatch/internal/domain"
	"mintwatch/internal/observability"
)

// ErrNotFound is returned by read paths when no live entry exists for a mint.
var ErrNotFound = errors.New("entry not found")

// Outcome describes the result recorded for a mint lookup.
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailed  Outcome = "FAILED"
)

// Entry is the cached lookup outcome for a single mint.
// Metadata is non-nil if and only if Outcome is OutcomeSuccess; once written
// it is treated as immutable and may be shared between copies.
type Entry struct {
	Mint        string
	Outcome     Outcome
	Metadata    *domain.TokenMetadata
	CachedAt    int64 // last successful write (ms)
	Attempts    int   // fetch attempts so far
	LastAttempt int64 // most recent attempt (ms)
}

// Default policy values.
const (
	DefaultSuccessTTL    = 1 * time.Hour
	DefaultFailedTTL     = 24 * time.Hour
	DefaultRetryDelay    = 5 * time.Minute
	DefaultSweepInterval = 1 * time.Hour
)

// Config controls cache expiry and retry policy.
type Config struct {
	SuccessTTL    time.Duration // success entries expire after this age
	FailedTTL     time.Duration // failed entries are swept after this age
	RetryDelay    time.Duration // cooldown after a failed attempt
	SweepInterval time.Duration // period between sweeps in RunSweeper
}

// DefaultConfig returns the default cache policy.
func DefaultConfig() Config {
	return Config{
		SuccessTTL:    DefaultSuccessTTL,
		FailedTTL:     DefaultFailedTTL,
		RetryDelay:    DefaultRetryDelay,
		SweepInterval: DefaultSweepInterval,
	}
}

// Stats holds approximate entry counts.
type Stats struct {
	Total   int
	Success int
	Failed  int
	Pending int
}

// MetadataCache is a concurrency-safe store of lookup outcomes keyed by mint.
// All shared mutable state of the enrichment core lives here; every mutation
// goes through this API.
type MetadataCache struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	pending map[string]struct{}

	successTTL    time.Duration
	failedTTL     time.Duration
	retryDelay    time.Duration
	sweepInterval time.Duration

	now func() int64 // current time in ms, replaceable in tests
}

// New creates a metadata cache with the given policy.
// Zero-value config fields fall back to defaults.
func New(cfg Config) *MetadataCache {
	def := DefaultConfig()
	if cfg.SuccessTTL == 0 {
		cfg.SuccessTTL = def.SuccessTTL
	}
	if cfg.FailedTTL == 0 {
		cfg.FailedTTL = def.FailedTTL
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = def.SweepInterval
	}

	return &MetadataCache{
		entries:       make(map[string]*Entry),
		pending:       make(map[string]struct{}),
		successTTL:    cfg.SuccessTTL,
		failedTTL:     cfg.FailedTTL,
		retryDelay:    cfg.RetryDelay,
		sweepInterval: cfg.SweepInterval,
		now:           func() int64 { return time.Now().UnixMilli() },
	}
}

// Get returns a copy of the entry for mint. A success entry past its TTL is
// removed and reported as absent. Failed entries are never expired here;
// their lifetime is governed by the sweep.
func (c *MetadataCache) Get(mint string) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[mint]
	if !ok {
		return nil, false
	}

	if entry.Outcome == OutcomeSuccess && c.expired(entry) {
		delete(c.entries, mint)
		return nil, false
	}

	entryCopy := *entry
	return &entryCopy, true
}

// Put records a successful fetch, overwriting any prior entry for mint.
func (c *MetadataCache) Put(mint string, meta *domain.TokenMetadata) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	attempts := 1
	if prev, ok := c.entries[mint]; ok {
		attempts = prev.Attempts + 1
	}

	c.entries[mint] = &Entry{
		Mint:        mint,
		Outcome:     OutcomeSuccess,
		Metadata:    meta,
		CachedAt:    now,
		Attempts:    attempts,
		LastAttempt: now,
	}
}

// MarkFailedAttempt records one failed fetch attempt. If no entry exists a
// failed placeholder is created; an existing entry keeps its outcome and only
// the bookkeeping fields advance.
func (c *MetadataCache) MarkFailedAttempt(mint string) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[mint]; ok {
		entry.Attempts++
		entry.LastAttempt = now
		return
	}

	c.entries[mint] = &Entry{
		Mint:        mint,
		Outcome:     OutcomeFailed,
		Attempts:    1,
		LastAttempt: now,
	}
}

// ShouldRetry reports whether a new fetch attempt for mint is permitted:
// always for unknown mints, never while a live success entry exists, and for
// failed entries only once the retry cooldown has elapsed.
func (c *MetadataCache) ShouldRetry(mint string) bool {
	now := c.now()

	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[mint]
	if !ok {
		return true
	}

	if entry.Outcome == OutcomeSuccess {
		// An expired success entry is as good as absent.
		return c.expired(entry)
	}

	return now-entry.LastAttempt > c.retryDelay.Milliseconds()
}

// IsPending reports whether mint is currently under active fetch.
func (c *MetadataCache) IsPending(mint string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.pending[mint]
	return ok
}

// MarkPending adds mint to the pending set. It returns false when the mint
// was already pending; the check and the insert are a single atomic step, so
// exactly one of any number of concurrent callers wins.
func (c *MetadataCache) MarkPending(mint string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.pending[mint]; ok {
		return false
	}
	c.pending[mint] = struct{}{}
	return true
}

// ClearPending removes mint from the pending set. Clearing a mint that is
// not pending is a no-op.
func (c *MetadataCache) ClearPending(mint string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.pending, mint)
}

// Sweep removes success entries older than the success TTL and failed
// entries older than the failed TTL. Returns the number of removed entries.
func (c *MetadataCache) Sweep() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for mint, entry := range c.entries {
		var expired bool
		switch entry.Outcome {
		case OutcomeSuccess:
			expired = now-entry.CachedAt > c.successTTL.Milliseconds()
		case OutcomeFailed:
			expired = now-entry.LastAttempt > c.failedTTL.Milliseconds()
		}
		if expired {
			delete(c.entries, mint)
			removed++
		}
	}
	return removed
}

// RunSweeper sweeps periodically until the context is cancelled.
func (c *MetadataCache) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := c.Sweep(); removed > 0 {
				observability.RecordSweepRemovals(removed)
			}
		}
	}
}

// Stats returns entry counts by outcome plus the pending count.
func (c *MetadataCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := Stats{
		Total:   len(c.entries),
		Pending: len(c.pending),
	}
	for _, entry := range c.entries {
		switch entry.Outcome {
		case OutcomeSuccess:
			stats.Success++
		case OutcomeFailed:
			stats.Failed++
		}
	}
	return stats
}

// Snapshot returns copies of all live entries. Success entries past their
// TTL are omitted, matching the treat-as-absent semantics of Get; they are
// physically removed by the next sweep.
func (c *MetadataCache) Snapshot() []*Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries := make([]*Entry, 0, len(c.entries))
	for _, entry := range c.entries {
		if entry.Outcome == OutcomeSuccess && c.expired(entry) {
			continue
		}
		entryCopy := *entry
		entries = append(entries, &entryCopy)
	}
	return entries
}

// Clear removes all entries. The pending set is left untouched so in-flight
// fetches keep their dedup guard.
func (c *MetadataCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*Entry)
}

// expired reports whether a success entry is past the success TTL.
// Caller must hold at least a read lock.
func (c *MetadataCache) expired(entry *Entry) bool {
	return c.now()-entry.CachedAt > c.successTTL.Milliseconds()
}
