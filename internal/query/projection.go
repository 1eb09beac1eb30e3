// Package query provides read-side views over the metadata cache.
package query

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"mintwatch/internal/cache"
	"mintwatch/internal/domain"
)

// Projection exposes query operations over cached metadata. All reads go
// through cache snapshots, so results never alias live cache state.
type Projection struct {
	cache *cache.MetadataCache

	now func() int64 // ms
}

// NewProjection creates a projection over the given cache.
func NewProjection(c *cache.MetadataCache) *Projection {
	return &Projection{
		cache: c,
		now:   func() int64 { return time.Now().UnixMilli() },
	}
}

// GetByMint returns the metadata for a mint, or cache.ErrNotFound when the
// mint is unknown, expired, or only has a failed placeholder.
func (p *Projection) GetByMint(mint string) (*domain.TokenMetadata, error) {
	entry, ok := p.cache.Get(mint)
	if !ok || entry.Outcome != cache.OutcomeSuccess {
		return nil, cache.ErrNotFound
	}
	return entry.Metadata, nil
}

// Search returns metadata whose name or symbol contains the query,
// case-insensitively. Results are sorted by mint for determinism.
func (p *Projection) Search(query string) []*domain.TokenMetadata {
	needle := strings.ToLower(query)

	var out []*domain.TokenMetadata
	for _, meta := range p.successful() {
		if strings.Contains(strings.ToLower(meta.Name), needle) ||
			strings.Contains(strings.ToLower(meta.Symbol), needle) {
			out = append(out, meta)
		}
	}
	sortByMint(out)
	return out
}

// GetBySymbol returns all metadata with an exact symbol match,
// case-insensitively.
func (p *Projection) GetBySymbol(symbol string) []*domain.TokenMetadata {
	var out []*domain.TokenMetadata
	for _, meta := range p.successful() {
		if strings.EqualFold(meta.Symbol, symbol) {
			out = append(out, meta)
		}
	}
	sortByMint(out)
	return out
}

// Filter selects metadata by attribute. Nil fields are ignored; set fields
// are ANDed together.
type Filter struct {
	Mutable             *bool
	PrimarySaleHappened *bool
	HasImage            *bool
	HasDescription      *bool
	MinFeeBasisPoints   *int
	MaxFeeBasisPoints   *int
}

// FilterBy returns all successful metadata matching the filter.
func (p *Projection) FilterBy(filter Filter) []*domain.TokenMetadata {
	var out []*domain.TokenMetadata
	for _, meta := range p.successful() {
		if matches(meta, filter) {
			out = append(out, meta)
		}
	}
	sortByMint(out)
	return out
}

func matches(meta *domain.TokenMetadata, f Filter) bool {
	if f.Mutable != nil && meta.Mutable != *f.Mutable {
		return false
	}
	if f.PrimarySaleHappened != nil && meta.PrimarySaleHappened != *f.PrimarySaleHappened {
		return false
	}
	if f.HasImage != nil && meta.HasImage() != *f.HasImage {
		return false
	}
	if f.HasDescription != nil && meta.HasDescription() != *f.HasDescription {
		return false
	}
	if f.MinFeeBasisPoints != nil && meta.SellerFeeBasisPoints < *f.MinFeeBasisPoints {
		return false
	}
	if f.MaxFeeBasisPoints != nil && meta.SellerFeeBasisPoints > *f.MaxFeeBasisPoints {
		return false
	}
	return true
}

// Recent returns metadata cached within the window ending now, newest
// first.
func (p *Projection) Recent(window time.Duration) []*domain.TokenMetadata {
	cutoff := p.now() - window.Milliseconds()

	type dated struct {
		meta     *domain.TokenMetadata
		cachedAt int64
	}

	var hits []dated
	for _, entry := range p.cache.Snapshot() {
		if entry.Outcome != cache.OutcomeSuccess || entry.CachedAt < cutoff {
			continue
		}
		hits = append(hits, dated{meta: entry.Metadata, cachedAt: entry.CachedAt})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].cachedAt != hits[j].cachedAt {
			return hits[i].cachedAt > hits[j].cachedAt
		}
		return hits[i].meta.Mint < hits[j].meta.Mint
	})

	out := make([]*domain.TokenMetadata, len(hits))
	for i, h := range hits {
		out[i] = h.meta
	}
	return out
}

// AllSuccessful returns every successfully enriched record, sorted by mint.
func (p *Projection) AllSuccessful() []*domain.TokenMetadata {
	out := p.successful()
	sortByMint(out)
	return out
}

// Summary aggregates the successful portion of the cache.
type Summary struct {
	Count           int     `json:"count"`
	DistinctSymbols int     `json:"distinct_symbols"`
	WithImage       int     `json:"with_image"`
	WithDescription int     `json:"with_description"`
	Mutable         int     `json:"mutable"`
	PrimarySales    int     `json:"primary_sales"`
	AvgFeeBps       float64 `json:"avg_fee_bps"`
}

// Summarize computes aggregate statistics over successful records.
func (p *Projection) Summarize() Summary {
	var summary Summary
	symbols := make(map[string]struct{})
	feeTotal := 0

	for _, meta := range p.successful() {
		summary.Count++
		symbols[strings.ToUpper(meta.Symbol)] = struct{}{}
		if meta.HasImage() {
			summary.WithImage++
		}
		if meta.HasDescription() {
			summary.WithDescription++
		}
		if meta.Mutable {
			summary.Mutable++
		}
		if meta.PrimarySaleHappened {
			summary.PrimarySales++
		}
		feeTotal += meta.SellerFeeBasisPoints
	}

	summary.DistinctSymbols = len(symbols)
	if summary.Count > 0 {
		summary.AvgFeeBps = float64(feeTotal) / float64(summary.Count)
	}
	return summary
}

// Stats exposes cache-level counters.
func (p *Projection) Stats() cache.Stats {
	return p.cache.Stats()
}

// Clear drops every cached entry.
func (p *Projection) Clear() {
	p.cache.Clear()
}

// exportRecord is the JSON shape for Export.
type exportRecord struct {
	Mint     string                `json:"mint"`
	Outcome  cache.Outcome         `json:"outcome"`
	CachedAt int64                 `json:"cached_at"`
	Attempts int                   `json:"attempts"`
	Metadata *domain.TokenMetadata `json:"metadata,omitempty"`
}

// Export serializes the full cache snapshot, failed placeholders included,
// sorted by mint.
func (p *Projection) Export() ([]byte, error) {
	entries := p.cache.Snapshot()
	sort.Slice(entries, func(i, j int) bool { return entries[i].Mint < entries[j].Mint })

	records := make([]exportRecord, len(entries))
	for i, entry := range entries {
		records[i] = exportRecord{
			Mint:     entry.Mint,
			Outcome:  entry.Outcome,
			CachedAt: entry.CachedAt,
			Attempts: entry.Attempts,
			Metadata: entry.Metadata,
		}
	}

	return json.MarshalIndent(records, "", "  ")
}

// successful collects metadata from non-failed entries in snapshot order.
func (p *Projection) successful() []*domain.TokenMetadata {
	var out []*domain.TokenMetadata
	for _, entry := range p.cache.Snapshot() {
		if entry.Outcome != cache.OutcomeSuccess {
			continue
		}
		out = append(out, entry.Metadata)
	}
	return out
}

func sortByMint(metas []*domain.TokenMetadata) {
	sort.Slice(metas, func(i, j int) bool { return metas[i].Mint < metas[j].Mint })
}
