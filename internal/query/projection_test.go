package query

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mintwatch/internal/cache"
	"mintwatch/internal/domain"
)

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }
func intPtr(n int) *int       { return &n }

func seedCache(t *testing.T) *cache.MetadataCache {
	t.Helper()
	c := cache.New(cache.DefaultConfig())

	c.Put("mintA", &domain.TokenMetadata{
		Mint:                 "mintA",
		Name:                 "Doge Prime",
		Symbol:               "DOGEP",
		SellerFeeBasisPoints: 100,
		Mutable:              true,
		Image:                strPtr("https://img.example/a.png"),
		Description:          strPtr("first"),
	})
	c.Put("mintB", &domain.TokenMetadata{
		Mint:                 "mintB",
		Name:                 "Cat Coin",
		Symbol:               "CAT",
		SellerFeeBasisPoints: 500,
		PrimarySaleHappened:  true,
	})
	c.Put("mintC", &domain.TokenMetadata{
		Mint:   "mintC",
		Name:   "dogelord",
		Symbol: "DLORD",
	})
	c.MarkFailedAttempt("mintFailed")

	return c
}

func mints(metas []*domain.TokenMetadata) []string {
	out := make([]string, len(metas))
	for i, m := range metas {
		out[i] = m.Mint
	}
	return out
}

func TestProjection_GetByMint(t *testing.T) {
	p := NewProjection(seedCache(t))

	meta, err := p.GetByMint("mintA")
	require.NoError(t, err)
	assert.Equal(t, "Doge Prime", meta.Name)

	_, err = p.GetByMint("unknown")
	assert.ErrorIs(t, err, cache.ErrNotFound)

	// Failed placeholders are not queryable metadata.
	_, err = p.GetByMint("mintFailed")
	assert.ErrorIs(t, err, cache.ErrNotFound)
}

func TestProjection_Search(t *testing.T) {
	p := NewProjection(seedCache(t))

	// Case-insensitive over name, sorted by mint.
	assert.Equal(t, []string{"mintA", "mintC"}, mints(p.Search("doge")))

	// Matches symbol too.
	assert.Equal(t, []string{"mintB"}, mints(p.Search("cat")))

	assert.Empty(t, p.Search("zzz"))
}

func TestProjection_GetBySymbol(t *testing.T) {
	p := NewProjection(seedCache(t))

	assert.Equal(t, []string{"mintB"}, mints(p.GetBySymbol("cat")))

	// Exact match only; no substring fallback.
	assert.Empty(t, p.GetBySymbol("DOGE"))
}

func TestProjection_FilterBy(t *testing.T) {
	p := NewProjection(seedCache(t))

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"mutable", Filter{Mutable: boolPtr(true)}, []string{"mintA"}},
		{"immutable", Filter{Mutable: boolPtr(false)}, []string{"mintB", "mintC"}},
		{"with image", Filter{HasImage: boolPtr(true)}, []string{"mintA"}},
		{"no description", Filter{HasDescription: boolPtr(false)}, []string{"mintB", "mintC"}},
		{"fee range", Filter{MinFeeBasisPoints: intPtr(50), MaxFeeBasisPoints: intPtr(200)}, []string{"mintA"}},
		{"primary sale", Filter{PrimarySaleHappened: boolPtr(true)}, []string{"mintB"}},
		{"combined", Filter{Mutable: boolPtr(true), HasImage: boolPtr(true)}, []string{"mintA"}},
		{"empty filter matches all", Filter{}, []string{"mintA", "mintB", "mintC"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mints(p.FilterBy(tt.filter)))
		})
	}
}

func TestProjection_Recent(t *testing.T) {
	p := NewProjection(seedCache(t))

	assert.Len(t, p.Recent(time.Hour), 3)

	// Push the projection clock past the window; nothing qualifies.
	p.now = func() int64 { return time.Now().UnixMilli() + (2 * time.Hour).Milliseconds() }
	assert.Empty(t, p.Recent(time.Hour))
}

func TestProjection_AllSuccessful(t *testing.T) {
	p := NewProjection(seedCache(t))

	assert.Equal(t, []string{"mintA", "mintB", "mintC"}, mints(p.AllSuccessful()))
}

func TestProjection_Summarize(t *testing.T) {
	p := NewProjection(seedCache(t))

	summary := p.Summarize()
	assert.Equal(t, 3, summary.Count)
	assert.Equal(t, 3, summary.DistinctSymbols)
	assert.Equal(t, 1, summary.WithImage)
	assert.Equal(t, 1, summary.WithDescription)
	assert.Equal(t, 1, summary.Mutable)
	assert.Equal(t, 1, summary.PrimarySales)
	assert.InDelta(t, 200.0, summary.AvgFeeBps, 0.001)
}

func TestProjection_SummarizeEmpty(t *testing.T) {
	p := NewProjection(cache.New(cache.DefaultConfig()))

	summary := p.Summarize()
	assert.Zero(t, summary.Count)
	assert.Zero(t, summary.AvgFeeBps)
}

func TestProjection_StatsAndClear(t *testing.T) {
	p := NewProjection(seedCache(t))

	stats := p.Stats()
	assert.Equal(t, 3, stats.Success)
	assert.Equal(t, 1, stats.Failed)

	p.Clear()
	assert.Zero(t, p.Stats().Total)
}

func TestProjection_Export(t *testing.T) {
	p := NewProjection(seedCache(t))

	raw, err := p.Export()
	require.NoError(t, err)

	var records []struct {
		Mint     string          `json:"mint"`
		Outcome  string          `json:"outcome"`
		Metadata json.RawMessage `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(raw, &records))

	// Failed placeholder included, sorted by mint, no metadata payload.
	require.Len(t, records, 4)
	assert.Equal(t, "mintFailed", records[3].Mint)
	assert.Equal(t, string(cache.OutcomeFailed), records[3].Outcome)
	assert.Empty(t, records[3].Metadata)
}
