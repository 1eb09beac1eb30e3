// Package metadata resolves token metadata from on-chain accounts and the
// linked off-chain document.
package metadata

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"time"

	"mintwatch/internal/domain"
	"mintwatch/internal/enrich"
	"mintwatch/internal/observability"
	"mintwatch/internal/solana"
)

// MetaplexProgramID is the Metaplex Token Metadata program.
const MetaplexProgramID = "metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s"

// Default off-chain fetch limits.
const (
	DefaultOffchainTimeout = 10 * time.Second
	maxOffchainBody        = 1 << 20 // 1 MiB
)

// Source implements enrich.MetadataSource over Solana RPC plus HTTP for the
// off-chain document.
type Source struct {
	rpc        solana.Client
	http       *http.Client
	commitment solana.Commitment
	logger     *log.Logger

	now func() int64 // ms
}

// Options contains configuration for creating a Source.
type Options struct {
	RPC solana.Client

	// HTTPClient fetches off-chain documents. A default client with
	// DefaultOffchainTimeout is used when nil.
	HTTPClient *http.Client

	// Commitment for account queries. Metadata accounts are created in
	// the same slot burst as the mint, so the fastest level is the
	// useful default.
	Commitment solana.Commitment

	Logger *log.Logger
}

// New creates a new metadata source.
func New(opts Options) *Source {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultOffchainTimeout}
	}

	commitment := opts.Commitment
	if commitment == "" {
		commitment = solana.CommitmentProcessed
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Source{
		rpc:        opts.RPC,
		http:       httpClient,
		commitment: commitment,
		logger:     logger,
		now:        func() int64 { return time.Now().UnixMilli() },
	}
}

// Exists reports whether a Metaplex metadata account exists for the mint.
func (s *Source) Exists(ctx context.Context, mint string) (bool, error) {
	pda, err := MetadataPDA(mint)
	if err != nil {
		return false, fmt.Errorf("derive metadata pda: %w", err)
	}

	started := time.Now()
	info, err := s.rpc.GetAccountInfo(ctx, pda, s.commitment)
	observability.RecordSourceLatency("exists", time.Since(started).Seconds())
	if err != nil {
		return false, fmt.Errorf("get metadata account: %w", err)
	}

	return info != nil, nil
}

// Fetch retrieves the full metadata for a mint: the Metaplex account, the
// SPL mint account, and the off-chain document when a URI is linked.
// Returns nil when the metadata account is absent or carries no usable
// descriptive fields.
func (s *Source) Fetch(ctx context.Context, mint string) (*domain.TokenMetadata, error) {
	pda, err := MetadataPDA(mint)
	if err != nil {
		return nil, fmt.Errorf("derive metadata pda: %w", err)
	}

	started := time.Now()
	info, err := s.rpc.GetAccountInfo(ctx, pda, s.commitment)
	observability.RecordSourceLatency("fetch", time.Since(started).Seconds())
	if err != nil {
		return nil, fmt.Errorf("get metadata account: %w", err)
	}
	if info == nil {
		return nil, nil
	}

	record, err := parseMetadataAccount(info.Data)
	if err != nil {
		return nil, fmt.Errorf("parse metadata account for %s: %w", mint, err)
	}
	if record.name == "" {
		// A record without a name is unusable; treat as absent rather
		// than caching an empty success.
		return nil, nil
	}

	meta := &domain.TokenMetadata{
		Mint:                 mint,
		Name:                 record.name,
		Symbol:               record.symbol,
		URI:                  record.uri,
		SellerFeeBasisPoints: record.sellerFeeBasisPoints,
		Mutable:              record.mutable,
		PrimarySaleHappened:  record.primarySaleHappened,
		FetchedAt:            s.now(),
	}

	// Mint account fields are nice-to-have; their absence never fails
	// the fetch.
	if err := s.fillMintFields(ctx, mint, meta); err != nil {
		s.logger.Printf("WARN mint account for %s: %v", mint, err)
	}

	if record.uri != "" {
		if err := s.fillOffchainFields(ctx, record.uri, meta); err != nil {
			s.logger.Printf("WARN off-chain document for %s: %v", mint, err)
		}
	}

	return meta, nil
}

// fillMintFields reads decimals and supply from the SPL mint account.
// SPL Token Mint layout (82 bytes):
// - mintAuthority: Option<Pubkey> (36 bytes: 4 + 32)
// - supply: u64 (8 bytes)
// - decimals: u8 (1 byte)
// - isInitialized: bool (1 byte)
// - freezeAuthority: Option<Pubkey> (36 bytes: 4 + 32)
func (s *Source) fillMintFields(ctx context.Context, mint string, meta *domain.TokenMetadata) error {
	info, err := s.rpc.GetAccountInfo(ctx, mint, s.commitment)
	if err != nil {
		return err
	}
	if info == nil {
		return fmt.Errorf("mint account not found")
	}

	decoded, err := base64.StdEncoding.DecodeString(info.Data)
	if err != nil {
		return fmt.Errorf("decode mint data: %w", err)
	}
	if len(decoded) < 82 {
		return fmt.Errorf("mint data too short: %d", len(decoded))
	}

	supply := leUint64(decoded[36:44])
	decimals := int(decoded[44])

	meta.Decimals = decimals
	supplyFloat := float64(supply) / math.Pow(10, float64(decimals))
	meta.Supply = &supplyFloat

	return nil
}

// offchainDocument is the off-chain metadata JSON shape.
type offchainDocument struct {
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Description string `json:"description"`
	Image       string `json:"image"`
	Twitter     string `json:"twitter"`
	Telegram    string `json:"telegram"`
	Website     string `json:"website"`
	CreatedOn   string `json:"createdOn"`
}

// fillOffchainFields fetches and applies the URI document.
func (s *Source) fillOffchainFields(ctx context.Context, uri string, meta *domain.TokenMetadata) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	started := time.Now()
	resp, err := s.http.Do(req)
	observability.RecordSourceLatency("offchain", time.Since(started).Seconds())
	if err != nil {
		return fmt.Errorf("fetch uri: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var doc offchainDocument
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxOffchainBody)).Decode(&doc); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}

	setIfPresent(&meta.Description, doc.Description)
	setIfPresent(&meta.Image, doc.Image)
	setIfPresent(&meta.Twitter, doc.Twitter)
	setIfPresent(&meta.Telegram, doc.Telegram)
	setIfPresent(&meta.Website, doc.Website)
	setIfPresent(&meta.CreatedOn, doc.CreatedOn)

	return nil
}

func setIfPresent(dst **string, value string) {
	if value != "" {
		v := value
		*dst = &v
	}
}

var _ enrich.MetadataSource = (*Source)(nil)
