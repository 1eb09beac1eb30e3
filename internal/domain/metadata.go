package domain

// TokenMetadata is the enriched description of a detected mint.
// On-chain fields come from the SPL mint account and the Metaplex metadata
// account; off-chain fields come from the metadata URI document when the
// on-chain record links one.
type TokenMetadata struct {
	Mint                 string   `json:"mint"`          // token mint address (base58)
	Name                 string   `json:"name"`          // token name, trailing NULs trimmed
	Symbol               string   `json:"symbol"`        // token symbol, trailing NULs trimmed
	URI                  string   `json:"uri,omitempty"` // off-chain metadata URI
	SellerFeeBasisPoints int      `json:"seller_fee_basis_points"`
	Mutable              bool     `json:"mutable"`
	PrimarySaleHappened  bool     `json:"primary_sale_happened"`
	Decimals             int      `json:"decimals"`
	Supply               *float64 `json:"supply,omitempty"` // total supply adjusted for decimals

	// Off-chain document fields. Nullable: the document fetch is best-effort.
	Description *string `json:"description,omitempty"`
	Image       *string `json:"image,omitempty"`
	Twitter     *string `json:"twitter,omitempty"`
	Telegram    *string `json:"telegram,omitempty"`
	Website     *string `json:"website,omitempty"`
	CreatedOn   *string `json:"created_on,omitempty"`

	FetchedAt int64 `json:"fetched_at"` // ms
}

// HasImage reports whether the off-chain document carried a non-empty image.
func (m *TokenMetadata) HasImage() bool {
	return m.Image != nil && *m.Image != ""
}

// HasDescription reports whether the off-chain document carried a non-empty description.
func (m *TokenMetadata) HasDescription() bool {
	return m.Description != nil && *m.Description != ""
}
