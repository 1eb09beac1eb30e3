// Package solana provides the JSON-RPC client used to read on-chain state.
package solana

import "context"

// Commitment is the staleness tolerance requested for account queries,
// from fastest/least-confirmed to slowest/most-confirmed.
type Commitment string

const (
	CommitmentProcessed Commitment = "processed"
	CommitmentConfirmed Commitment = "confirmed"
	CommitmentFinalized Commitment = "finalized"
)

// Client defines the Solana RPC operations consumed by the metadata source.
type Client interface {
	// GetAccountInfo retrieves account info by public key at the given
	// commitment. Returns nil when the account does not exist.
	GetAccountInfo(ctx context.Context, pubkey string, commitment Commitment) (*AccountInfo, error)

	// GetSlot retrieves the current slot.
	GetSlot(ctx context.Context) (int64, error)
}

// AccountInfo represents Solana account information.
type AccountInfo struct {
	Lamports   uint64 `json:"lamports"`
	Owner      string `json:"owner"`
	Data       string `json:"data"` // base64 encoded
	Executable bool   `json:"executable"`
	RentEpoch  uint64 `json:"rentEpoch"`
}
