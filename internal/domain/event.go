package domain

// MintEvent is produced once per matching create instruction.
// Signature and slot are immutable provenance; repeat detections of the same
// mint are expected and deduplicated downstream by the cache, not here.
type MintEvent struct {
	Signature  string `json:"signature"`   // transaction signature (base58)
	Slot       int64  `json:"slot"`        // slot the transaction landed in
	Mint       string `json:"mint"`        // newly created mint address (base58)
	DetectedAt int64  `json:"detected_at"` // detection time (ms)
}
