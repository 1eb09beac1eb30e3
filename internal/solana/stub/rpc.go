// Package stub provides an in-memory solana.Client for testing.
package stub

import (
	"context"
	"sync"

	"mintwatch/internal/solana"
)

// RPCClient implements solana.Client backed by maps.
type RPCClient struct {
	mu       sync.Mutex
	Accounts map[string]*solana.AccountInfo
	Errs     map[string]error // per-pubkey error injection
	Slot     int64

	calls []string
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Accounts: make(map[string]*solana.AccountInfo),
		Errs:     make(map[string]error),
	}
}

// GetAccountInfo returns the configured account info, or nil when absent.
func (c *RPCClient) GetAccountInfo(_ context.Context, pubkey string, _ solana.Commitment) (*solana.AccountInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls = append(c.calls, pubkey)
	if err, ok := c.Errs[pubkey]; ok {
		return nil, err
	}
	return c.Accounts[pubkey], nil
}

// GetSlot returns the configured slot.
func (c *RPCClient) GetSlot(_ context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Slot, nil
}

// SetAccount configures account info for a pubkey.
func (c *RPCClient) SetAccount(pubkey string, info *solana.AccountInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Accounts[pubkey] = info
}

// SetError injects an error for a pubkey.
func (c *RPCClient) SetError(pubkey string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Errs[pubkey] = err
}

// Calls returns the pubkeys queried so far, in order.
func (c *RPCClient) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.calls))
	copy(out, c.calls)
	return out
}

var _ solana.Client = (*RPCClient)(nil)
