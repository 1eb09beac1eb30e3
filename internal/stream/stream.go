// Package stream delivers raw transaction updates from the wire transport.
package stream

import "context"

// Subscriber defines the inbound transaction stream interface.
type Subscriber interface {
	// SubscribeTransactions subscribes to transactions matching the filter.
	SubscribeTransactions(ctx context.Context, filter TransactionFilter) (<-chan *TransactionUpdate, error)

	// Close closes the underlying connection.
	Close() error
}

// TransactionFilter defines a subscription filter.
type TransactionFilter struct {
	// Name is the filter tag attached to matching updates.
	Name string

	// AccountsInclude restricts delivery to transactions whose account
	// keys mention all of these addresses.
	AccountsInclude []string
}

// TransactionUpdate is a raw transaction notification as delivered by the
// transport. Updates that carry no transaction payload have a nil Transaction.
type TransactionUpdate struct {
	Filters     []string // filter tags this update matched
	Slot        string   // decimal slot as delivered by the transport
	Transaction *TransactionInfo
}

// TransactionInfo is the transaction payload of an update.
type TransactionInfo struct {
	Signature []byte
	Message   *TransactionMessage
}

// TransactionMessage holds the account key table and compiled instructions.
type TransactionMessage struct {
	AccountKeys  [][]byte
	Instructions []CompiledInstruction
}

// CompiledInstruction references its program and accounts through indices
// into the transaction's account key table.
type CompiledInstruction struct {
	ProgramIDIndex uint32
	Accounts       []byte // operand indices into the account key table
	Data           []byte
}
