// Package ingest consumes the raw transaction stream, detects pump.fun
// create instructions, and dispatches detected mints for enrichment.
package ingest

import (
	"bytes"
	"context"
	"log"
	"strconv"
	"time"

	"github.com/mr-tron/base58"

	"mintwatch/internal/bus"
	"mintwatch/internal/domain"
	"mintwatch/internal/observability"
	"mintwatch/internal/stream"
)

// Pump.fun program constants.
const (
	// PumpFunProgram is the pump.fun bonding-curve program.
	PumpFunProgram = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"

	// PumpFunMintAuthority signs every pump.fun mint creation.
	PumpFunMintAuthority = "TSLvdd1pWpHVjahSpsvCXUbgwsL3JAcvokwaKt1eokM"

	// mintAccountIndex is the operand position of the new mint in the
	// create instruction's account list.
	mintAccountIndex = 0
)

// createDiscriminator is the 8-byte prefix of the pump.fun create instruction.
var createDiscriminator = []byte{24, 30, 200, 40, 5, 28, 7, 119}

// Sink receives detected mint events. Submit must not block; it reports
// whether the event was accepted.
type Sink interface {
	Submit(event *domain.MintEvent) bool
}

// Ingestor filters and decodes raw transaction updates into mint events.
type Ingestor struct {
	filterName string
	sink       Sink
	notifier   *bus.Bus // optional
	logger     *log.Logger

	now func() int64 // ms
}

// IngestorOptions contains configuration for creating an Ingestor.
type IngestorOptions struct {
	// FilterName is the subscription filter tag updates must carry.
	// Empty accepts updates regardless of tag.
	FilterName string
	Sink       Sink
	Notifier   *bus.Bus
	Logger     *log.Logger
}

// NewIngestor creates a new stream ingestor.
func NewIngestor(opts IngestorOptions) *Ingestor {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Ingestor{
		filterName: opts.FilterName,
		sink:       opts.Sink,
		notifier:   opts.Notifier,
		logger:     logger,
		now:        func() int64 { return time.Now().UnixMilli() },
	}
}

// Run consumes updates until the channel closes or the context is cancelled.
// Enrichment work never blocks this loop; the sink absorbs or drops it.
func (i *Ingestor) Run(ctx context.Context, updates <-chan *stream.TransactionUpdate) error {
	i.logger.Println("Ingestor started")

	for {
		select {
		case <-ctx.Done():
			i.logger.Println("Ingestor stopping...")
			return ctx.Err()

		case update, ok := <-updates:
			if !ok {
				i.logger.Println("Update channel closed")
				return nil
			}
			i.HandleUpdate(update)
		}
	}
}

// HandleUpdate inspects one raw update and emits a MintEvent on a match.
// Non-matching updates of any kind are dropped silently.
func (i *Ingestor) HandleUpdate(update *stream.TransactionUpdate) {
	observability.RecordUpdateReceived()

	event, ok := i.decode(update)
	if !ok {
		return
	}

	observability.RecordMintDetected()

	if i.notifier != nil {
		i.notifier.Publish(bus.TopicMintDetected, event)
	}

	if i.sink != nil {
		i.sink.Submit(event)
	}
}

// decode applies the shape, filter-tag, discriminator, and required-account
// checks and resolves the mint address.
func (i *Ingestor) decode(update *stream.TransactionUpdate) (*domain.MintEvent, bool) {
	if update == nil || update.Transaction == nil || update.Transaction.Message == nil {
		return nil, false
	}

	if i.filterName != "" && !hasFilter(update.Filters, i.filterName) {
		return nil, false
	}

	msg := update.Transaction.Message

	// The subscription already filters on these accounts, but a reconnect
	// can replay unfiltered backlog; re-check before trusting the match.
	if !hasRequiredAccounts(msg.AccountKeys) {
		return nil, false
	}

	ins, ok := findCreateInstruction(msg)
	if !ok {
		return nil, false
	}

	if int(mintAccountIndex) >= len(ins.Accounts) {
		return nil, false
	}
	keyIndex := int(ins.Accounts[mintAccountIndex])
	if keyIndex >= len(msg.AccountKeys) || len(msg.AccountKeys[keyIndex]) == 0 {
		return nil, false
	}

	event := &domain.MintEvent{
		Signature:  base58.Encode(update.Transaction.Signature),
		Slot:       parseSlot(update.Slot),
		Mint:       base58.Encode(msg.AccountKeys[keyIndex]),
		DetectedAt: i.now(),
	}
	return event, true
}

// findCreateInstruction scans for an instruction whose data starts with the
// create discriminator.
func findCreateInstruction(msg *stream.TransactionMessage) (*stream.CompiledInstruction, bool) {
	for idx := range msg.Instructions {
		ins := &msg.Instructions[idx]
		if len(ins.Data) < len(createDiscriminator) {
			continue
		}
		if bytes.Equal(ins.Data[:len(createDiscriminator)], createDiscriminator) {
			return ins, true
		}
	}
	return nil, false
}

// hasRequiredAccounts checks that the program id and the mint authority both
// appear among the transaction's account keys.
func hasRequiredAccounts(keys [][]byte) bool {
	foundProgram := false
	foundAuthority := false

	for _, key := range keys {
		if len(key) == 0 {
			continue
		}
		encoded := base58.Encode(key)
		switch encoded {
		case PumpFunProgram:
			foundProgram = true
		case PumpFunMintAuthority:
			foundAuthority = true
		}
		if foundProgram && foundAuthority {
			return true
		}
	}
	return false
}

func hasFilter(filters []string, name string) bool {
	for _, f := range filters {
		if f == name {
			return true
		}
	}
	return false
}

// parseSlot converts the transport's decimal slot string; malformed slots
// become 0 rather than rejecting the event.
func parseSlot(s string) int64 {
	slot, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return slot
}
