package ingest

import (
	"testing"

	"github.com/mr-tron/base58"

	"mintwatch/internal/bus"
	"mintwatch/internal/domain"
	"mintwatch/internal/stream"
)

// collectSink records submitted events.
type collectSink struct {
	events []*domain.MintEvent
}

func (s *collectSink) Submit(event *domain.MintEvent) bool {
	s.events = append(s.events, event)
	return true
}

func mustDecode(t *testing.T, s string) []byte {
	t.Helper()
	b, err := base58.Decode(s)
	if err != nil {
		t.Fatalf("decode %s: %v", s, err)
	}
	return b
}

// matchingUpdate builds an update that passes every filter, with the new
// mint at account key index 3.
func matchingUpdate(t *testing.T, mint []byte) *stream.TransactionUpdate {
	t.Helper()

	payer := make([]byte, 32)
	payer[0] = 9

	return &stream.TransactionUpdate{
		Filters: []string{"pumpfun-create"},
		Slot:    "348765432",
		Transaction: &stream.TransactionInfo{
			Signature: []byte("fake-signature-bytes"),
			Message: &stream.TransactionMessage{
				AccountKeys: [][]byte{
					payer,
					mustDecode(t, PumpFunProgram),
					mustDecode(t, PumpFunMintAuthority),
					mint,
				},
				Instructions: []stream.CompiledInstruction{
					{
						// Unrelated instruction first.
						ProgramIDIndex: 0,
						Accounts:       []byte{0},
						Data:           []byte{1, 2, 3, 4, 5, 6, 7, 8, 9},
					},
					{
						ProgramIDIndex: 1,
						Accounts:       []byte{3, 2, 0},
						Data:           append([]byte{24, 30, 200, 40, 5, 28, 7, 119}, 0xAA, 0xBB),
					},
				},
			},
		},
	}
}

func newTestIngestor(sink Sink, b *bus.Bus) *Ingestor {
	return NewIngestor(IngestorOptions{
		FilterName: "pumpfun-create",
		Sink:       sink,
		Notifier:   b,
	})
}

func TestIngestor_MatchingCreateInstruction(t *testing.T) {
	mint := make([]byte, 32)
	mint[31] = 7

	sink := &collectSink{}
	ing := newTestIngestor(sink, nil)

	ing.HandleUpdate(matchingUpdate(t, mint))

	if len(sink.events) != 1 {
		t.Fatalf("events: got %d, want 1", len(sink.events))
	}

	event := sink.events[0]
	if event.Mint != base58.Encode(mint) {
		t.Errorf("mint: got %s, want %s", event.Mint, base58.Encode(mint))
	}
	if event.Signature != base58.Encode([]byte("fake-signature-bytes")) {
		t.Errorf("signature mismatch: %s", event.Signature)
	}
	if event.Slot != 348765432 {
		t.Errorf("slot: got %d, want 348765432", event.Slot)
	}
}

func TestIngestor_PublishesDetectionNotification(t *testing.T) {
	mint := make([]byte, 32)
	mint[0] = 1

	b := bus.New()
	var got *domain.MintEvent
	b.Subscribe(bus.TopicMintDetected, func(payload interface{}) {
		got = payload.(*domain.MintEvent)
	})

	ing := newTestIngestor(&collectSink{}, b)
	ing.HandleUpdate(matchingUpdate(t, mint))

	if got == nil {
		t.Fatal("expected a mint detected notification")
	}
	if got.Mint != base58.Encode(mint) {
		t.Errorf("notified mint mismatch: %s", got.Mint)
	}
}

func TestIngestor_RejectsNonMatching(t *testing.T) {
	mint := make([]byte, 32)

	cases := []struct {
		name   string
		mutate func(u *stream.TransactionUpdate)
	}{
		{"no transaction payload", func(u *stream.TransactionUpdate) {
			u.Transaction = nil
		}},
		{"no message", func(u *stream.TransactionUpdate) {
			u.Transaction.Message = nil
		}},
		{"wrong filter tag", func(u *stream.TransactionUpdate) {
			u.Filters = []string{"other-filter"}
		}},
		{"no discriminator match", func(u *stream.TransactionUpdate) {
			u.Transaction.Message.Instructions[1].Data[0] = 0
		}},
		{"short instruction data", func(u *stream.TransactionUpdate) {
			u.Transaction.Message.Instructions[1].Data = []byte{24, 30}
		}},
		{"missing mint authority", func(u *stream.TransactionUpdate) {
			u.Transaction.Message.AccountKeys[2] = make([]byte, 32)
		}},
		{"missing program id", func(u *stream.TransactionUpdate) {
			u.Transaction.Message.AccountKeys[1] = make([]byte, 32)
		}},
		{"operand index out of range", func(u *stream.TransactionUpdate) {
			u.Transaction.Message.Instructions[1].Accounts = []byte{}
		}},
		{"key index out of range", func(u *stream.TransactionUpdate) {
			u.Transaction.Message.Instructions[1].Accounts = []byte{200}
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sink := &collectSink{}
			ing := newTestIngestor(sink, nil)

			update := matchingUpdate(t, mint)
			tc.mutate(update)
			ing.HandleUpdate(update)

			if len(sink.events) != 0 {
				t.Errorf("expected silent drop, got %d events", len(sink.events))
			}
		})
	}
}

func TestIngestor_EmptyFilterNameAcceptsAnyTag(t *testing.T) {
	mint := make([]byte, 32)

	sink := &collectSink{}
	ing := NewIngestor(IngestorOptions{Sink: sink})

	update := matchingUpdate(t, mint)
	update.Filters = nil
	ing.HandleUpdate(update)

	if len(sink.events) != 1 {
		t.Fatalf("events: got %d, want 1", len(sink.events))
	}
}

func TestIngestor_DuplicateDetectionsNotSuppressed(t *testing.T) {
	mint := make([]byte, 32)
	mint[5] = 5

	sink := &collectSink{}
	ing := newTestIngestor(sink, nil)

	// The same mint detected twice yields two events; dedup is the
	// cache's job, not the ingestor's.
	ing.HandleUpdate(matchingUpdate(t, mint))
	ing.HandleUpdate(matchingUpdate(t, mint))

	if len(sink.events) != 2 {
		t.Fatalf("events: got %d, want 2", len(sink.events))
	}
}

func TestParseSlot(t *testing.T) {
	if got := parseSlot("123456"); got != 123456 {
		t.Errorf("parseSlot: got %d, want 123456", got)
	}
	if got := parseSlot("not-a-slot"); got != 0 {
		t.Errorf("malformed slot should parse to 0, got %d", got)
	}
}
