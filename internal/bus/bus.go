// Package bus provides a minimal in-process notification bus.
package bus

import "sync"

// Topics published by the core.
const (
	// TopicMintDetected carries a *domain.MintEvent for every matched
	// create instruction, before enrichment starts.
	TopicMintDetected = "mint_detected"

	// TopicMetadataFound carries an enrich.MetadataFound after every
	// successful enrichment.
	TopicMetadataFound = "metadata_found"
)

// Handler consumes a published notification payload.
type Handler func(payload interface{})

// Bus dispatches named notifications to registered handlers.
// Publish is synchronous; handlers must not block.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{handlers: make(map[string][]Handler)}
}

// Subscribe registers a handler for a topic.
func (b *Bus) Subscribe(topic string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[topic] = append(b.handlers[topic], h)
}

// Publish delivers payload to every handler registered for topic.
// Publishing to a topic with no handlers is a no-op.
func (b *Bus) Publish(topic string, payload interface{}) {
	b.mu.RLock()
	handlers := b.handlers[topic]
	b.mu.RUnlock()

	for _, h := range handlers {
		h(payload)
	}
}
