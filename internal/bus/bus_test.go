package bus

import (
	"sync"
	"testing"
)

func TestBus_PublishToSubscribers(t *testing.T) {
	b := New()

	var got []interface{}
	b.Subscribe("topic", func(payload interface{}) {
		got = append(got, payload)
	})
	b.Subscribe("topic", func(payload interface{}) {
		got = append(got, payload)
	})

	b.Publish("topic", "hello")

	if len(got) != 2 {
		t.Fatalf("deliveries: got %d, want 2", len(got))
	}
	if got[0] != "hello" || got[1] != "hello" {
		t.Errorf("unexpected payloads: %v", got)
	}
}

func TestBus_PublishWithoutSubscribers(t *testing.T) {
	b := New()
	// Must not panic or block.
	b.Publish("nobody-listening", 42)
}

func TestBus_TopicsAreIndependent(t *testing.T) {
	b := New()

	calls := 0
	b.Subscribe("a", func(interface{}) { calls++ })

	b.Publish("b", nil)
	if calls != 0 {
		t.Error("handler for topic a must not see topic b")
	}

	b.Publish("a", nil)
	if calls != 1 {
		t.Errorf("calls: got %d, want 1", calls)
	}
}

func TestBus_ConcurrentPublish(t *testing.T) {
	b := New()

	var mu sync.Mutex
	count := 0
	b.Subscribe("topic", func(interface{}) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Publish("topic", nil)
		}()
	}
	wg.Wait()

	if count != 32 {
		t.Errorf("count: got %d, want 32", count)
	}
}
