package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	"mintwatch/internal/domain"
)

func TestDispatcher_ProcessesEvents(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[string]int)

	d := NewDispatcher(DispatcherOptions{
		Workers: 4,
		Enrich: func(_ context.Context, mint string) {
			mu.Lock()
			seen[mint]++
			mu.Unlock()
		},
	})
	d.Start()

	mints := []string{"a", "b", "c", "d", "e"}
	for _, m := range mints {
		if !d.Submit(&domain.MintEvent{Mint: m}) {
			t.Fatalf("Submit(%s) rejected", m)
		}
	}

	d.Stop()

	mu.Lock()
	defer mu.Unlock()
	for _, m := range mints {
		if seen[m] != 1 {
			t.Errorf("mint %s processed %d times, want 1", m, seen[m])
		}
	}
}

func TestDispatcher_SubmitNeverBlocks(t *testing.T) {
	block := make(chan struct{})

	d := NewDispatcher(DispatcherOptions{
		QueueSize: 2,
		Workers:   1,
		Enrich: func(_ context.Context, _ string) {
			<-block
		},
	})
	d.Start()

	// Fill the worker plus the queue, then overflow.
	accepted := 0
	for i := 0; i < 10; i++ {
		done := make(chan bool, 1)
		go func() {
			done <- d.Submit(&domain.MintEvent{Mint: "m"})
		}()
		select {
		case ok := <-done:
			if ok {
				accepted++
			}
		case <-time.After(time.Second):
			t.Fatal("Submit blocked")
		}
	}

	if accepted >= 10 {
		t.Error("expected overflow drops with a full queue")
	}

	close(block)
	d.Stop()
}

func TestDispatcher_SubmitAfterStop(t *testing.T) {
	d := NewDispatcher(DispatcherOptions{
		Workers: 1,
		Enrich:  func(context.Context, string) {},
	})
	d.Start()
	d.Stop()

	if d.Submit(&domain.MintEvent{Mint: "late"}) {
		t.Error("Submit after Stop must be rejected")
	}

	// Stop is idempotent.
	d.Stop()
}

func TestDispatcher_StopDrainsQueue(t *testing.T) {
	var mu sync.Mutex
	processed := 0

	d := NewDispatcher(DispatcherOptions{
		QueueSize: 64,
		Workers:   2,
		Enrich: func(_ context.Context, _ string) {
			time.Sleep(time.Millisecond)
			mu.Lock()
			processed++
			mu.Unlock()
		},
	})
	d.Start()

	submitted := 0
	for i := 0; i < 20; i++ {
		if d.Submit(&domain.MintEvent{Mint: "m"}) {
			submitted++
		}
	}

	d.Stop()

	mu.Lock()
	defer mu.Unlock()
	if processed != submitted {
		t.Errorf("processed %d of %d submitted events", processed, submitted)
	}
}
