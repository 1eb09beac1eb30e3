package enrich

import "testing"

func TestRun_SuccessPath(t *testing.T) {
	run := newRun("mint1", 3)

	run.beginAttempt()
	if run.state != runProbing || run.attempt != 1 {
		t.Fatalf("after beginAttempt: state=%s attempt=%d", run.state, run.attempt)
	}

	run.recordExists()
	if run.state != runFetching {
		t.Fatalf("after recordExists: state=%s", run.state)
	}

	run.recordSuccess()
	if run.state != runSucceeded || !run.done() {
		t.Fatalf("after recordSuccess: state=%s", run.state)
	}
}

func TestRun_ExhaustsBudget(t *testing.T) {
	run := newRun("mint1", 3)

	for i := 0; i < 2; i++ {
		run.beginAttempt()
		run.attemptFailed()
		if run.state != runIdle {
			t.Fatalf("attempt %d should loop back to idle, got %s", i+1, run.state)
		}
	}

	run.beginAttempt()
	run.attemptFailed()
	if run.state != runExhausted || !run.done() {
		t.Fatalf("third failure should exhaust, got %s", run.state)
	}
	if run.attempt != 3 {
		t.Errorf("attempt: got %d, want 3", run.attempt)
	}
}

func TestRun_FetchFailureConsumesAttempt(t *testing.T) {
	run := newRun("mint1", 2)

	run.beginAttempt()
	run.recordExists()
	run.attemptFailed() // fetch failed
	if run.state != runIdle {
		t.Fatalf("fetch failure with budget left should go idle, got %s", run.state)
	}

	run.beginAttempt()
	run.recordExists()
	run.attemptFailed()
	if run.state != runExhausted {
		t.Fatalf("final fetch failure should exhaust, got %s", run.state)
	}
}

func TestRun_InvalidTransitionsAreNoOps(t *testing.T) {
	run := newRun("mint1", 1)

	// recordExists and recordSuccess before any attempt do nothing.
	run.recordExists()
	run.recordSuccess()
	if run.state != runIdle {
		t.Fatalf("state: got %s, want idle", run.state)
	}

	run.beginAttempt()
	run.beginAttempt() // second call ignored while probing
	if run.attempt != 1 {
		t.Errorf("attempt: got %d, want 1", run.attempt)
	}
}
