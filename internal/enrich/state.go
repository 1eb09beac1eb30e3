package enrich

// runState is the state of a single enrichment run.
// A run begins idle, probes for the on-chain record, fetches the full
// metadata once the record exists, and ends either succeeded or exhausted.
// Failed attempts loop back to idle until the attempt budget is spent.
type runState int

const (
	runIdle runState = iota
	runProbing
	runFetching
	runSucceeded
	runExhausted
)

func (s runState) String() string {
	switch s {
	case runIdle:
		return "idle"
	case runProbing:
		return "probing"
	case runFetching:
		return "fetching"
	case runSucceeded:
		return "succeeded"
	case runExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// enrichmentRun tracks attempt progress for one mint.
type enrichmentRun struct {
	mint    string
	budget  int // maximum attempts
	attempt int // attempts started so far
	state   runState
}

func newRun(mint string, budget int) *enrichmentRun {
	return &enrichmentRun{mint: mint, budget: budget, state: runIdle}
}

// done reports whether the run reached a terminal state.
func (r *enrichmentRun) done() bool {
	return r.state == runSucceeded || r.state == runExhausted
}

// beginAttempt starts the next attempt. Only valid from idle.
func (r *enrichmentRun) beginAttempt() {
	if r.state != runIdle {
		return
	}
	r.attempt++
	r.state = runProbing
}

// recordExists moves a probing run on to the full fetch.
func (r *enrichmentRun) recordExists() {
	if r.state == runProbing {
		r.state = runFetching
	}
}

// attemptFailed ends the current attempt: back to idle when budget remains,
// exhausted otherwise.
func (r *enrichmentRun) attemptFailed() {
	if r.state != runProbing && r.state != runFetching {
		return
	}
	if r.attempt >= r.budget {
		r.state = runExhausted
		return
	}
	r.state = runIdle
}

// recordSuccess ends the run after a successful fetch.
func (r *enrichmentRun) recordSuccess() {
	if r.state == runFetching {
		r.state = runSucceeded
	}
}
