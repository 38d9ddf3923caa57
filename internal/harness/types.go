package harness

// TraceStep records one dispatch of a scenario run.
type TraceStep struct {
	// Tick is the dispatch number from the deterministic clock.
	Tick int64 `json:"tick"`

	// Event is the type of the (last) dispatched event.
	Event string `json:"event"`

	// Events is the number of events in the dispatch, >1 for batches.
	Events int `json:"events"`

	// Changed is false when the state reference survived the dispatch.
	Changed bool `json:"changed"`

	// State is the state after the dispatch.
	State any `json:"state,omitempty"`

	// Error is the dispatch error, if any.
	Error string `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall scenario success.
	Pass bool `json:"pass"`

	// Trace has one step per dispatch of the scenario's events. Assertion
	// dispatches are not traced.
	Trace []TraceStep `json:"trace"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State is the state after the scenario's events.
	State any `json:"state,omitempty"`

	// StateHash is the canonical hash of State, as verified by replaying
	// the journal.
	StateHash string `json:"state_hash,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceStep{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddStep appends a dispatch to the trace.
func (r *Result) AddStep(step TraceStep) {
	r.Trace = append(r.Trace, step)
}
