package harness

// TraceEvent records one scenario call and how it ended.
type TraceEvent struct {
	Seq    int            `json:"seq"` // 1-based step index
	Op     string         `json:"op"`
	Caller string         `json:"caller"`
	Args   map[string]any `json:"args,omitempty"`

	// Outcome is "ok" or the ledger error code.
	Outcome string `json:"outcome"`

	// Result is the flattened call result; nil unless Outcome is "ok".
	Result map[string]any `json:"result,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace contains one event per call, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Journaled is the number of journal entries the run produced.
	Journaled int `json:"journaled"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a call to the trace.
func (r *Result) AddTrace(event TraceEvent) {
	r.Trace = append(r.Trace, event)
}
