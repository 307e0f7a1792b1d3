package harness

// TraceEvent records one executed step and what the engine answered.
//
// Items is a compact, ordered rendering of the response: push results as
// "id:status[:message]", pulled entries as "type:id:action@timestamp",
// snapshot contents as "type:id", verifier issues as "type:id: message".
type TraceEvent struct {
	Seq             int64    `json:"seq"`
	Op              string   `json:"op"`
	As              string   `json:"as,omitempty"`
	Circle          string   `json:"circle,omitempty"`
	Items           []string `json:"items,omitempty"`
	ServerTimestamp string   `json:"server_timestamp,omitempty"`
	HasMore         bool     `json:"has_more,omitempty"`
	Error           string   `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace lists the executed steps in order.
	Trace []TraceEvent `json:"trace"`

	// Errors describes every failed expectation. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing result with an empty trace.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failed expectation and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// addTrace appends ev with the next sequence number.
func (r *Result) addTrace(ev TraceEvent) {
	ev.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, ev)
}
