package execution

import (
	"time"

	"github.com/oakmere/conductor-core/internal/action"
)

// Record is the observable state of one execution. Snapshots handed to
// callers and event sinks are deep copies; the manager's copy is the
// only one that mutates.
type Record struct {
	RequestID     string         `json:"request_id"`
	DeviceID      string         `json:"device_id"`
	ActionKind    string         `json:"action_kind"`
	Parameters    map[string]any `json:"parameters,omitempty"`
	State         State          `json:"state"`
	Reason        Reason         `json:"reason,omitempty"`
	Result        map[string]any `json:"result,omitempty"`
	Error         string         `json:"error,omitempty"`
	FeedbackCount int            `json:"feedback_count"`
	SubmittedAt   time.Time      `json:"submitted_at"`
	StartedAt     *time.Time     `json:"started_at,omitempty"`
	EndedAt       *time.Time     `json:"ended_at,omitempty"`
}

// DeepCopy returns a fully independent copy of the record.
func (r *Record) DeepCopy() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.Parameters = action.DeepCopyMap(r.Parameters)
	out.Result = action.DeepCopyMap(r.Result)
	if r.StartedAt != nil {
		t := *r.StartedAt
		out.StartedAt = &t
	}
	if r.EndedAt != nil {
		t := *r.EndedAt
		out.EndedAt = &t
	}
	return &out
}

// Feedback is one progress update emitted by a driver. Seq increases
// by one per update within an execution, starting at 1.
type Feedback struct {
	RequestID string         `json:"request_id"`
	DeviceID  string         `json:"device_id"`
	Kind      string         `json:"action_kind"`
	Seq       int            `json:"seq"`
	Payload   map[string]any `json:"payload"`
	At        time.Time      `json:"at"`
}

// Events receives execution lifecycle notifications. Implementations
// must not block; the manager calls them inline on state commits and
// feedback delivery.
type Events interface {
	ExecutionStateChanged(rec Record)
	ExecutionFeedback(fb Feedback)
}

// noopEvents satisfies Events when no sink is wired.
type noopEvents struct{}

func (noopEvents) ExecutionStateChanged(Record) {}
func (noopEvents) ExecutionFeedback(Feedback)   {}
