package run

import (
	"time"

	"github.com/oakmere/conductor-core/internal/action"
	"github.com/oakmere/conductor-core/internal/execution"
)

// FailurePolicy decides what happens to the rest of a run when a step
// fails.
type FailurePolicy string

const (
	// PolicyAbortOnFirstFailure stops submitting steps after the first
	// failure and cancels steps already in flight.
	PolicyAbortOnFirstFailure FailurePolicy = "abort_on_first_failure"

	// PolicyContinueOnFailure runs every step regardless of earlier
	// failures.
	PolicyContinueOnFailure FailurePolicy = "continue_on_failure"

	// PolicyRetryThenAbort retries a failed step up to the run's retry
	// budget, then aborts like PolicyAbortOnFirstFailure.
	PolicyRetryThenAbort FailurePolicy = "retry_then_abort"
)

func (p FailurePolicy) valid() bool {
	switch p {
	case PolicyAbortOnFirstFailure, PolicyContinueOnFailure, PolicyRetryThenAbort:
		return true
	}
	return false
}

// Status is the lifecycle state of a run.
type Status string

const (
	StatusPending         Status = "pending"
	StatusRunning         Status = "running"
	StatusSucceeded       Status = "succeeded"
	StatusPartiallyFailed Status = "partially_failed"
	StatusAborted         Status = "aborted"
)

// Terminal reports whether the run has finished.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusPartiallyFailed, StatusAborted:
		return true
	}
	return false
}

// Step is one goal in a run. Steps targeting the same device execute
// sequentially in declaration order; steps on distinct devices run in
// parallel. DependsOn lists indices of earlier steps that must succeed
// before this one starts, regardless of device.
type Step struct {
	DeviceID   string         `json:"device_id"`
	Kind       string         `json:"action_kind"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Timeout    time.Duration  `json:"-"`
	DependsOn  []int          `json:"depends_on,omitempty"`
}

// Request describes a run to execute. RunID may be empty; one is
// assigned on acceptance. MaxRetries only applies under
// PolicyRetryThenAbort and counts retries per step, not submissions.
type Request struct {
	RunID      string        `json:"run_id,omitempty"`
	Policy     FailurePolicy `json:"failure_policy"`
	MaxRetries int           `json:"max_retries,omitempty"`
	Steps      []Step        `json:"steps"`
}

// StepOutcome is the recorded result of one step. SubmissionSeq is the
// global order the step's first submission happened in, which is the
// evidence for failure-policy guarantees. Skipped steps were never
// submitted.
type StepOutcome struct {
	Index         int             `json:"index"`
	SubmissionSeq int             `json:"submission_seq,omitempty"`
	RequestID     string          `json:"request_id,omitempty"`
	DeviceID      string          `json:"device_id"`
	Kind          string          `json:"action_kind"`
	Attempts      int             `json:"attempts"`
	State         execution.State `json:"state,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	Result        map[string]any  `json:"result,omitempty"`
	Error         string          `json:"error,omitempty"`
	Skipped       bool            `json:"skipped,omitempty"`
}

// Run is the observable state of a run.
type Run struct {
	ID          string        `json:"run_id"`
	Policy      FailurePolicy `json:"failure_policy"`
	Status      Status        `json:"status"`
	StepsTotal  int           `json:"steps_total"`
	Steps       []StepOutcome `json:"steps"`
	CreatedAt   time.Time     `json:"created_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// DeepCopy returns an independent copy of the run.
func (r *Run) DeepCopy() *Run {
	if r == nil {
		return nil
	}
	out := *r
	out.Steps = make([]StepOutcome, len(r.Steps))
	for i, s := range r.Steps {
		s.Result = action.DeepCopyMap(s.Result)
		out.Steps[i] = s
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}
