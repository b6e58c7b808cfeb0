package run

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/oakmere/conductor-core/internal/action"
	"github.com/oakmere/conductor-core/internal/admission"
	"github.com/oakmere/conductor-core/internal/execution"
)

// Logger is the minimal logging interface this package needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(msg string, args ...any) {}
func (noopLogger) Info(msg string, args ...any)  {}
func (noopLogger) Warn(msg string, args ...any)  {}
func (noopLogger) Error(msg string, args ...any) {}

// errStepFailed signals lane abortion through the errgroup. It never
// escapes Execute.
var errStepFailed = errors.New("run: step failed")

// retainRuns caps how many finished runs stay in memory. Older ones
// are evicted oldest first and remain reachable through the store.
const retainRuns = 128

// Orchestrator executes multi-step runs against the execution manager.
//
// Steps are partitioned into per-device lanes. Within a lane steps run
// strictly in declaration order; lanes run in parallel. A step with
// dependencies waits for them to succeed before it is submitted, and is
// skipped if any dependency did not succeed.
type Orchestrator struct {
	manager *execution.Manager
	repo    Repository
	logger  Logger

	mu       sync.RWMutex
	runs     map[string]*runState
	finished []string
}

// runState is the orchestrator's live view of one run. rec is guarded
// by mu.
type runState struct {
	mu  sync.Mutex
	rec *Run
}

// NewOrchestrator creates an orchestrator over an execution manager.
// repo may be nil to skip persistence.
func NewOrchestrator(manager *execution.Manager, repo Repository, logger Logger) *Orchestrator {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Orchestrator{
		manager: manager,
		repo:    repo,
		logger:  logger,
		runs:    make(map[string]*runState),
	}
}

// validate checks a run request before any step is submitted.
func validate(req *Request) error {
	if len(req.Steps) == 0 {
		return ErrNoSteps
	}
	if !req.Policy.valid() {
		return fmt.Errorf("%w: %q", ErrUnknownPolicy, req.Policy)
	}
	for i, step := range req.Steps {
		for _, dep := range step.DependsOn {
			if dep < 0 || dep >= i {
				return fmt.Errorf("%w: step %d depends on %d", ErrInvalidDependency, i, dep)
			}
		}
	}
	return nil
}

// Execute runs a request to completion and returns the final run
// record. It blocks until every submitted step reaches a terminal
// state; callers wanting fire-and-forget run it in a goroutine and poll
// Get.
func (o *Orchestrator) Execute(ctx context.Context, req *Request) (*Run, error) {
	rs, err := o.register(req)
	if err != nil {
		return nil, err
	}

	o.executeSteps(ctx, rs, req)
	o.finish(rs)
	return rs.snapshot(), nil
}

// Submit validates and registers a run, then executes it in the
// background. The returned run ID is queryable via Get immediately;
// done, if non-nil, receives the final record once the run settles.
func (o *Orchestrator) Submit(req *Request, done func(Run)) (string, error) {
	rs, err := o.register(req)
	if err != nil {
		return "", err
	}

	go func() {
		o.executeSteps(context.Background(), rs, req)
		o.finish(rs)
		if done != nil {
			done(*rs.snapshot())
		}
	}()
	return rs.rec.ID, nil
}

func (o *Orchestrator) register(req *Request) (*runState, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	runID := req.RunID
	if runID == "" {
		runID = "run-" + uuid.NewString()
	}

	rs := &runState{
		rec: &Run{
			ID:         runID,
			Policy:     req.Policy,
			Status:     StatusRunning,
			StepsTotal: len(req.Steps),
			Steps:      make([]StepOutcome, len(req.Steps)),
			CreatedAt:  time.Now().UTC(),
		},
	}
	for i, step := range req.Steps {
		rs.rec.Steps[i] = StepOutcome{
			Index:    i,
			DeviceID: step.DeviceID,
			Kind:     step.Kind,
			Skipped:  true,
		}
	}

	o.mu.Lock()
	if _, exists := o.runs[runID]; exists {
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrDuplicateRun, runID)
	}
	o.runs[runID] = rs
	o.mu.Unlock()

	o.logger.Info("run started", "run_id", runID,
		"policy", string(req.Policy), "steps", len(req.Steps))
	return rs, nil
}

// executeSteps drives all lanes of the run. stepOK[i] reports success
// and stepDone[i] closes once step i is settled, whether it ran,
// failed, or was skipped.
func (o *Orchestrator) executeSteps(ctx context.Context, rs *runState, req *Request) {
	n := len(req.Steps)
	stepDone := make([]chan struct{}, n)
	stepOK := make([]atomic.Bool, n)
	for i := range stepDone {
		stepDone[i] = make(chan struct{})
	}
	var submissionSeq atomic.Int64

	lanes := laneOrder(req.Steps)
	g, gctx := errgroup.WithContext(ctx)
	for _, lane := range lanes {
		indices := lane
		g.Go(func() error {
			var laneErr error
			for _, i := range indices {
				if laneErr != nil || mustSkip(gctx, req.Steps[i], stepDone, stepOK) {
					close(stepDone[i])
					continue
				}
				ok := o.runStep(gctx, rs, req, i, &submissionSeq)
				stepOK[i].Store(ok)
				close(stepDone[i])
				if !ok && req.Policy != PolicyContinueOnFailure {
					laneErr = errStepFailed
				}
			}
			return laneErr
		})
	}
	_ = g.Wait() //nolint:errcheck // failures are recorded per step
}

// laneOrder groups step indices by device, preserving declaration
// order, and returns lanes sorted by their first step for stable
// submission order.
func laneOrder(steps []Step) [][]int {
	byDevice := make(map[string][]int)
	for i, s := range steps {
		byDevice[s.DeviceID] = append(byDevice[s.DeviceID], i)
	}
	lanes := make([][]int, 0, len(byDevice))
	for _, indices := range byDevice {
		lanes = append(lanes, indices)
	}
	sort.Slice(lanes, func(a, b int) bool { return lanes[a][0] < lanes[b][0] })
	return lanes
}

// mustSkip reports whether a step cannot run: the run context is gone,
// or a dependency settled without success. It blocks until all
// dependencies settle.
func mustSkip(ctx context.Context, step Step, stepDone []chan struct{}, stepOK []atomic.Bool) bool {
	for _, dep := range step.DependsOn {
		select {
		case <-stepDone[dep]:
			if !stepOK[dep].Load() {
				return true
			}
		case <-ctx.Done():
			return true
		}
	}
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// runStep submits one step, awaits its terminal record, and retries
// under PolicyRetryThenAbort. Returns whether the step succeeded.
func (o *Orchestrator) runStep(ctx context.Context, rs *runState, req *Request, i int, submissionSeq *atomic.Int64) bool {
	step := req.Steps[i]
	maxAttempts := 1
	if req.Policy == PolicyRetryThenAbort {
		maxAttempts = 1 + req.MaxRetries
	}

	outcome := StepOutcome{
		Index:    i,
		DeviceID: step.DeviceID,
		Kind:     step.Kind,
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		seq := int(submissionSeq.Add(1))
		if outcome.SubmissionSeq == 0 {
			outcome.SubmissionSeq = seq
		}
		outcome.Attempts = attempt

		goal := &action.Goal{
			DeviceID:   step.DeviceID,
			Kind:       step.Kind,
			Parameters: action.DeepCopyMap(step.Parameters),
			Timeout:    step.Timeout,
		}
		requestID, err := o.manager.Submit(ctx, goal)
		if err != nil {
			outcome.State = execution.StateAborted
			outcome.Reason = submitReason(err)
			outcome.Error = err.Error()
			o.record(rs, outcome)
			o.logger.Warn("run step rejected", "run_id", rs.rec.ID,
				"step", i, "error", err)
			if attempt < maxAttempts {
				continue
			}
			return false
		}
		outcome.RequestID = requestID

		rec, err := o.manager.Await(ctx, requestID)
		if err != nil {
			// Run aborted while this step was in flight; cancel it
			// and collect its terminal record.
			_ = o.manager.Cancel(requestID) //nolint:errcheck
			rec, _ = o.manager.Await(context.Background(), requestID)
		}
		if rec != nil {
			outcome.State = rec.State
			outcome.Reason = string(rec.Reason)
			outcome.Result = rec.Result
			outcome.Error = rec.Error
		}
		o.record(rs, outcome)

		if rec != nil && rec.State == execution.StateSucceeded {
			return true
		}
		// Cancellation is deliberate; never retry it.
		if rec != nil && rec.State == execution.StateCanceled {
			return false
		}
		if attempt < maxAttempts {
			o.logger.Info("retrying step", "run_id", rs.rec.ID,
				"step", i, "attempt", attempt)
		}
	}
	return false
}

// submitReason maps a synchronous submission failure onto the step
// reason vocabulary.
func submitReason(err error) string {
	if errors.Is(err, admission.ErrDeviceUnavailable) {
		return string(execution.ReasonDeviceUnavailable)
	}
	return "rejected"
}

// record stores a step outcome in the run.
func (o *Orchestrator) record(rs *runState, outcome StepOutcome) {
	rs.mu.Lock()
	rs.rec.Steps[outcome.Index] = outcome
	rs.mu.Unlock()
}

// finish computes the run's terminal status and persists it.
func (o *Orchestrator) finish(rs *runState) {
	rs.mu.Lock()
	succeeded, failed := 0, 0
	for _, s := range rs.rec.Steps {
		switch {
		case s.Skipped:
		case s.State == execution.StateSucceeded:
			succeeded++
		default:
			failed++
		}
	}
	switch {
	case failed == 0 && succeeded == rs.rec.StepsTotal:
		rs.rec.Status = StatusSucceeded
	case rs.rec.Policy == PolicyContinueOnFailure:
		rs.rec.Status = StatusPartiallyFailed
	default:
		rs.rec.Status = StatusAborted
	}
	now := time.Now().UTC()
	rs.rec.CompletedAt = &now
	snap := rs.rec.DeepCopy()
	rs.mu.Unlock()

	o.persist(snap)
	o.prune(snap.ID)
	o.logger.Info("run finished", "run_id", snap.ID,
		"status", string(snap.Status), "succeeded", succeeded, "failed", failed)
}

// prune records a finished run in the retention window and evicts the
// oldest finished runs beyond it. Runs after persist so the store
// fallback never misses.
func (o *Orchestrator) prune(runID string) {
	o.mu.Lock()
	o.finished = append(o.finished, runID)
	for len(o.finished) > retainRuns {
		oldest := o.finished[0]
		o.finished = o.finished[1:]
		delete(o.runs, oldest)
	}
	o.mu.Unlock()
}

// Get returns a snapshot of a run, falling back to the store for runs
// no longer in memory.
func (o *Orchestrator) Get(ctx context.Context, runID string) (*Run, error) {
	o.mu.RLock()
	rs := o.runs[runID]
	o.mu.RUnlock()
	if rs != nil {
		return rs.snapshot(), nil
	}
	if o.repo != nil {
		r, err := o.repo.GetRun(ctx, runID)
		if err == nil {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownRun, runID)
}

// List returns snapshots of all in-memory runs, newest first.
func (o *Orchestrator) List() []Run {
	o.mu.RLock()
	out := make([]Run, 0, len(o.runs))
	for _, rs := range o.runs {
		out = append(out, *rs.snapshot())
	}
	o.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (rs *runState) snapshot() *Run {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.rec.DeepCopy()
}

// persist writes a finished run to the store, logging failures rather
// than failing the run.
func (o *Orchestrator) persist(r *Run) {
	if o.repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.repo.SaveRun(ctx, r); err != nil {
		o.logger.Error("run store write failed", "run_id", r.ID, "error", err)
	}
}
