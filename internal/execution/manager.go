package execution

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oakmere/conductor-core/internal/action"
	"github.com/oakmere/conductor-core/internal/admission"
	"github.com/oakmere/conductor-core/internal/device"
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

// feedbackBuffer is the per-subscriber channel capacity. When a slow
// subscriber falls behind, the oldest buffered update is dropped so the
// latest one always gets through.
const feedbackBuffer = 16

// track is the manager's private state for one execution. rec is
// guarded by mu; the terminal commit happens exactly once.
type track struct {
	mu              sync.Mutex
	rec             *Record
	timeout         time.Duration
	timer           *time.Timer
	cancel          context.CancelFunc
	cancelRequested bool
	subs            map[int]chan Feedback
	nextSub         int
	lastFeedback    *Feedback
	done            chan struct{}
}

// Options configures a Manager. Actions, Devices, and Admission are
// required; the rest default to no-ops.
type Options struct {
	Actions        *action.Registry
	Devices        *device.Registry
	Admission      *admission.Controller
	Repository     Repository
	Events         Events
	Logger         Logger
	DefaultTimeout time.Duration
	MaxTimeout     time.Duration

	// RetainTerminal caps how many terminal executions stay in memory.
	// Older ones are evicted oldest first and remain reachable through
	// the archive. Defaults to 256.
	RetainTerminal int
}

// Manager runs the execution lifecycle: it validates goals, admits them
// through the per-device controller, drives drivers, streams feedback,
// and commits exactly one terminal state per execution.
type Manager struct {
	actions   *action.Registry
	devices   *device.Registry
	admission *admission.Controller
	repo      Repository
	events    Events
	logger    Logger

	defaultTimeout time.Duration
	maxTimeout     time.Duration
	retainTerminal int

	mu       sync.RWMutex
	tracks   map[string]*track
	terminal []string
	closed   bool
	wg       sync.WaitGroup
}

// NewManager wires a Manager and installs itself as the admission
// controller's grant and eviction sink.
func NewManager(opts Options) (*Manager, error) {
	if opts.Actions == nil || opts.Devices == nil || opts.Admission == nil {
		return nil, errors.New("execution: actions, devices, and admission are required")
	}
	if opts.Events == nil {
		opts.Events = noopEvents{}
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 10 * time.Minute
	}
	if opts.MaxTimeout <= 0 {
		opts.MaxTimeout = time.Hour
	}
	if opts.RetainTerminal <= 0 {
		opts.RetainTerminal = 256
	}

	m := &Manager{
		actions:        opts.Actions,
		devices:        opts.Devices,
		admission:      opts.Admission,
		repo:           opts.Repository,
		events:         opts.Events,
		logger:         opts.Logger,
		defaultTimeout: opts.DefaultTimeout,
		maxTimeout:     opts.MaxTimeout,
		retainTerminal: opts.RetainTerminal,
		tracks:         make(map[string]*track),
	}
	m.admission.SetOnGrant(m.granted)
	m.admission.SetOnEvict(m.evicted)
	return m, nil
}

// Submit validates a goal and enters it into the admission flow.
// Returns the request ID on success. Validation and admission failures
// are synchronous and leave no execution record behind.
func (m *Manager) Submit(ctx context.Context, goal *action.Goal) (string, error) {
	if goal == nil {
		return "", fmt.Errorf("%w: goal is nil", action.ErrInvalidParameters)
	}

	kind, err := m.actions.Lookup(goal.Kind)
	if err != nil {
		return "", err
	}
	normalized, err := action.ValidateParams(kind, goal.Parameters)
	if err != nil {
		return "", err
	}

	timeout := goal.Timeout
	if timeout <= 0 {
		timeout = m.defaultTimeout
	}
	if timeout > m.maxTimeout {
		timeout = m.maxTimeout
	}

	requestID := goal.RequestID
	if requestID == "" {
		requestID = "act-" + uuid.NewString()
	}

	now := time.Now().UTC()
	t := &track{
		rec: &Record{
			RequestID:   requestID,
			DeviceID:    goal.DeviceID,
			ActionKind:  goal.Kind,
			Parameters:  normalized,
			State:       StatePending,
			SubmittedAt: now,
		},
		timeout: timeout,
		subs:    make(map[int]chan Feedback),
		done:    make(chan struct{}),
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", ErrManagerClosed
	}
	if _, exists := m.tracks[requestID]; exists {
		m.mu.Unlock()
		return "", fmt.Errorf("%w: %q", ErrDuplicateRequest, requestID)
	}
	m.tracks[requestID] = t
	m.mu.Unlock()

	// t.mu is held across admission and the pending publish: a queued
	// goal can be granted by a concurrent Release the moment admission
	// returns, and start() needs t.mu before it can publish Accepted.
	// Holding the lock here keeps Pending first on the event stream.
	t.mu.Lock()
	granted, err := m.admission.Submit(goal.DeviceID, requestID, goal.Kind)
	if err != nil {
		t.mu.Unlock()
		m.mu.Lock()
		delete(m.tracks, requestID)
		m.mu.Unlock()
		return "", err
	}
	t.timer = time.AfterFunc(timeout, func() { m.expire(requestID) })
	m.events.ExecutionStateChanged(*t.rec.DeepCopy())
	t.mu.Unlock()

	m.logger.Info("goal submitted",
		"request_id", requestID, "device_id", goal.DeviceID,
		"action_kind", goal.Kind, "granted", granted)

	if granted {
		m.start(t)
	}
	return requestID, nil
}

// granted is the admission controller's grant callback for queued
// requests.
func (m *Manager) granted(deviceID, requestID string) {
	t := m.track(requestID)
	if t == nil {
		// No execution for this grant; give the device back.
		_ = m.admission.Release(deviceID, requestID)
		return
	}
	m.start(t)
}

// evicted is the admission controller's queue-drain callback.
func (m *Manager) evicted(deviceID, requestID string) {
	t := m.track(requestID)
	if t == nil {
		return
	}
	m.commitTerminal(t, StateAborted, ReasonDeviceUnavailable, nil,
		fmt.Sprintf("device %s withdrawn from service", deviceID))
}

// start moves a granted execution to Accepted and launches the driver
// goroutine. If cancellation raced the grant, the execution is
// committed Canceled without running the driver.
func (m *Manager) start(t *track) {
	t.mu.Lock()
	if t.rec.State.Terminal() {
		deviceID, requestID := t.rec.DeviceID, t.rec.RequestID
		t.mu.Unlock()
		_ = m.admission.Release(deviceID, requestID)
		return
	}
	if t.cancelRequested {
		t.mu.Unlock()
		m.commitTerminal(t, StateCanceled, ReasonCanceled, nil, "")
		return
	}
	t.rec.State = StateAccepted
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	snap := t.rec.DeepCopy()
	t.mu.Unlock()

	m.events.ExecutionStateChanged(*snap)

	m.wg.Add(1)
	go m.run(t, ctx)
}

// run drives the device driver for one execution and commits the
// terminal outcome.
func (m *Manager) run(t *track, ctx context.Context) {
	defer m.wg.Done()

	t.mu.Lock()
	if t.rec.State.Terminal() {
		t.mu.Unlock()
		return
	}
	now := time.Now().UTC()
	t.rec.State = StateExecuting
	t.rec.StartedAt = &now
	snap := t.rec.DeepCopy()
	t.mu.Unlock()

	m.events.ExecutionStateChanged(*snap)

	dev, err := m.devices.Get(snap.DeviceID)
	if err != nil {
		m.commitTerminal(t, StateAborted, ReasonDriverFailure, nil, err.Error())
		return
	}

	goal := &action.Goal{
		RequestID:   snap.RequestID,
		DeviceID:    snap.DeviceID,
		Kind:        snap.ActionKind,
		Parameters:  action.DeepCopyMap(snap.Parameters),
		SubmittedAt: snap.SubmittedAt,
	}

	result, execErr := dev.Driver.Execute(ctx, goal, func(payload map[string]any) {
		m.feedback(t, payload)
	})

	switch {
	case execErr == nil:
		m.commitTerminal(t, StateSucceeded, ReasonCompleted, result, "")
	case errors.Is(execErr, device.ErrCanceled), errors.Is(execErr, context.Canceled):
		m.commitTerminal(t, StateCanceled, ReasonCanceled, nil, "")
	case errors.Is(execErr, context.DeadlineExceeded):
		m.commitTerminal(t, StateAborted, ReasonTimeout, nil, "execution timed out")
	default:
		m.commitTerminal(t, StateAborted, ReasonDriverFailure, nil, execErr.Error())
	}
}

// feedback records one driver update and fans it out to subscribers.
// Updates arriving after the terminal commit are discarded.
func (m *Manager) feedback(t *track, payload map[string]any) {
	t.mu.Lock()
	if t.rec.State.Terminal() {
		t.mu.Unlock()
		return
	}
	t.rec.FeedbackCount++
	fb := Feedback{
		RequestID: t.rec.RequestID,
		DeviceID:  t.rec.DeviceID,
		Kind:      t.rec.ActionKind,
		Seq:       t.rec.FeedbackCount,
		Payload:   action.DeepCopyMap(payload),
		At:        time.Now().UTC(),
	}
	t.lastFeedback = &fb
	for _, ch := range t.subs {
		deliver(ch, fb)
	}
	t.mu.Unlock()

	m.events.ExecutionFeedback(fb)
}

// deliver pushes a feedback update without blocking. A full channel
// sheds its oldest entry first so subscribers always converge on the
// latest update.
func deliver(ch chan Feedback, fb Feedback) {
	for {
		select {
		case ch <- fb:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}

// commitTerminal performs the single terminal write for an execution.
// Returns false if another writer already committed. On success the
// timeout timer stops, subscriber channels close, the admission slot is
// released, and the final record is persisted and published.
func (m *Manager) commitTerminal(t *track, state State, reason Reason, result map[string]any, errMsg string) bool {
	t.mu.Lock()
	if t.rec.State.Terminal() || !canTransition(t.rec.State, state) {
		t.mu.Unlock()
		return false
	}
	now := time.Now().UTC()
	t.rec.State = state
	t.rec.Reason = reason
	t.rec.Result = action.DeepCopyMap(result)
	t.rec.Error = errMsg
	t.rec.EndedAt = &now
	if t.timer != nil {
		t.timer.Stop()
	}
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}
	snap := t.rec.DeepCopy()
	close(t.done)
	t.mu.Unlock()

	if m.admission.Holder(snap.DeviceID) == snap.RequestID {
		_ = m.admission.Release(snap.DeviceID, snap.RequestID)
	} else {
		m.admission.Withdraw(snap.DeviceID, snap.RequestID)
	}

	m.persist(snap)
	m.pruneTerminal(snap.RequestID)
	m.events.ExecutionStateChanged(*snap)
	m.logger.Info("execution terminal",
		"request_id", snap.RequestID, "device_id", snap.DeviceID,
		"state", string(snap.State), "reason", string(snap.Reason))
	return true
}

// pruneTerminal records a freshly committed execution in the retention
// window and evicts the oldest terminal tracks beyond it. Evicted
// executions are served from the archive. Runs after persist so the
// archive fallback never misses.
func (m *Manager) pruneTerminal(requestID string) {
	m.mu.Lock()
	m.terminal = append(m.terminal, requestID)
	for len(m.terminal) > m.retainTerminal {
		oldest := m.terminal[0]
		m.terminal = m.terminal[1:]
		delete(m.tracks, oldest)
	}
	m.mu.Unlock()
}

// expire is the timeout timer callback. The timeout commit wins over
// any driver result that arrives later.
func (m *Manager) expire(requestID string) {
	t := m.track(requestID)
	if t == nil {
		return
	}
	if m.commitTerminal(t, StateAborted, ReasonTimeout, nil, "execution timed out") {
		t.mu.Lock()
		cancel := t.cancel
		t.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	}
}

// Cancel requests cancellation of an execution. Idempotent: cancelling
// a terminal execution is a no-op. A queued execution is withdrawn and
// committed Canceled immediately; a running one is signalled through
// its context and, if the driver implements device.Canceller, through
// OnCancel. A driver that completes before the signal lands keeps its
// result.
func (m *Manager) Cancel(requestID string) error {
	t := m.track(requestID)
	if t == nil {
		return fmt.Errorf("%w: %q", ErrUnknownRequest, requestID)
	}

	t.mu.Lock()
	if t.rec.State.Terminal() {
		t.mu.Unlock()
		return nil
	}
	t.cancelRequested = true
	state := t.rec.State
	deviceID := t.rec.DeviceID
	cancel := t.cancel
	t.mu.Unlock()

	if state == StatePending {
		if m.admission.Withdraw(deviceID, requestID) {
			m.commitTerminal(t, StateCanceled, ReasonCanceled, nil, "")
			return nil
		}
		// Granted between the state read and the withdraw; start()
		// observes cancelRequested and commits Canceled itself.
		return nil
	}

	if cancel != nil {
		cancel()
	}
	if dev, err := m.devices.Get(deviceID); err == nil {
		if c, ok := dev.Driver.(device.Canceller); ok {
			c.OnCancel(requestID)
		}
	}
	return nil
}

// MarkDeviceUnavailable withdraws a device from service. Queued
// executions abort through the eviction callback; the active one, if
// any, is aborted and its driver context cancelled.
func (m *Manager) MarkDeviceUnavailable(deviceID string) error {
	holder, err := m.admission.MarkUnavailable(deviceID)
	if err != nil {
		return err
	}
	if holder == "" {
		return nil
	}
	t := m.track(holder)
	if t == nil {
		return nil
	}
	if m.commitTerminal(t, StateAborted, ReasonDeviceUnavailable, nil,
		fmt.Sprintf("device %s withdrawn from service", deviceID)) {
		t.mu.Lock()
		cancel := t.cancel
		t.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	}
	return nil
}

// MarkDeviceAvailable returns a device to service.
func (m *Manager) MarkDeviceAvailable(deviceID string) error {
	return m.admission.MarkAvailable(deviceID)
}

// Subscribe attaches a feedback stream to an execution. A subscriber
// that attaches mid-run receives the latest update first, then live
// ones. The channel closes on the terminal commit. The returned
// function detaches the subscriber.
func (m *Manager) Subscribe(requestID string) (<-chan Feedback, func(), error) {
	t := m.track(requestID)
	if t == nil {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownRequest, requestID)
	}

	t.mu.Lock()
	ch := make(chan Feedback, feedbackBuffer)
	if t.lastFeedback != nil {
		ch <- *t.lastFeedback
	}
	if t.rec.State.Terminal() {
		close(ch)
		t.mu.Unlock()
		return ch, func() {}, nil
	}
	id := t.nextSub
	t.nextSub++
	t.subs[id] = ch
	t.mu.Unlock()

	unsubscribe := func() {
		t.mu.Lock()
		if sub, ok := t.subs[id]; ok {
			delete(t.subs, id)
			close(sub)
		}
		t.mu.Unlock()
	}
	return ch, unsubscribe, nil
}

// Get returns a snapshot of an execution's record, falling back to the
// archive for executions no longer held in memory.
func (m *Manager) Get(ctx context.Context, requestID string) (*Record, error) {
	if t := m.track(requestID); t != nil {
		return t.snapshot(), nil
	}
	if m.repo != nil {
		rec, err := m.repo.GetExecution(ctx, requestID)
		if err == nil {
			return rec, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownRequest, requestID)
}

// Result returns the terminal record of an execution. Idempotent.
// Returns ErrNotTerminal while the execution is still in flight.
func (m *Manager) Result(ctx context.Context, requestID string) (*Record, error) {
	rec, err := m.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !rec.State.Terminal() {
		return nil, fmt.Errorf("%w: %q in state %s", ErrNotTerminal, requestID, rec.State)
	}
	return rec, nil
}

// Await blocks until the execution reaches a terminal state or ctx is
// done, then returns the terminal record.
func (m *Manager) Await(ctx context.Context, requestID string) (*Record, error) {
	t := m.track(requestID)
	if t == nil {
		return m.Result(ctx, requestID)
	}
	select {
	case <-t.done:
		return t.snapshot(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// List returns snapshots of all in-memory executions sorted by
// submission time, newest first.
func (m *Manager) List() []Record {
	m.mu.RLock()
	out := make([]Record, 0, len(m.tracks))
	for _, t := range m.tracks {
		out = append(out, *t.snapshot())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	return out
}

// Close stops accepting goals, cancels in-flight executions, and waits
// for driver goroutines to exit.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	tracks := make([]*track, 0, len(m.tracks))
	for _, t := range m.tracks {
		tracks = append(tracks, t)
	}
	m.mu.Unlock()

	for _, t := range tracks {
		t.mu.Lock()
		cancel := t.cancel
		terminal := t.rec.State.Terminal()
		state := t.rec.State
		deviceID, requestID := t.rec.DeviceID, t.rec.RequestID
		t.mu.Unlock()
		if terminal {
			continue
		}
		if state == StatePending {
			m.admission.Withdraw(deviceID, requestID)
			m.commitTerminal(t, StateCanceled, ReasonCanceled, nil, "shutdown")
			continue
		}
		if cancel != nil {
			cancel()
		}
	}
	m.wg.Wait()
	m.logger.Info("execution manager closed")
}

// track returns the in-memory track for a request, or nil.
func (m *Manager) track(requestID string) *track {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tracks[requestID]
}

// snapshot returns a deep copy of the track's record.
func (t *track) snapshot() *Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rec.DeepCopy()
}

// persist writes a terminal record to the archive, logging failures
// rather than failing the execution.
func (m *Manager) persist(rec *Record) {
	if m.repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.repo.SaveExecution(ctx, rec); err != nil {
		m.logger.Error("archive write failed", "request_id", rec.RequestID, "error", err)
	}
}
