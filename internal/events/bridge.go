package events

import (
	"encoding/json"
	"time"

	"github.com/oakmere/conductor-core/internal/execution"
	"github.com/oakmere/conductor-core/internal/run"
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

// Publisher is the broker surface the bridge publishes to.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// TopicSet builds the topics the bridge publishes on.
type TopicSet interface {
	ExecutionState(requestID string) string
	ExecutionFeedback(requestID string) string
	ExecutionResult(requestID string) string
	RunState(runID string) string
}

// TelemetrySink receives time-series writes derived from executions.
type TelemetrySink interface {
	WriteFeedback(deviceID, requestID, actionKind string, seq uint64, payload map[string]any)
	WriteExecutionDuration(deviceID, actionKind, terminalState string, duration time.Duration)
}

// queueSize bounds the bridge's event backlog. Publishing falls behind
// the engine rather than the engine behind the broker; overflow drops
// the oldest events.
const queueSize = 256

// Bridge fans execution events out to the MQTT broker and the
// telemetry store. It satisfies execution.Events without ever blocking
// the execution manager: events queue onto a worker goroutine and shed
// oldest-first under sustained backpressure.
type Bridge struct {
	broker    Publisher
	topics    TopicSet
	telemetry TelemetrySink
	logger    Logger

	queue chan any
	done  chan struct{}
}

// New creates a bridge. broker and telemetry may each be nil when that
// sink is not deployed. Call Close to drain and stop the worker.
func New(broker Publisher, topics TopicSet, telemetry TelemetrySink, logger Logger) *Bridge {
	if logger == nil {
		logger = noopLogger{}
	}
	b := &Bridge{
		broker:    broker,
		topics:    topics,
		telemetry: telemetry,
		logger:    logger,
		queue:     make(chan any, queueSize),
		done:      make(chan struct{}),
	}
	go b.worker()
	return b
}

// ExecutionStateChanged implements execution.Events.
func (b *Bridge) ExecutionStateChanged(rec execution.Record) {
	b.enqueue(rec)
}

// ExecutionFeedback implements execution.Events.
func (b *Bridge) ExecutionFeedback(fb execution.Feedback) {
	b.enqueue(fb)
}

// RunFinished publishes a run's terminal record.
func (b *Bridge) RunFinished(r run.Run) {
	b.enqueue(r)
}

// enqueue adds an event without blocking, shedding the oldest queued
// event when full.
func (b *Bridge) enqueue(event any) {
	for {
		select {
		case b.queue <- event:
			return
		default:
			select {
			case <-b.queue:
				b.logger.Warn("event queue full, dropping oldest")
			default:
			}
		}
	}
}

// Close stops the worker after draining queued events.
func (b *Bridge) Close() {
	close(b.queue)
	<-b.done
}

func (b *Bridge) worker() {
	defer close(b.done)
	for event := range b.queue {
		switch e := event.(type) {
		case execution.Record:
			b.publishRecord(e)
		case execution.Feedback:
			b.publishFeedback(e)
		case run.Run:
			b.publishRun(e)
		}
	}
}

func (b *Bridge) publishRecord(rec execution.Record) {
	b.publishJSON(b.topics.ExecutionState(rec.RequestID), rec, rec.State.Terminal())
	if !rec.State.Terminal() {
		return
	}
	b.publishJSON(b.topics.ExecutionResult(rec.RequestID), rec, true)
	if b.telemetry != nil && rec.StartedAt != nil && rec.EndedAt != nil {
		b.telemetry.WriteExecutionDuration(rec.DeviceID, rec.ActionKind,
			string(rec.State), rec.EndedAt.Sub(*rec.StartedAt))
	}
}

func (b *Bridge) publishFeedback(fb execution.Feedback) {
	b.publishJSON(b.topics.ExecutionFeedback(fb.RequestID), fb, false)
	if b.telemetry != nil {
		b.telemetry.WriteFeedback(fb.DeviceID, fb.RequestID, fb.Kind, uint64(fb.Seq), fb.Payload)
	}
}

func (b *Bridge) publishRun(r run.Run) {
	b.publishJSON(b.topics.RunState(r.ID), r, true)
}

func (b *Bridge) publishJSON(topic string, v any, retained bool) {
	if b.broker == nil || !b.broker.IsConnected() {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		b.logger.Error("event encode failed", "topic", topic, "error", err)
		return
	}
	if err := b.broker.Publish(topic, payload, 1, retained); err != nil {
		b.logger.Warn("event publish failed", "topic", topic, "error", err)
	}
}
