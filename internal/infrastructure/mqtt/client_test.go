package mqtt

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// newDisconnectedClient builds a client that was never connected, for
// exercising validation paths without a broker.
func newDisconnectedClient() *Client {
	return &Client{
		subscriptions: make(map[string]subscription),
	}
}

func TestTopics_Builders(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"execution state", topics.ExecutionState("act-1"), "conductor/executions/act-1/state"},
		{"execution feedback", topics.ExecutionFeedback("act-1"), "conductor/executions/act-1/feedback"},
		{"execution result", topics.ExecutionResult("act-1"), "conductor/executions/act-1/result"},
		{"all execution states", topics.AllExecutionStates(), "conductor/executions/+/state"},
		{"run state", topics.RunState("run-2"), "conductor/runs/run-2/state"},
		{"device health", topics.DeviceHealth("heater-01"), "conductor/devices/heater-01/health"},
		{"system status", topics.SystemStatus(), "conductor/system/status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("topic = %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestPublish_Validation(t *testing.T) {
	c := newDisconnectedClient()

	if err := c.Publish("", []byte("x"), 1, false); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic: err = %v, want ErrInvalidTopic", err)
	}
	if err := c.Publish("conductor/test", []byte("x"), 3, false); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("invalid qos: err = %v, want ErrInvalidQoS", err)
	}

	big := []byte(strings.Repeat("a", maxPayloadSize+1))
	if err := c.Publish("conductor/test", big, 1, false); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("oversized payload: err = %v, want ErrPublishFailed", err)
	}

	if err := c.Publish("conductor/test", []byte("x"), 1, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected publish: err = %v, want ErrNotConnected", err)
	}
}

func TestSubscribe_Validation(t *testing.T) {
	c := newDisconnectedClient()
	handler := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 1, handler); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic: err = %v, want ErrInvalidTopic", err)
	}
	if err := c.Subscribe("conductor/#", 3, handler); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("invalid qos: err = %v, want ErrInvalidQoS", err)
	}
	if err := c.Subscribe("conductor/#", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler: err = %v, want ErrSubscribeFailed", err)
	}
	if err := c.Subscribe("conductor/#", 1, handler); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected subscribe: err = %v, want ErrNotConnected", err)
	}

	if c.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0 after failed subscribes", c.SubscriptionCount())
	}
}

func TestHealthCheck_Disconnected(t *testing.T) {
	c := newDisconnectedClient()

	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() = %v, want ErrNotConnected", err)
	}
}

func TestHealthCheck_ContextCancelled(t *testing.T) {
	c := newDisconnectedClient()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() = %v, want context.Canceled", err)
	}
}

func TestClose_NeverConnected(t *testing.T) {
	c := newDisconnectedClient()
	if err := c.Close(); err != nil {
		t.Errorf("Close() = %v, want nil", err)
	}
}
