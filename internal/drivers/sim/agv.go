package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oakmere/conductor-core/internal/action"
	"github.com/oakmere/conductor-core/internal/device"
)

// agvTravelSteps is the simulated leg count of any move.
const agvTravelSteps = 5

// AGV simulates a transport robot. It remembers its position between
// moves and supports the out-of-band stop signal in addition to
// context cancellation, matching vehicles with a dedicated e-stop
// channel.
type AGV struct {
	tick time.Duration

	mu       sync.Mutex
	position string
	stopped  map[string]bool
}

// NewAGV creates a transport simulator docked at the given position.
func NewAGV(tick time.Duration, home string) *AGV {
	return &AGV{
		tick:     tick,
		position: home,
		stopped:  make(map[string]bool),
	}
}

func (a *AGV) Capabilities() []string {
	return []string{"agv.move"}
}

// OnCancel records the stop request so a move in progress halts at the
// next leg even if its context signal is delayed.
func (a *AGV) OnCancel(requestID string) {
	a.mu.Lock()
	a.stopped[requestID] = true
	a.mu.Unlock()
}

func (a *AGV) Execute(ctx context.Context, goal *action.Goal, emit device.EmitFunc) (map[string]any, error) {
	target := stringParam(goal.Parameters, "target")

	a.mu.Lock()
	from := a.position
	a.mu.Unlock()

	var stopped bool
	err := ramp(ctx, a.tick, agvTravelSteps, func(step int) {
		a.mu.Lock()
		stopped = a.stopped[goal.RequestID]
		a.mu.Unlock()
		if stopped {
			return
		}
		progress := float64(step) / agvTravelSteps
		emit(map[string]any{
			"position": fmt.Sprintf("%s->%s", from, target),
			"progress": progress,
		})
	})

	a.mu.Lock()
	delete(a.stopped, goal.RequestID)
	a.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if stopped {
		return nil, device.ErrCanceled
	}

	a.mu.Lock()
	a.position = target
	a.mu.Unlock()
	return map[string]any{"position": target}, nil
}

// Position returns the vehicle's current docked position.
func (a *AGV) Position() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.position
}
