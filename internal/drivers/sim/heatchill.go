package sim

import (
	"context"
	"sync"
	"time"

	"github.com/oakmere/conductor-core/internal/action"
	"github.com/oakmere/conductor-core/internal/device"
)

// HeatChill simulates a recirculating heater/chiller. Temperature
// ramps linearly toward the setpoint and persists between commands, so
// a second set_temperature starts from where the first left off.
type HeatChill struct {
	tick time.Duration

	mu      sync.Mutex
	current float64
}

// NewHeatChill creates a heat/chill simulator starting at ambient.
func NewHeatChill(tick time.Duration) *HeatChill {
	return &HeatChill{tick: tick, current: 20.0}
}

func (h *HeatChill) Capabilities() []string {
	return []string{"heatchill.set_temperature", "heatchill.stop"}
}

func (h *HeatChill) Execute(ctx context.Context, goal *action.Goal, emit device.EmitFunc) (map[string]any, error) {
	switch goal.Kind {
	case "heatchill.stop":
		return map[string]any{"final_temperature": h.Temperature()}, nil
	case "heatchill.set_temperature":
		return h.setTemperature(ctx, goal, emit)
	default:
		return nil, device.ErrDriverFailure
	}
}

func (h *HeatChill) setTemperature(ctx context.Context, goal *action.Goal, emit device.EmitFunc) (map[string]any, error) {
	target := floatParam(goal.Parameters, "temperature", 20.0)
	rate := floatParam(goal.Parameters, "ramp_rate", 2.0)

	h.mu.Lock()
	start := h.current
	h.mu.Unlock()

	delta := target - start
	steps := stepsFor(abs(delta), rate)
	perStep := delta / float64(steps)

	err := ramp(ctx, h.tick, steps, func(step int) {
		h.mu.Lock()
		h.current = start + perStep*float64(step)
		temp := h.current
		h.mu.Unlock()
		emit(map[string]any{"current_temperature": temp})
	})
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.current = target
	h.mu.Unlock()
	return map[string]any{"final_temperature": target}, nil
}

// Temperature returns the simulator's current temperature.
func (h *HeatChill) Temperature() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
