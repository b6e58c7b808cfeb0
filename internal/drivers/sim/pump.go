package sim

import (
	"context"
	"math"
	"time"

	"github.com/oakmere/conductor-core/internal/action"
	"github.com/oakmere/conductor-core/internal/device"
)

// Pump simulates a syringe pump dispensing at a fixed rate per tick.
type Pump struct {
	tick time.Duration
}

// NewPump creates a pump simulator.
func NewPump(tick time.Duration) *Pump {
	return &Pump{tick: tick}
}

func (p *Pump) Capabilities() []string {
	return []string{"pump.transfer"}
}

func (p *Pump) Execute(ctx context.Context, goal *action.Goal, emit device.EmitFunc) (map[string]any, error) {
	volume := floatParam(goal.Parameters, "volume", 0)
	rate := floatParam(goal.Parameters, "rate", 5.0)

	steps := stepsFor(volume, rate)
	err := ramp(ctx, p.tick, steps, func(step int) {
		dispensed := math.Min(volume, rate*float64(step))
		emit(map[string]any{"dispensed": dispensed})
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"dispensed_total": volume}, nil
}
