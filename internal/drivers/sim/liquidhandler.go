package sim

import (
	"context"
	"time"

	"github.com/oakmere/conductor-core/internal/action"
	"github.com/oakmere/conductor-core/internal/device"
)

// LiquidHandler simulates a pipetting robot moving volume between
// labware positions in three phases.
type LiquidHandler struct {
	tick time.Duration
}

// NewLiquidHandler creates a liquid handler simulator.
func NewLiquidHandler(tick time.Duration) *LiquidHandler {
	return &LiquidHandler{tick: tick}
}

func (l *LiquidHandler) Capabilities() []string {
	return []string{"liquidhandler.transfer"}
}

func (l *LiquidHandler) Execute(ctx context.Context, goal *action.Goal, emit device.EmitFunc) (map[string]any, error) {
	volume := floatParam(goal.Parameters, "volume", 0)

	phases := []string{"aspirating", "moving", "dispensing"}
	for i, phase := range phases {
		err := ramp(ctx, l.tick, 2, func(step int) {
			progress := (float64(i) + float64(step)/2) / float64(len(phases))
			emit(map[string]any{"phase": phase, "progress": progress})
		})
		if err != nil {
			return nil, err
		}
	}
	return map[string]any{"transferred": volume}, nil
}
