// Package sim provides simulated instrument drivers.
//
// The simulators run real ramps on a configurable tick so development
// and tests exercise the full lifecycle, feedback streaming,
// cancellation mid-ramp, timeouts, without hardware on the bench. Each
// driver honors context cancellation between ticks.
package sim

import (
	"context"
	"math"
	"time"

	"github.com/oakmere/conductor-core/internal/action"
	"github.com/oakmere/conductor-core/internal/device"
)

// DefaultTick is the simulation step used when none is configured.
const DefaultTick = 250 * time.Millisecond

// ramp runs steps ticks, calling emit once per tick, and returns
// device.ErrCanceled if the context ends first.
func ramp(ctx context.Context, tick time.Duration, steps int, emit func(step int)) error {
	if tick <= 0 {
		tick = DefaultTick
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for i := 1; i <= steps; i++ {
		select {
		case <-ctx.Done():
			return device.ErrCanceled
		case <-ticker.C:
			emit(i)
		}
	}
	return nil
}

// stepsFor splits a total amount into per-tick increments, always at
// least one tick.
func stepsFor(total, perStep float64) int {
	if perStep <= 0 || total <= 0 {
		return 1
	}
	return int(math.Max(1, math.Ceil(total/perStep)))
}

// floatParam reads a validated float parameter, falling back when the
// kind declared no default.
func floatParam(params map[string]any, name string, fallback float64) float64 {
	if v, ok := params[name].(float64); ok {
		return v
	}
	return fallback
}

func stringParam(params map[string]any, name string) string {
	v, _ := params[name].(string)
	return v
}

// Kinds returns the action kind definitions for every simulated
// driver, ready to register at startup.
func Kinds() []action.Kind {
	return []action.Kind{
		{
			Name: "heatchill.set_temperature",
			Params: []action.Param{
				{Name: "temperature", Type: action.TypeFloat, Required: true},
				{Name: "ramp_rate", Type: action.TypeFloat, Default: 2.0},
			},
			Feedback: []action.Field{
				{Name: "current_temperature", Type: action.TypeFloat},
			},
			Result: []action.Field{
				{Name: "final_temperature", Type: action.TypeFloat},
			},
		},
		{
			Name: "heatchill.stop",
			Result: []action.Field{
				{Name: "final_temperature", Type: action.TypeFloat},
			},
		},
		{
			Name: "pump.transfer",
			Params: []action.Param{
				{Name: "volume", Type: action.TypeFloat, Required: true},
				{Name: "rate", Type: action.TypeFloat, Default: 5.0},
			},
			Feedback: []action.Field{
				{Name: "dispensed", Type: action.TypeFloat},
			},
			Result: []action.Field{
				{Name: "dispensed_total", Type: action.TypeFloat},
			},
		},
		{
			Name: "liquidhandler.transfer",
			Params: []action.Param{
				{Name: "source", Type: action.TypeString, Required: true},
				{Name: "destination", Type: action.TypeString, Required: true},
				{Name: "volume", Type: action.TypeFloat, Required: true},
			},
			Feedback: []action.Field{
				{Name: "phase", Type: action.TypeString},
				{Name: "progress", Type: action.TypeFloat},
			},
			Result: []action.Field{
				{Name: "transferred", Type: action.TypeFloat},
			},
		},
		{
			Name: "agv.move",
			Params: []action.Param{
				{Name: "target", Type: action.TypeString, Required: true},
				{Name: "speed", Type: action.TypeFloat, Default: 1.0},
			},
			Feedback: []action.Field{
				{Name: "position", Type: action.TypeString},
				{Name: "progress", Type: action.TypeFloat},
			},
			Result: []action.Field{
				{Name: "position", Type: action.TypeString},
			},
		},
	}
}

// RegisterKinds registers every simulated kind with the catalog.
func RegisterKinds(registry *action.Registry) error {
	for _, kind := range Kinds() {
		if err := registry.Register(kind); err != nil {
			return err
		}
	}
	return nil
}
