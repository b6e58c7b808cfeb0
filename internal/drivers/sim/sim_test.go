package sim

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/oakmere/conductor-core/internal/action"
	"github.com/oakmere/conductor-core/internal/device"
)

const testTick = time.Millisecond

// collector gathers emitted feedback for assertions.
type collector struct {
	mu       sync.Mutex
	payloads []map[string]any
}

func (c *collector) emit(payload map[string]any) {
	c.mu.Lock()
	c.payloads = append(c.payloads, payload)
	c.mu.Unlock()
}

func (c *collector) all() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]map[string]any(nil), c.payloads...)
}

func TestRegisterKinds(t *testing.T) {
	registry := action.NewRegistry()
	if err := RegisterKinds(registry); err != nil {
		t.Fatalf("RegisterKinds() error = %v", err)
	}
	if registry.Count() != len(Kinds()) {
		t.Errorf("Count() = %d, want %d", registry.Count(), len(Kinds()))
	}
}

func TestHeatChillRampsToTarget(t *testing.T) {
	h := NewHeatChill(testTick)
	c := &collector{}

	goal := &action.Goal{
		Kind:       "heatchill.set_temperature",
		Parameters: map[string]any{"temperature": 60.0, "ramp_rate": 10.0},
	}
	result, err := h.Execute(context.Background(), goal, c.emit)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if result["final_temperature"] != 60.0 {
		t.Errorf("final_temperature = %v", result["final_temperature"])
	}
	if h.Temperature() != 60.0 {
		t.Errorf("Temperature() = %v, want 60", h.Temperature())
	}

	feedback := c.all()
	if len(feedback) == 0 {
		t.Fatal("no feedback emitted")
	}
	// Temperatures must climb monotonically toward the setpoint.
	prev := 20.0
	for i, fb := range feedback {
		temp := fb["current_temperature"].(float64)
		if temp < prev {
			t.Errorf("feedback %d: temperature fell from %v to %v", i, prev, temp)
		}
		prev = temp
	}
}

func TestHeatChillChillsFromCurrent(t *testing.T) {
	h := NewHeatChill(testTick)
	c := &collector{}

	heat := &action.Goal{
		Kind:       "heatchill.set_temperature",
		Parameters: map[string]any{"temperature": 60.0, "ramp_rate": 20.0},
	}
	if _, err := h.Execute(context.Background(), heat, c.emit); err != nil {
		t.Fatal(err)
	}

	chill := &action.Goal{
		Kind:       "heatchill.set_temperature",
		Parameters: map[string]any{"temperature": 4.0, "ramp_rate": 20.0},
	}
	result, err := h.Execute(context.Background(), chill, c.emit)
	if err != nil {
		t.Fatal(err)
	}
	if result["final_temperature"] != 4.0 {
		t.Errorf("final_temperature = %v, want 4", result["final_temperature"])
	}
}

func TestHeatChillCancelMidRamp(t *testing.T) {
	h := NewHeatChill(10 * time.Millisecond)
	c := &collector{}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(25 * time.Millisecond)
		cancel()
	}()

	goal := &action.Goal{
		Kind:       "heatchill.set_temperature",
		Parameters: map[string]any{"temperature": 200.0, "ramp_rate": 0.5},
	}
	_, err := h.Execute(ctx, goal, c.emit)
	if !errors.Is(err, device.ErrCanceled) {
		t.Fatalf("Execute() error = %v, want ErrCanceled", err)
	}
	if h.Temperature() >= 200.0 {
		t.Error("temperature reached target despite cancellation")
	}
}

func TestPumpDispensesExactVolume(t *testing.T) {
	p := NewPump(testTick)
	c := &collector{}

	goal := &action.Goal{
		Kind:       "pump.transfer",
		Parameters: map[string]any{"volume": 12.0, "rate": 5.0},
	}
	result, err := p.Execute(context.Background(), goal, c.emit)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result["dispensed_total"] != 12.0 {
		t.Errorf("dispensed_total = %v", result["dispensed_total"])
	}

	feedback := c.all()
	if len(feedback) != 3 {
		t.Fatalf("feedback count = %d, want 3 ticks for 12/5", len(feedback))
	}
	last := feedback[len(feedback)-1]["dispensed"].(float64)
	if last != 12.0 {
		t.Errorf("final dispensed = %v, want capped at volume", last)
	}
}

func TestLiquidHandlerPhases(t *testing.T) {
	l := NewLiquidHandler(testTick)
	c := &collector{}

	goal := &action.Goal{
		Kind: "liquidhandler.transfer",
		Parameters: map[string]any{
			"source": "plate1:A1", "destination": "plate2:B3", "volume": 50.0,
		},
	}
	result, err := l.Execute(context.Background(), goal, c.emit)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result["transferred"] != 50.0 {
		t.Errorf("transferred = %v", result["transferred"])
	}

	seen := make(map[string]bool)
	for _, fb := range c.all() {
		seen[fb["phase"].(string)] = true
	}
	for _, phase := range []string{"aspirating", "moving", "dispensing"} {
		if !seen[phase] {
			t.Errorf("phase %q never reported", phase)
		}
	}
}

func TestAGVMovesAndRemembersPosition(t *testing.T) {
	a := NewAGV(testTick, "dock")
	c := &collector{}

	goal := &action.Goal{
		RequestID:  "act-1",
		Kind:       "agv.move",
		Parameters: map[string]any{"target": "bay-3"},
	}
	result, err := a.Execute(context.Background(), goal, c.emit)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result["position"] != "bay-3" {
		t.Errorf("position = %v", result["position"])
	}
	if a.Position() != "bay-3" {
		t.Errorf("Position() = %q", a.Position())
	}
}

func TestAGVOnCancelStopsMove(t *testing.T) {
	a := NewAGV(5*time.Millisecond, "dock")
	c := &collector{}

	a.OnCancel("act-1")

	goal := &action.Goal{
		RequestID:  "act-1",
		Kind:       "agv.move",
		Parameters: map[string]any{"target": "bay-3"},
	}
	_, err := a.Execute(context.Background(), goal, c.emit)
	if !errors.Is(err, device.ErrCanceled) {
		t.Fatalf("Execute() error = %v, want ErrCanceled", err)
	}
	if a.Position() != "dock" {
		t.Errorf("Position() = %q, want unchanged", a.Position())
	}
}

func TestDriversSatisfyCanceller(t *testing.T) {
	var drv device.Driver = NewAGV(testTick, "dock")
	if _, ok := drv.(device.Canceller); !ok {
		t.Error("AGV does not implement device.Canceller")
	}
}
