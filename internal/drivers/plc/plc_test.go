package plc

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/oakmere/conductor-core/internal/action"
	"github.com/oakmere/conductor-core/internal/device"
	"github.com/oakmere/conductor-core/internal/registers"
)

// memBus is an in-memory register bank keyed by storage class and
// address.
type memBus struct {
	mu     sync.Mutex
	cells  map[string]any
	failAt string
}

func newMemBus() *memBus {
	return &memBus{cells: make(map[string]any)}
}

func key(node registers.Node) string {
	return string(node.Class) + ":" + strconv.Itoa(int(node.Address))
}

func (b *memBus) Read(ctx context.Context, node registers.Node) (any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failAt == node.Name {
		return nil, errors.New("bus fault")
	}
	return b.cells[key(node)], nil
}

func (b *memBus) Write(ctx context.Context, node registers.Node, value any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failAt == node.Name {
		return errors.New("bus fault")
	}
	b.cells[key(node)] = value
	return nil
}

const testTable = `name,data_type,storage_class,address
reactor_temp,float32,holding_register,100
agitator_on,bool,discrete,3
fill_level,int16,holding_register,110
batch_id,string,holding_register,200
`

func newTestDriver(t *testing.T) (*Driver, *memBus) {
	t.Helper()
	table, err := registers.Parse(strings.NewReader(testTable))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	bus := newMemBus()
	return New(table, bus), bus
}

func noEmit(map[string]any) {}

func TestWriteThenReadRoundTrip(t *testing.T) {
	d, _ := newTestDriver(t)
	ctx := context.Background()

	write := &action.Goal{
		Kind:       "plc.write_register",
		Parameters: map[string]any{"node": "reactor_temp", "value_number": 72.5},
	}
	if _, err := d.Execute(ctx, write, noEmit); err != nil {
		t.Fatalf("write error = %v", err)
	}

	read := &action.Goal{
		Kind:       "plc.read_register",
		Parameters: map[string]any{"node": "reactor_temp"},
	}
	result, err := d.Execute(ctx, read, noEmit)
	if err != nil {
		t.Fatalf("read error = %v", err)
	}
	if result["value"] != float32(72.5) {
		t.Errorf("value = %v (%T), want float32(72.5)", result["value"], result["value"])
	}
}

func TestWriteTypedValues(t *testing.T) {
	d, bus := newTestDriver(t)
	ctx := context.Background()

	tests := []struct {
		node   string
		params map[string]any
		want   any
	}{
		{"agitator_on", map[string]any{"value_bool": true}, true},
		{"fill_level", map[string]any{"value_number": 42.0}, int16(42)},
		{"batch_id", map[string]any{"value_string": "B-2041"}, "B-2041"},
	}
	for _, tt := range tests {
		params := map[string]any{"node": tt.node}
		for k, v := range tt.params {
			params[k] = v
		}
		goal := &action.Goal{Kind: "plc.write_register", Parameters: params}
		if _, err := d.Execute(ctx, goal, noEmit); err != nil {
			t.Fatalf("write %s error = %v", tt.node, err)
		}
	}

	table, _ := registers.Parse(strings.NewReader(testTable))
	for _, tt := range tests {
		node, _ := table.Resolve(tt.node)
		got, err := bus.Read(ctx, node)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("%s = %v (%T), want %v (%T)", tt.node, got, got, tt.want, tt.want)
		}
	}
}

func TestWriteValueTypeMismatch(t *testing.T) {
	d, _ := newTestDriver(t)

	tests := []struct {
		name   string
		params map[string]any
	}{
		{"bool node without value_bool", map[string]any{"node": "agitator_on", "value_number": 1.0}},
		{"int16 node with fractional value", map[string]any{"node": "fill_level", "value_number": 4.5}},
		{"int16 node out of range", map[string]any{"node": "fill_level", "value_number": 70000.0}},
		{"string node without value_string", map[string]any{"node": "batch_id", "value_bool": true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			goal := &action.Goal{Kind: "plc.write_register", Parameters: tt.params}
			if _, err := d.Execute(context.Background(), goal, noEmit); err == nil {
				t.Error("Execute() succeeded, want error")
			}
		})
	}
}

func TestUnknownNodeFailsAction(t *testing.T) {
	d, _ := newTestDriver(t)

	goal := &action.Goal{
		Kind:       "plc.read_register",
		Parameters: map[string]any{"node": "ghost_register"},
	}
	_, err := d.Execute(context.Background(), goal, noEmit)
	if !errors.Is(err, registers.ErrUnknownNode) {
		t.Errorf("Execute() error = %v, want ErrUnknownNode", err)
	}
}

func TestBusFaultBecomesDriverFailure(t *testing.T) {
	d, bus := newTestDriver(t)
	bus.failAt = "reactor_temp"

	goal := &action.Goal{
		Kind:       "plc.read_register",
		Parameters: map[string]any{"node": "reactor_temp"},
	}
	_, err := d.Execute(context.Background(), goal, noEmit)
	if !errors.Is(err, device.ErrDriverFailure) {
		t.Errorf("Execute() error = %v, want ErrDriverFailure", err)
	}
}

func TestRegisterKinds(t *testing.T) {
	registry := action.NewRegistry()
	if err := RegisterKinds(registry); err != nil {
		t.Fatalf("RegisterKinds() error = %v", err)
	}
	if _, err := registry.Lookup("plc.write_register"); err != nil {
		t.Errorf("Lookup() error = %v", err)
	}
}
