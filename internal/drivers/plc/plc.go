// Package plc exposes field-bus register access as actions.
//
// The driver translates logical node names through the register table
// and performs the read or write over whatever Bus implementation the
// deployment wires in. It never second-guesses the table: a name the
// table does not know fails the action, and the driver makes no
// attempt to infer addresses.
package plc

import (
	"context"
	"fmt"
	"math"

	"github.com/oakmere/conductor-core/internal/action"
	"github.com/oakmere/conductor-core/internal/device"
	"github.com/oakmere/conductor-core/internal/registers"
)

// Driver executes register reads and writes against one PLC.
type Driver struct {
	table *registers.Table
	bus   registers.Bus
}

// New creates a PLC driver over a loaded register table and a bus.
func New(table *registers.Table, bus registers.Bus) *Driver {
	return &Driver{table: table, bus: bus}
}

func (d *Driver) Capabilities() []string {
	return []string{"plc.read_register", "plc.write_register"}
}

// Kinds returns the action kind definitions this driver serves.
func Kinds() []action.Kind {
	return []action.Kind{
		{
			Name: "plc.read_register",
			Params: []action.Param{
				{Name: "node", Type: action.TypeString, Required: true},
			},
		},
		{
			Name: "plc.write_register",
			Params: []action.Param{
				{Name: "node", Type: action.TypeString, Required: true},
				{Name: "value_bool", Type: action.TypeBool},
				{Name: "value_number", Type: action.TypeFloat},
				{Name: "value_string", Type: action.TypeString},
			},
		},
	}
}

// RegisterKinds registers the PLC kinds with the catalog.
func RegisterKinds(registry *action.Registry) error {
	for _, kind := range Kinds() {
		if err := registry.Register(kind); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) Execute(ctx context.Context, goal *action.Goal, emit device.EmitFunc) (map[string]any, error) {
	name, _ := goal.Parameters["node"].(string)
	node, err := d.table.Resolve(name)
	if err != nil {
		return nil, err
	}

	switch goal.Kind {
	case "plc.read_register":
		value, err := d.bus.Read(ctx, node)
		if err != nil {
			return nil, fmt.Errorf("%w: reading %s: %v", device.ErrDriverFailure, name, err)
		}
		return map[string]any{"node": name, "value": value}, nil

	case "plc.write_register":
		value, err := writeValue(node, goal.Parameters)
		if err != nil {
			return nil, err
		}
		if err := d.bus.Write(ctx, node, value); err != nil {
			return nil, fmt.Errorf("%w: writing %s: %v", device.ErrDriverFailure, name, err)
		}
		return map[string]any{"node": name}, nil

	default:
		return nil, fmt.Errorf("%w: kind %q", device.ErrDriverFailure, goal.Kind)
	}
}

// writeValue picks the typed value parameter matching the node's data
// type and converts it to the bus representation.
func writeValue(node registers.Node, params map[string]any) (any, error) {
	switch node.Type {
	case registers.TypeBool:
		v, ok := params["value_bool"].(bool)
		if !ok {
			return nil, fmt.Errorf("node %q needs value_bool", node.Name)
		}
		return v, nil

	case registers.TypeInt16:
		v, ok := params["value_number"].(float64)
		if !ok || v != math.Trunc(v) || v < math.MinInt16 || v > math.MaxInt16 {
			return nil, fmt.Errorf("node %q needs an integral value_number in int16 range", node.Name)
		}
		return int16(v), nil

	case registers.TypeFloat32:
		v, ok := params["value_number"].(float64)
		if !ok {
			return nil, fmt.Errorf("node %q needs value_number", node.Name)
		}
		return float32(v), nil

	case registers.TypeString:
		v, ok := params["value_string"].(string)
		if !ok {
			return nil, fmt.Errorf("node %q needs value_string", node.Name)
		}
		return v, nil

	default:
		return nil, fmt.Errorf("node %q has unsupported type %q", node.Name, node.Type)
	}
}
