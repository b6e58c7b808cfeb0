package registers

import (
	"context"
	"sync"
)

// busKey addresses a cell within one storage class. Discretes and
// holding registers are separate address spaces on real PLCs.
type busKey struct {
	class   StorageClass
	address uint16
}

// MemoryBus is an in-process Bus for bench setups and tests. Unwritten
// cells read as the zero value for the node's data type.
type MemoryBus struct {
	mu    sync.RWMutex
	cells map[busKey]any
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{cells: make(map[busKey]any)}
}

// Read implements Bus.
func (b *MemoryBus) Read(_ context.Context, node Node) (any, error) {
	b.mu.RLock()
	value, ok := b.cells[busKey{class: node.Class, address: node.Address}]
	b.mu.RUnlock()
	if !ok {
		return zeroValue(node.Type), nil
	}
	return value, nil
}

// Write implements Bus.
func (b *MemoryBus) Write(_ context.Context, node Node, value any) error {
	b.mu.Lock()
	b.cells[busKey{class: node.Class, address: node.Address}] = value
	b.mu.Unlock()
	return nil
}

func zeroValue(t DataType) any {
	switch t {
	case TypeBool:
		return false
	case TypeInt16:
		return int16(0)
	case TypeFloat32:
		return float32(0)
	default:
		return ""
	}
}
