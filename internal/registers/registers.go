package registers

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

// DataType is the value type stored at a logical node.
type DataType string

const (
	TypeBool    DataType = "bool"
	TypeInt16   DataType = "int16"
	TypeFloat32 DataType = "float32"
	TypeString  DataType = "string"
)

func (t DataType) valid() bool {
	switch t {
	case TypeBool, TypeInt16, TypeFloat32, TypeString:
		return true
	}
	return false
}

// StorageClass is the register bank a node lives in.
type StorageClass string

const (
	ClassDiscrete        StorageClass = "discrete"
	ClassHoldingRegister StorageClass = "holding_register"
)

func (c StorageClass) valid() bool {
	switch c {
	case ClassDiscrete, ClassHoldingRegister:
		return true
	}
	return false
}

// Node is one resolved logical register: its type, bank, and physical
// address. Address correctness is the table's responsibility; a wrong
// address surfaces downstream as a bus fault, never as an inference
// made here.
type Node struct {
	Name    string
	Type    DataType
	Class   StorageClass
	Address uint16
}

// Bus reads and writes resolved nodes over the field-bus transport.
// Implementations own the wire protocol; callers only deal in logical
// nodes and Go values.
type Bus interface {
	Read(ctx context.Context, node Node) (any, error)
	Write(ctx context.Context, node Node, value any) error
}

// Table is the immutable name-to-node mapping, loaded once at startup.
type Table struct {
	nodes map[string]Node
}

// expected CSV column order.
const (
	colName = iota
	colType
	colClass
	colAddress
	colCount
)

// Load reads a register table from a CSV file. The file must have a
// name,data_type,storage_class,address header row.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening register table: %w", err)
	}
	defer f.Close() //nolint:errcheck

	t, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("register table %s: %w", path, err)
	}
	return t, nil
}

// Parse reads a register table from CSV content, validating every row.
// Duplicate names, unknown data types, unknown storage classes, and
// unparseable addresses all fail the load; a table is either fully
// valid or not loaded at all.
func Parse(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: missing header", ErrMalformedTable)
	}
	if len(header) != colCount || !strings.EqualFold(header[colName], "name") {
		return nil, fmt.Errorf("%w: unexpected header %v", ErrMalformedTable, header)
	}

	nodes := make(map[string]Node)
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedTable, line, err)
		}

		node, err := parseNode(record)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedTable, line, err)
		}
		if _, exists := nodes[node.Name]; exists {
			return nil, fmt.Errorf("%w: line %d: duplicate node %q", ErrMalformedTable, line, node.Name)
		}
		nodes[node.Name] = node
	}

	return &Table{nodes: nodes}, nil
}

func parseNode(record []string) (Node, error) {
	if len(record) != colCount {
		return Node{}, fmt.Errorf("expected %d columns, got %d", colCount, len(record))
	}

	name := strings.TrimSpace(record[colName])
	if name == "" {
		return Node{}, fmt.Errorf("empty node name")
	}

	dt := DataType(strings.ToLower(strings.TrimSpace(record[colType])))
	if !dt.valid() {
		return Node{}, fmt.Errorf("node %q: unknown data type %q", name, record[colType])
	}

	class := StorageClass(strings.ToLower(strings.TrimSpace(record[colClass])))
	if !class.valid() {
		return Node{}, fmt.Errorf("node %q: unknown storage class %q", name, record[colClass])
	}

	addr, err := strconv.ParseUint(strings.TrimSpace(record[colAddress]), 10, 16)
	if err != nil {
		return Node{}, fmt.Errorf("node %q: bad address %q", name, record[colAddress])
	}

	return Node{Name: name, Type: dt, Class: class, Address: uint16(addr)}, nil
}

// Resolve looks a node up by name. Returns ErrUnknownNode if absent.
func (t *Table) Resolve(name string) (Node, error) {
	node, ok := t.nodes[name]
	if !ok {
		return Node{}, fmt.Errorf("%w: %q", ErrUnknownNode, name)
	}
	return node, nil
}

// Names returns all node names sorted alphabetically.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.nodes))
	for name := range t.nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of nodes in the table.
func (t *Table) Len() int {
	return len(t.nodes)
}
