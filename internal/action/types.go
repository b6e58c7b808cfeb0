package action

import "time"

// ParamType enumerates the value types an action parameter may carry.
type ParamType string

const (
	TypeBool   ParamType = "bool"
	TypeInt    ParamType = "int"
	TypeFloat  ParamType = "float"
	TypeString ParamType = "string"
	TypeObject ParamType = "object"
	TypeArray  ParamType = "array"
)

// AllParamTypes returns all valid parameter types.
func AllParamTypes() []ParamType {
	return []ParamType{
		TypeBool,
		TypeInt,
		TypeFloat,
		TypeString,
		TypeObject,
		TypeArray,
	}
}

// valid reports whether the type is one of the known parameter types.
func (t ParamType) valid() bool {
	switch t {
	case TypeBool, TypeInt, TypeFloat, TypeString, TypeObject, TypeArray:
		return true
	default:
		return false
	}
}

// Param describes a single parameter in an action kind's schema.
type Param struct {
	Name     string    `json:"name"`
	Type     ParamType `json:"type"`
	Required bool      `json:"required"`

	// Default is applied when an optional parameter is absent.
	// Must itself satisfy Type. Ignored for required parameters.
	Default any `json:"default,omitempty"`
}

// Field describes one entry of a feedback or result payload schema.
// Feedback and result schemas are descriptive: drivers own the payloads
// and the core copies them opaquely, so fields are not enforced per
// message the way parameters are at submit.
type Field struct {
	Name string    `json:"name"`
	Type ParamType `json:"type"`
}

// Kind is the immutable definition of a command type: its name, ordered
// parameter schema, and the shape of its feedback and result payloads.
//
// Kinds are registered once at startup and read-only thereafter.
type Kind struct {
	Name     string  `json:"name"`
	Params   []Param `json:"params,omitempty"`
	Feedback []Field `json:"feedback,omitempty"`
	Result   []Field `json:"result,omitempty"`
}

// DeepCopy creates an independent copy of the Kind so registry callers
// can never mutate the catalog through a returned value.
func (k *Kind) DeepCopy() *Kind {
	if k == nil {
		return nil
	}

	cpy := *k
	if k.Params != nil {
		cpy.Params = make([]Param, len(k.Params))
		for i, p := range k.Params {
			cpy.Params[i] = p
			cpy.Params[i].Default = deepCopyValue(p.Default)
		}
	}
	if k.Feedback != nil {
		cpy.Feedback = append([]Field(nil), k.Feedback...)
	}
	if k.Result != nil {
		cpy.Result = append([]Field(nil), k.Result...)
	}
	return &cpy
}

// Goal is one concrete invocation of an action kind against a device.
//
// This is the wire shape shared with device drivers: request_id, device_id,
// action_kind and parameters. Parameters are validated against the kind's
// schema before a Goal ever reaches a driver.
type Goal struct {
	RequestID  string         `json:"request_id"`
	DeviceID   string         `json:"device_id"`
	Kind       string         `json:"action_kind"`
	Parameters map[string]any `json:"parameters,omitempty"`

	SubmittedAt time.Time `json:"submitted_at"`

	// Timeout bounds the whole lifecycle from submission; zero means the
	// configured default applies.
	Timeout time.Duration `json:"-"`
}

// DeepCopy creates an independent copy of the Goal, cloning the parameter
// map so driver and core never share mutable state.
func (g *Goal) DeepCopy() *Goal {
	if g == nil {
		return nil
	}
	cpy := *g
	cpy.Parameters = DeepCopyMap(g.Parameters)
	return &cpy
}

// DeepCopyMap creates a deep copy of a map[string]any.
// Nested maps and slices are recursively copied.
func DeepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

// deepCopyValue recursively copies a value, handling nested maps and slices.
func deepCopyValue(v any) any {
	if v == nil {
		return nil
	}
	switch val := v.(type) {
	case map[string]any:
		return DeepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		return v // Primitives are immutable
	}
}
