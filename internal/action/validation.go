package action

import (
	"fmt"
	"math"
	"strings"
)

// ValidateKind checks that a kind definition is structurally sound.
// Returns ErrInvalidKind describing the first problem found.
func ValidateKind(kind *Kind) error {
	if kind == nil {
		return fmt.Errorf("%w: kind is nil", ErrInvalidKind)
	}
	if strings.TrimSpace(kind.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidKind)
	}

	seen := make(map[string]bool, len(kind.Params))
	for i, p := range kind.Params {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("%w: kind %q param %d has empty name", ErrInvalidKind, kind.Name, i)
		}
		if seen[p.Name] {
			return fmt.Errorf("%w: kind %q duplicate param %q", ErrInvalidKind, kind.Name, p.Name)
		}
		seen[p.Name] = true
		if !p.Type.valid() {
			return fmt.Errorf("%w: kind %q param %q has unknown type %q", ErrInvalidKind, kind.Name, p.Name, p.Type)
		}
		if p.Required && p.Default != nil {
			return fmt.Errorf("%w: kind %q param %q is required but has a default", ErrInvalidKind, kind.Name, p.Name)
		}
		if p.Default != nil {
			if _, err := coerceValue(p.Type, p.Default); err != nil {
				return fmt.Errorf("%w: kind %q param %q default: %v", ErrInvalidKind, kind.Name, p.Name, err)
			}
		}
	}

	fieldSeen := make(map[string]bool)
	for _, f := range kind.Feedback {
		if strings.TrimSpace(f.Name) == "" {
			return fmt.Errorf("%w: kind %q feedback field has empty name", ErrInvalidKind, kind.Name)
		}
		if fieldSeen[f.Name] {
			return fmt.Errorf("%w: kind %q duplicate feedback field %q", ErrInvalidKind, kind.Name, f.Name)
		}
		fieldSeen[f.Name] = true
		if !f.Type.valid() {
			return fmt.Errorf("%w: kind %q feedback field %q has unknown type %q", ErrInvalidKind, kind.Name, f.Name, f.Type)
		}
	}

	fieldSeen = make(map[string]bool)
	for _, f := range kind.Result {
		if strings.TrimSpace(f.Name) == "" {
			return fmt.Errorf("%w: kind %q result field has empty name", ErrInvalidKind, kind.Name)
		}
		if fieldSeen[f.Name] {
			return fmt.Errorf("%w: kind %q duplicate result field %q", ErrInvalidKind, kind.Name, f.Name)
		}
		fieldSeen[f.Name] = true
		if !f.Type.valid() {
			return fmt.Errorf("%w: kind %q result field %q has unknown type %q", ErrInvalidKind, kind.Name, f.Name, f.Type)
		}
	}

	return nil
}

// ValidateParams checks a parameter map against a kind's declared schema
// and returns a normalized copy: defaults filled in, numeric values
// coerced to their declared type.
//
// Returns ErrInvalidParameters for missing required params, unknown
// params, or type mismatches. The input map is never modified.
func ValidateParams(kind *Kind, values map[string]any) (map[string]any, error) {
	if kind == nil {
		return nil, fmt.Errorf("%w: kind is nil", ErrInvalidParameters)
	}

	declared := make(map[string]Param, len(kind.Params))
	for _, p := range kind.Params {
		declared[p.Name] = p
	}

	for name := range values {
		if _, ok := declared[name]; !ok {
			return nil, fmt.Errorf("%w: unknown parameter %q for kind %q", ErrInvalidParameters, name, kind.Name)
		}
	}

	normalized := make(map[string]any, len(kind.Params))
	for _, p := range kind.Params {
		raw, present := values[p.Name]
		if !present {
			if p.Required {
				return nil, fmt.Errorf("%w: missing required parameter %q for kind %q", ErrInvalidParameters, p.Name, kind.Name)
			}
			if p.Default != nil {
				coerced, _ := coerceValue(p.Type, p.Default)
				normalized[p.Name] = coerced
			}
			continue
		}
		coerced, err := coerceValue(p.Type, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: parameter %q for kind %q: %v", ErrInvalidParameters, p.Name, kind.Name, err)
		}
		normalized[p.Name] = coerced
	}

	return normalized, nil
}

// coerceValue checks a value against a declared type and returns the
// normalized form. Integers arriving as float64 (the JSON decoder's
// default) are accepted when integral.
func coerceValue(t ParamType, v any) (any, error) {
	switch t {
	case TypeBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("expected bool, got %T", v)
		}
		return b, nil

	case TypeInt:
		switch n := v.(type) {
		case int:
			return int64(n), nil
		case int64:
			return n, nil
		case float64:
			if n != math.Trunc(n) {
				return nil, fmt.Errorf("expected integer, got %v", n)
			}
			return int64(n), nil
		default:
			return nil, fmt.Errorf("expected integer, got %T", v)
		}

	case TypeFloat:
		switch n := v.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		default:
			return nil, fmt.Errorf("expected number, got %T", v)
		}

	case TypeString:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", v)
		}
		return s, nil

	case TypeObject:
		m, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("expected object, got %T", v)
		}
		return DeepCopyMap(m), nil

	case TypeArray:
		a, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("expected array, got %T", v)
		}
		out := make([]any, len(a))
		for i, e := range a {
			out[i] = deepCopyValue(e)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("unknown type %q", t)
	}
}
