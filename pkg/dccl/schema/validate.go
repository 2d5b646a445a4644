package schema

import (
	"fmt"
	"math"

	"github.com/dccl/go-dccl/pkg/dccl/dcclerr"
)

// resolver finds already-registered schemas by name.
type resolver func(name string) (*Schema, bool)

func invalid(s *Schema, field, format string, args ...any) error {
	return &dcclerr.SchemaValidationError{Schema: s.Name, Field: field, Reason: fmt.Sprintf(format, args...)}
}

// validate checks s against limits, resolves nested references and computes
// the nesting depth. s must be a private copy: nested pointers and depth are
// written into it.
func validate(s *Schema, limits Limits, resolve resolver) error {
	if s.Name == "" {
		return invalid(s, "", "schema name is required")
	}
	if s.ID > limits.MaxID() {
		return invalid(s, "", "id %d does not fit in a %d-bit header", s.ID, limits.HeaderBits)
	}

	seen := make(map[string]struct{}, len(s.Fields))
	depth := 1
	for i := range s.Fields {
		f := &s.Fields[i]
		if f.Name == "" {
			return invalid(s, "", "field %d has no name", i)
		}
		if _, dup := seen[f.Name]; dup {
			return invalid(s, f.Name, "duplicate field name")
		}
		seen[f.Name] = struct{}{}

		if err := validateField(s, f, limits); err != nil {
			return err
		}

		if f.Type == TypeMessage {
			if f.Message == s.Name {
				return invalid(s, f.Name, "message %q references itself", f.Message)
			}
			nested, ok := resolve(f.Message)
			if !ok {
				return invalid(s, f.Name, "nested message %q is not registered", f.Message)
			}
			f.nested = nested
			if d := nested.depth + 1; d > depth {
				depth = d
			}
		}
		if f.Repeated {
			if _, emax := f.elementBits(); emax == 0 {
				return invalid(s, f.Name, "repeated elements must occupy at least one bit")
			}
		}
	}
	if depth > limits.MaxDepth {
		return invalid(s, "", "nesting depth %d exceeds limit %d", depth, limits.MaxDepth)
	}
	s.depth = depth
	return nil
}

func validateField(s *Schema, f *Field, limits Limits) error {
	if f.Repeated {
		if f.MaxRepeat < 1 || f.MaxRepeat > limits.MaxRepeat {
			return invalid(s, f.Name, "max_repeat %d outside [1, %d]", f.MaxRepeat, limits.MaxRepeat)
		}
	}
	for _, a := range f.Algorithms {
		if a == "" {
			return invalid(s, f.Name, "empty algorithm name")
		}
	}

	switch f.Type {
	case TypeInt:
		if err := checkBounds(s, f); err != nil {
			return err
		}
		if f.Min != math.Trunc(f.Min) || f.Max != math.Trunc(f.Max) {
			return invalid(s, f.Name, "int bounds must be integral, got [%v, %v]", f.Min, f.Max)
		}
		if math.Abs(f.Min) > maxExactInt || math.Abs(f.Max) > maxExactInt {
			return invalid(s, f.Name, "int bounds exceed +/-2^53")
		}
	case TypeFloat:
		if err := checkBounds(s, f); err != nil {
			return err
		}
		if f.Precision < MinPrecision || f.Precision > MaxPrecision {
			return invalid(s, f.Name, "precision %d outside [%d, %d]", f.Precision, MinPrecision, MaxPrecision)
		}
		scale := f.Scale()
		if math.Abs(f.Min*scale) > maxExactInt || math.Abs(f.Max*scale) > maxExactInt {
			return invalid(s, f.Name, "scaled bounds exceed +/-2^53, lower the precision")
		}
	case TypeEnum:
		if len(f.Values) == 0 {
			return invalid(s, f.Name, "enum has no values")
		}
		names := make(map[string]struct{}, len(f.Values))
		for _, v := range f.Values {
			if v == "" {
				return invalid(s, f.Name, "empty enum value")
			}
			if _, dup := names[v]; dup {
				return invalid(s, f.Name, "duplicate enum value %q", v)
			}
			names[v] = struct{}{}
		}
	case TypeBool:
	case TypeString, TypeBytes:
		if f.MaxLength < 1 || f.MaxLength > limits.MaxLength {
			return invalid(s, f.Name, "max_length %d outside [1, %d]", f.MaxLength, limits.MaxLength)
		}
	case TypeMessage:
		if f.Message == "" {
			return invalid(s, f.Name, "message field needs a message name")
		}
	case TypeStatic:
		if f.StaticValue == "" {
			return invalid(s, f.Name, "static field needs a value")
		}
		if f.Optional || f.Repeated {
			return invalid(s, f.Name, "static fields cannot be optional or repeated")
		}
	default:
		return invalid(s, f.Name, "unknown field type %q", f.Type)
	}
	return nil
}

func checkBounds(s *Schema, f *Field) error {
	if math.IsNaN(f.Min) || math.IsNaN(f.Max) || math.IsInf(f.Min, 0) || math.IsInf(f.Max, 0) {
		return invalid(s, f.Name, "bounds must be finite")
	}
	if f.Min > f.Max {
		return invalid(s, f.Name, "min %v greater than max %v", f.Min, f.Max)
	}
	return nil
}
