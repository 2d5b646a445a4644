package schema

import (
	"math"

	"github.com/dccl/go-dccl/internal/bitstream"
)

// DCCL Message Schema Framework
// A schema is the compiled, immutable layout shared by encoder and decoder.

// FieldType is the type tag of a field descriptor.
type FieldType string

// Field type tags
const (
	// TypeInt is a bounded integer over [Min, Max]
	TypeInt FieldType = "int"

	// TypeEnum is a bounded integer over the ordinals of Values
	TypeEnum FieldType = "enum"

	// TypeFloat is a float quantized to Precision decimal places over [Min, Max]
	TypeFloat FieldType = "float"

	// TypeBool is a single bit
	TypeBool FieldType = "bool"

	// TypeString is a length-prefixed UTF-8 string of at most MaxLength bytes
	TypeString FieldType = "string"

	// TypeBytes is a length-prefixed byte string of at most MaxLength bytes
	TypeBytes FieldType = "bytes"

	// TypeMessage is a nested message of the schema named by Message
	TypeMessage FieldType = "message"

	// TypeStatic is a constant that occupies no bits on the wire
	TypeStatic FieldType = "static"
)

// Precision limits for float fields.
const (
	MinPrecision = -15
	MaxPrecision = 15
)

// maxExactInt is the largest magnitude a float64 bound can carry exactly.
const maxExactInt = 1 << 53

// Schema describes one message layout.
type Schema struct {
	// ID is written in the message header; it must fit in Limits.HeaderBits
	ID uint32 `json:"id"`

	// Name is unique within a registry and used for nested references
	Name string `json:"name"`

	// Fields are encoded in this order
	Fields []Field `json:"fields"`

	// depth is the nesting depth, 1 for a schema without nested messages
	depth int
}

// Field is a field descriptor.
type Field struct {
	// Name is unique within the schema
	Name string `json:"name"`

	// Type is the type tag
	Type FieldType `json:"type"`

	// Optional fields carry a presence bit
	Optional bool `json:"optional,omitempty"`

	// Repeated fields carry a count in [0, MaxRepeat] followed by the elements
	Repeated  bool `json:"repeated,omitempty"`
	MaxRepeat int  `json:"max_repeat,omitempty"`

	// Min and Max bound int and float fields (inclusive)
	Min float64 `json:"min,omitempty"`
	Max float64 `json:"max,omitempty"`

	// Precision is the number of decimal places kept by float fields
	Precision int `json:"precision,omitempty"`

	// MaxLength bounds string and bytes fields, in bytes
	MaxLength int `json:"max_length,omitempty"`

	// Values lists enum value names; the ordinal is the index
	Values []string `json:"values,omitempty"`

	// StaticValue is the constant carried by static fields
	StaticValue string `json:"static_value,omitempty"`

	// Message names the nested schema of message fields
	Message string `json:"message,omitempty"`

	// Algorithms are applied to the value, in order, before encoding
	Algorithms []string `json:"algorithms,omitempty"`

	// nested is resolved at registration
	nested *Schema
}

// NewSchema creates a schema with the given id and name.
func NewSchema(id uint32, name string, fields ...Field) *Schema {
	return &Schema{ID: id, Name: name, Fields: fields}
}

// Constructor functions

// Int returns a required bounded-integer field.
func Int(name string, min, max int64) Field {
	return Field{Name: name, Type: TypeInt, Min: float64(min), Max: float64(max)}
}

// Float returns a required float field.
func Float(name string, min, max float64, precision int) Field {
	return Field{Name: name, Type: TypeFloat, Min: min, Max: max, Precision: precision}
}

// Enum returns a required enum field.
func Enum(name string, values ...string) Field {
	return Field{Name: name, Type: TypeEnum, Values: values}
}

// Bool returns a required bool field.
func Bool(name string) Field {
	return Field{Name: name, Type: TypeBool}
}

// String returns a required string field.
func String(name string, maxLength int) Field {
	return Field{Name: name, Type: TypeString, MaxLength: maxLength}
}

// Bytes returns a required bytes field.
func Bytes(name string, maxLength int) Field {
	return Field{Name: name, Type: TypeBytes, MaxLength: maxLength}
}

// Nested returns a required nested-message field.
func Nested(name, message string) Field {
	return Field{Name: name, Type: TypeMessage, Message: message}
}

// Static returns a static field.
func Static(name, value string) Field {
	return Field{Name: name, Type: TypeStatic, StaticValue: value}
}

// AsOptional returns a copy of f with a presence bit.
func (f Field) AsOptional() Field {
	f.Optional = true
	return f
}

// AsRepeated returns a copy of f repeated up to maxRepeat times.
func (f Field) AsRepeated(maxRepeat int) Field {
	f.Repeated = true
	f.MaxRepeat = maxRepeat
	return f
}

// WithAlgorithms returns a copy of f with pre-encode algorithms.
func (f Field) WithAlgorithms(names ...string) Field {
	f.Algorithms = append(append([]string(nil), f.Algorithms...), names...)
	return f
}

// Field returns the field descriptor with the given name.
func (s *Schema) Field(name string) (*Field, bool) {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return &s.Fields[i], true
		}
	}
	return nil, false
}

// Depth returns the nesting depth computed at registration.
func (s *Schema) Depth() int {
	return s.depth
}

// NestedSchema returns the resolved schema of a message field, or nil before
// registration.
func (f *Field) NestedSchema() *Schema {
	return f.nested
}

// IntRange returns the integer bounds of an int field.
func (f *Field) IntRange() (min, max int64) {
	return int64(f.Min), int64(f.Max)
}

// Scale returns 10^Precision.
func (f *Field) Scale() float64 {
	return math.Pow10(f.Precision)
}

// ScaledRange returns the float bounds scaled to integers.
func (f *Field) ScaledRange() (min, max int64) {
	s := f.Scale()
	return int64(math.Round(f.Min * s)), int64(math.Round(f.Max * s))
}

// ValueBits returns the width of one element's fixed part: the whole value
// for int, enum, float, bool and static fields, the length prefix for string
// and bytes fields, zero for message fields.
func (f *Field) ValueBits() int {
	switch f.Type {
	case TypeInt:
		min, max := f.IntRange()
		return bitstream.Width(uint64(max - min))
	case TypeFloat:
		min, max := f.ScaledRange()
		return bitstream.Width(uint64(max - min))
	case TypeEnum:
		if len(f.Values) == 0 {
			return 0
		}
		return bitstream.Width(uint64(len(f.Values) - 1))
	case TypeBool:
		return 1
	case TypeString, TypeBytes:
		return bitstream.Width(uint64(f.MaxLength))
	}
	return 0
}

// CountBits returns the width of a repeated field's count prefix.
func (f *Field) CountBits() int {
	if !f.Repeated {
		return 0
	}
	return bitstream.Width(uint64(f.MaxRepeat))
}

// elementBits returns the smallest and largest encoding of one element.
func (f *Field) elementBits() (min, max int) {
	w := f.ValueBits()
	switch f.Type {
	case TypeString, TypeBytes:
		return w, w + 8*f.MaxLength
	case TypeMessage:
		if f.nested == nil {
			return 0, 0
		}
		return f.nested.SizeRange()
	}
	return w, w
}

// SizeRange returns the smallest and largest encoding of the field in bits.
func (f *Field) SizeRange() (min, max int) {
	if f.Type == TypeStatic {
		return 0, 0
	}
	emin, emax := f.elementBits()
	min, max = emin, emax
	if f.Repeated {
		c := f.CountBits()
		min, max = c, c+f.MaxRepeat*emax
	}
	if f.Optional {
		min, max = 1, 1+max
	}
	return min, max
}

// SizeRange returns the smallest and largest encoding of the message body in
// bits, excluding header and padding.
func (s *Schema) SizeRange() (min, max int) {
	for i := range s.Fields {
		fmin, fmax := s.Fields[i].SizeRange()
		min += fmin
		max += fmax
	}
	return min, max
}

// Clone returns a deep copy of s that the caller may modify. Nested message
// fields stay resolved to the registered schemas they reference.
func (s *Schema) Clone() *Schema {
	c := s.clone()
	c.depth = s.depth
	for i := range c.Fields {
		c.Fields[i].nested = s.Fields[i].nested
	}
	return c
}

// clone deep-copies the schema so the registry owns what it stores.
func (s *Schema) clone() *Schema {
	c := &Schema{ID: s.ID, Name: s.Name, Fields: make([]Field, len(s.Fields))}
	for i, f := range s.Fields {
		f.Values = append([]string(nil), f.Values...)
		f.Algorithms = append([]string(nil), f.Algorithms...)
		f.nested = nil
		c.Fields[i] = f
	}
	return c
}
