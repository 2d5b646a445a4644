// Package message holds the Message Instance type the codec encodes and
// decodes: a schema identifier plus a name -> value mapping.
package message

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Fields maps field names to values. Nested messages are Fields, repeated
// fields are []any.
type Fields map[string]any

// Message is one message instance conforming to the schema identified by ID.
type Message struct {
	ID     uint32
	Fields Fields
}

// New returns an empty message for schema id.
func New(id uint32) Message {
	return Message{ID: id, Fields: Fields{}}
}

// Set stores a field value and returns the message for chaining.
func (m Message) Set(name string, v any) Message {
	if m.Fields == nil {
		m.Fields = Fields{}
	}
	m.Fields[name] = v
	return m
}

// Get returns a field value and whether it is present. A nil value counts as
// absent.
func (f Fields) Get(name string) (any, bool) {
	v, ok := f[name]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// Has reports whether the field is present.
func (f Fields) Has(name string) bool {
	_, ok := f.Get(name)
	return ok
}

// Names returns the present field names, sorted.
func (f Fields) Names() []string {
	names := make([]string, 0, len(f))
	for k, v := range f {
		if v != nil {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	return names
}

// Equal reports whether two messages carry the same id and equal fields.
func Equal(a, b Message) bool {
	return a.ID == b.ID && EqualFields(a.Fields, b.Fields)
}

// EqualFields compares two field maps. Absent and nil values are equivalent,
// integers compare by value regardless of their Go width.
func EqualFields(a, b Fields) bool {
	names := a.Names()
	if len(names) != len(b.Names()) {
		return false
	}
	for _, n := range names {
		bv, ok := b.Get(n)
		if !ok || !equalValue(a[n], bv) {
			return false
		}
	}
	return true
}

func equalValue(a, b any) bool {
	switch av := a.(type) {
	case Fields:
		bv, ok := asFields(b)
		return ok && EqualFields(av, bv)
	case map[string]any:
		bv, ok := asFields(b)
		return ok && EqualFields(Fields(av), bv)
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !equalValue(av[i], bv[i]) {
				return false
			}
		}
		return true
	case []byte:
		bv, ok := b.([]byte)
		return ok && bytes.Equal(av, bv)
	case float64:
		bv, ok := b.(float64)
		return ok && (av == bv || (math.IsNaN(av) && math.IsNaN(bv)))
	}
	if ai, ok := asInt64(a); ok {
		bi, ok := asInt64(b)
		return ok && ai == bi
	}
	return a == b
}

func asFields(v any) (Fields, bool) {
	switch t := v.(type) {
	case Fields:
		return t, true
	case map[string]any:
		return Fields(t), true
	}
	return nil, false
}

func asInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int8:
		return int64(t), true
	case int16:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case uint8:
		return int64(t), true
	case uint16:
		return int64(t), true
	case uint32:
		return int64(t), true
	case uint64:
		if t > math.MaxInt64 {
			return 0, false
		}
		return int64(t), true
	}
	return 0, false
}

// String renders the message with fields in name order.
func (m Message) String() string {
	return fmt.Sprintf("Message{id: %d, %s}", m.ID, m.Fields.String())
}

// String renders the fields in name order.
func (f Fields) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, n := range f.Names() {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s: %v", n, f[n])
	}
	sb.WriteByte('}')
	return sb.String()
}
