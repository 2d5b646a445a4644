// Package protobridge moves values between protobuf messages and codec
// message instances, so DCCL can carry protobuf-defined payloads.
//
// Fields are matched by name. Enums travel by value name, int fields accept
// every protobuf integer kind, float fields accept float and double.
package protobridge

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/dccl/go-dccl/pkg/dccl/dcclerr"
	"github.com/dccl/go-dccl/pkg/dccl/message"
	"github.com/dccl/go-dccl/pkg/dccl/schema"
)

// FromProto copies the fields s declares out of m. Static fields take their
// declared value.
func FromProto(s *schema.Schema, m protoreflect.Message) (message.Message, error) {
	fields, err := fromFields(s, m, "")
	if err != nil {
		return message.Message{}, err
	}
	return message.Message{ID: s.ID, Fields: fields}, nil
}

// ToProto sets the fields of m from msg. Absent fields are cleared.
func ToProto(s *schema.Schema, msg message.Message, m protoreflect.Message) error {
	return toFields(s, msg.Fields, m, "")
}

// CheckDescriptor verifies that every field of s exists in md with a
// compatible kind and cardinality.
func CheckDescriptor(s *schema.Schema, md protoreflect.MessageDescriptor) error {
	for i := range s.Fields {
		f := &s.Fields[i]
		if f.Type == schema.TypeStatic {
			continue
		}
		fd := md.Fields().ByName(protoreflect.Name(f.Name))
		if fd == nil {
			return mismatch(s, f, "no field in %s", md.FullName())
		}
		if fd.IsMap() {
			return mismatch(s, f, "map fields are not supported")
		}
		if f.Repeated != fd.IsList() {
			return mismatch(s, f, "repeated %t, proto field repeated %t", f.Repeated, fd.IsList())
		}
		if !compatible(f.Type, fd.Kind()) {
			return mismatch(s, f, "type %s cannot carry proto kind %s", f.Type, fd.Kind())
		}
		switch f.Type {
		case schema.TypeEnum:
			values := fd.Enum().Values()
			for _, v := range f.Values {
				if values.ByName(protoreflect.Name(v)) == nil {
					return mismatch(s, f, "enum value %q not in %s", v, fd.Enum().FullName())
				}
			}
		case schema.TypeMessage:
			nested := f.NestedSchema()
			if nested == nil {
				return mismatch(s, f, "nested schema %q not resolved", f.Message)
			}
			if err := CheckDescriptor(nested, fd.Message()); err != nil {
				return err
			}
		}
	}
	return nil
}

func mismatch(s *schema.Schema, f *schema.Field, format string, args ...any) error {
	return &dcclerr.SchemaValidationError{Schema: s.Name, Field: f.Name, Reason: fmt.Sprintf(format, args...)}
}

func compatible(t schema.FieldType, k protoreflect.Kind) bool {
	switch t {
	case schema.TypeInt:
		return isIntKind(k)
	case schema.TypeEnum:
		return k == protoreflect.EnumKind
	case schema.TypeFloat:
		return k == protoreflect.FloatKind || k == protoreflect.DoubleKind
	case schema.TypeBool:
		return k == protoreflect.BoolKind
	case schema.TypeString:
		return k == protoreflect.StringKind
	case schema.TypeBytes:
		return k == protoreflect.BytesKind
	case schema.TypeMessage:
		return k == protoreflect.MessageKind
	}
	return false
}

func isIntKind(k protoreflect.Kind) bool {
	switch k {
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind,
		protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind,
		protoreflect.Uint32Kind, protoreflect.Fixed32Kind,
		protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		return true
	}
	return false
}

func lookupField(m protoreflect.Message, f *schema.Field, path string) (protoreflect.FieldDescriptor, error) {
	fd := m.Descriptor().Fields().ByName(protoreflect.Name(f.Name))
	if fd == nil {
		return nil, &dcclerr.FieldError{Field: path, Reason: "no such field in " + string(m.Descriptor().FullName())}
	}
	return fd, nil
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func fromFields(s *schema.Schema, m protoreflect.Message, prefix string) (message.Fields, error) {
	fields := make(message.Fields, len(s.Fields))
	for i := range s.Fields {
		f := &s.Fields[i]
		path := joinPath(prefix, f.Name)
		if f.Type == schema.TypeStatic {
			fields[f.Name] = f.StaticValue
			continue
		}
		fd, err := lookupField(m, f, path)
		if err != nil {
			return nil, err
		}

		if fd.IsList() {
			if f.Optional && m.Get(fd).List().Len() == 0 {
				continue
			}
			list := m.Get(fd).List()
			out := make([]any, list.Len())
			for j := range out {
				v, err := fromValue(f, fd, list.Get(j), fmt.Sprintf("%s[%d]", path, j))
				if err != nil {
					return nil, err
				}
				out[j] = v
			}
			fields[f.Name] = out
			continue
		}

		if f.Optional && !m.Has(fd) {
			continue
		}
		v, err := fromValue(f, fd, m.Get(fd), path)
		if err != nil {
			return nil, err
		}
		fields[f.Name] = v
	}
	return fields, nil
}

func fromValue(f *schema.Field, fd protoreflect.FieldDescriptor, v protoreflect.Value, path string) (any, error) {
	switch fd.Kind() {
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind,
		protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		return v.Int(), nil
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind,
		protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		u := v.Uint()
		if u > math.MaxInt64 {
			return nil, &dcclerr.RangeError{Field: path, Value: u, Reason: "exceeds int64"}
		}
		return int64(u), nil
	case protoreflect.EnumKind:
		ev := fd.Enum().Values().ByNumber(v.Enum())
		if ev == nil {
			return nil, &dcclerr.RangeError{Field: path, Value: int32(v.Enum()), Reason: "unknown enum number"}
		}
		return string(ev.Name()), nil
	case protoreflect.FloatKind, protoreflect.DoubleKind:
		return v.Float(), nil
	case protoreflect.BoolKind:
		return v.Bool(), nil
	case protoreflect.StringKind:
		return v.String(), nil
	case protoreflect.BytesKind:
		return append([]byte(nil), v.Bytes()...), nil
	case protoreflect.MessageKind:
		nested := f.NestedSchema()
		if nested == nil {
			return nil, &dcclerr.FieldError{Field: path, Reason: "nested schema not resolved"}
		}
		return fromFields(nested, v.Message(), path)
	}
	return nil, &dcclerr.FieldError{Field: path, Reason: "unsupported proto kind " + fd.Kind().String()}
}

func toFields(s *schema.Schema, fields message.Fields, m protoreflect.Message, prefix string) error {
	for i := range s.Fields {
		f := &s.Fields[i]
		if f.Type == schema.TypeStatic {
			continue
		}
		path := joinPath(prefix, f.Name)
		fd, err := lookupField(m, f, path)
		if err != nil {
			return err
		}

		v, ok := fields.Get(f.Name)
		if !ok {
			m.Clear(fd)
			continue
		}

		switch {
		case fd.IsList():
			elems, ok := v.([]any)
			if !ok {
				return &dcclerr.FieldError{Field: path, Reason: fmt.Sprintf("got %T, want []any", v)}
			}
			m.Clear(fd)
			list := m.Mutable(fd).List()
			for j, elem := range elems {
				epath := fmt.Sprintf("%s[%d]", path, j)
				if fd.Kind() == protoreflect.MessageKind {
					pv := list.NewElement()
					if err := toNested(f, elem, pv.Message(), epath); err != nil {
						return err
					}
					list.Append(pv)
					continue
				}
				pv, err := toValue(fd, elem, epath)
				if err != nil {
					return err
				}
				list.Append(pv)
			}
		case fd.Kind() == protoreflect.MessageKind:
			if err := toNested(f, v, m.Mutable(fd).Message(), path); err != nil {
				return err
			}
		default:
			pv, err := toValue(fd, v, path)
			if err != nil {
				return err
			}
			m.Set(fd, pv)
		}
	}
	return nil
}

func toNested(f *schema.Field, v any, m protoreflect.Message, path string) error {
	nested := f.NestedSchema()
	if nested == nil {
		return &dcclerr.FieldError{Field: path, Reason: "nested schema not resolved"}
	}
	var fields message.Fields
	switch t := v.(type) {
	case message.Fields:
		fields = t
	case map[string]any:
		fields = message.Fields(t)
	default:
		return &dcclerr.FieldError{Field: path, Reason: fmt.Sprintf("got %T, want message.Fields", v)}
	}
	return toFields(nested, fields, m, path)
}

func toValue(fd protoreflect.FieldDescriptor, v any, path string) (protoreflect.Value, error) {
	wrongType := func(want string) error {
		return &dcclerr.FieldError{Field: path, Reason: fmt.Sprintf("got %T, want %s", v, want)}
	}
	overflow := func() error {
		return &dcclerr.RangeError{Field: path, Value: v, Reason: "overflows " + fd.Kind().String()}
	}

	switch fd.Kind() {
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
		n, ok := asInt64(v)
		if !ok {
			return protoreflect.Value{}, wrongType("integer")
		}
		if n < math.MinInt32 || n > math.MaxInt32 {
			return protoreflect.Value{}, overflow()
		}
		return protoreflect.ValueOfInt32(int32(n)), nil
	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		n, ok := asInt64(v)
		if !ok {
			return protoreflect.Value{}, wrongType("integer")
		}
		return protoreflect.ValueOfInt64(n), nil
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
		n, ok := asInt64(v)
		if !ok {
			return protoreflect.Value{}, wrongType("integer")
		}
		if n < 0 || n > math.MaxUint32 {
			return protoreflect.Value{}, overflow()
		}
		return protoreflect.ValueOfUint32(uint32(n)), nil
	case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		n, ok := asInt64(v)
		if !ok {
			return protoreflect.Value{}, wrongType("integer")
		}
		if n < 0 {
			return protoreflect.Value{}, overflow()
		}
		return protoreflect.ValueOfUint64(uint64(n)), nil
	case protoreflect.EnumKind:
		name, ok := v.(string)
		if !ok {
			return protoreflect.Value{}, wrongType("enum value name")
		}
		ev := fd.Enum().Values().ByName(protoreflect.Name(name))
		if ev == nil {
			return protoreflect.Value{}, &dcclerr.RangeError{Field: path, Value: v, Reason: "not a value of " + string(fd.Enum().FullName())}
		}
		return protoreflect.ValueOfEnum(ev.Number()), nil
	case protoreflect.FloatKind:
		x, ok := asFloat64(v)
		if !ok {
			return protoreflect.Value{}, wrongType("number")
		}
		return protoreflect.ValueOfFloat32(float32(x)), nil
	case protoreflect.DoubleKind:
		x, ok := asFloat64(v)
		if !ok {
			return protoreflect.Value{}, wrongType("number")
		}
		return protoreflect.ValueOfFloat64(x), nil
	case protoreflect.BoolKind:
		b, ok := v.(bool)
		if !ok {
			return protoreflect.Value{}, wrongType("bool")
		}
		return protoreflect.ValueOfBool(b), nil
	case protoreflect.StringKind:
		s, ok := v.(string)
		if !ok {
			return protoreflect.Value{}, wrongType("string")
		}
		return protoreflect.ValueOfString(s), nil
	case protoreflect.BytesKind:
		b, ok := v.([]byte)
		if !ok {
			return protoreflect.Value{}, wrongType("[]byte")
		}
		return protoreflect.ValueOfBytes(b), nil
	}
	return protoreflect.Value{}, &dcclerr.FieldError{Field: path, Reason: "unsupported proto kind " + fd.Kind().String()}
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case uint32:
		return int64(n), true
	case float64:
		if n == math.Trunc(n) {
			return int64(n), true
		}
	}
	return 0, false
}

func asFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	if i, ok := asInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}
