package codec

import (
	"github.com/dccl/go-dccl/internal/bitstream"
	"github.com/dccl/go-dccl/pkg/dccl/dcclerr"
	"github.com/dccl/go-dccl/pkg/dccl/message"
	"github.com/dccl/go-dccl/pkg/dccl/schema"
)

// maxSizeHint caps the initial buffer allocation for large schemas.
const maxSizeHint = 256

// Encoder turns message instances into bit-packed bytes.
type Encoder struct {
	registry *schema.Registry
	opts     options
}

// NewEncoder creates an encoder over the schemas of registry.
func NewEncoder(registry *schema.Registry, opts ...Option) *Encoder {
	return &Encoder{registry: registry, opts: buildOptions(opts)}
}

// Encode writes the header and every field of msg in declared order. On
// error it returns nil bytes.
func (e *Encoder) Encode(msg message.Message) ([]byte, error) {
	s, err := e.registry.Lookup(msg.ID)
	if err != nil {
		return nil, err
	}
	w, err := e.encode(s, msg)
	if err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// Size returns the encoded size of msg in bits, header included and padding
// excluded.
func (e *Encoder) Size(msg message.Message) (int, error) {
	s, err := e.registry.Lookup(msg.ID)
	if err != nil {
		return 0, err
	}
	w, err := e.encode(s, msg)
	if err != nil {
		return 0, err
	}
	return w.Size(), nil
}

func (e *Encoder) encode(s *schema.Schema, msg message.Message) (*bitstream.Writer, error) {
	headerBits := e.registry.Limits().HeaderBits
	_, maxBits := s.SizeRange()
	hint := (headerBits + maxBits + 7) / 8
	if hint > maxSizeHint {
		hint = maxSizeHint
	}

	w := bitstream.NewWriter(hint)
	w.WriteBits(uint64(s.ID), headerBits)
	if err := e.encodeFields(w, s, msg.Fields, ""); err != nil {
		return nil, err
	}
	if err := w.Error(); err != nil {
		return nil, err
	}
	return w, nil
}

func (e *Encoder) encodeFields(w *bitstream.Writer, s *schema.Schema, fields message.Fields, prefix string) error {
	for _, name := range fields.Names() {
		if _, ok := s.Field(name); !ok {
			return &dcclerr.FieldError{Field: joinPath(prefix, name), Reason: "not a field of " + s.Name}
		}
	}

	for i := range s.Fields {
		f := &s.Fields[i]
		path := joinPath(prefix, f.Name)
		v, present := fields.Get(f.Name)

		if f.Optional {
			w.WriteBool(present)
			if !present {
				continue
			}
		} else if !present && f.Type != schema.TypeStatic {
			return &dcclerr.FieldError{Field: path, Reason: "required field missing"}
		}

		if !f.Repeated {
			if err := e.encodeValue(w, f, v, path); err != nil {
				return err
			}
			continue
		}

		list, ok := toList(v)
		if !ok {
			return &dcclerr.FieldError{Field: path, Reason: "repeated field needs a slice"}
		}
		if len(list) > f.MaxRepeat {
			return &dcclerr.RangeError{Field: path, Value: len(list), Reason: "count exceeds max_repeat"}
		}
		writeBounded(w, int64(len(list)), 0, int64(f.MaxRepeat))
		for j, elem := range list {
			if err := e.encodeValue(w, f, elem, indexPath(path, j)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Encoder) encodeValue(w *bitstream.Writer, f *schema.Field, v any, path string) error {
	if len(f.Algorithms) > 0 && v != nil {
		out, err := e.opts.algorithms.Apply(v, f.Algorithms...)
		if err != nil {
			return &dcclerr.FieldError{Field: path, Reason: "algorithm failed", Err: err}
		}
		v = out
	}

	if f.Type == schema.TypeMessage {
		nested, ok := toFields(v)
		if !ok {
			return &dcclerr.FieldError{Field: path, Reason: "nested message needs message.Fields"}
		}
		return e.encodeFields(w, f.NestedSchema(), nested, path)
	}

	c, ok := CodecFor(f.Type)
	if !ok {
		return &dcclerr.FieldError{Field: path, Reason: "no codec for type " + string(f.Type)}
	}
	if err := c.Encode(w, f, v); err != nil {
		return withPath(err, path)
	}
	return nil
}
