package codec

import (
	"fmt"

	"github.com/dccl/go-dccl/internal/bitstream"
	"github.com/dccl/go-dccl/pkg/dccl/dcclerr"
	"github.com/dccl/go-dccl/pkg/dccl/message"
	"github.com/dccl/go-dccl/pkg/dccl/schema"
)

// Decoder turns bit-packed bytes back into message instances.
type Decoder struct {
	registry *schema.Registry
	opts     options
}

// NewDecoder creates a decoder over the schemas of registry.
func NewDecoder(registry *schema.Registry, opts ...Option) *Decoder {
	return &Decoder{registry: registry, opts: buildOptions(opts)}
}

// Decode reads the header, resolves the schema and decodes every field.
// No partial message is returned on error.
func (d *Decoder) Decode(data []byte) (message.Message, error) {
	return d.decode(data, nil)
}

// DecodeAs decodes data and fails unless its header carries id.
func (d *Decoder) DecodeAs(id uint32, data []byte) (message.Message, error) {
	return d.decode(data, &id)
}

// PeekID returns the schema id in the header of data without decoding the
// body.
func (d *Decoder) PeekID(data []byte) (uint32, error) {
	r := bitstream.NewReader(data)
	id, err := r.ReadBits(d.registry.Limits().HeaderBits)
	if err != nil {
		return 0, err
	}
	return uint32(id), nil
}

func (d *Decoder) decode(data []byte, expect *uint32) (message.Message, error) {
	limits := d.registry.Limits()
	if len(data) > limits.MaxMessageBytes {
		return message.Message{}, &dcclerr.MalformedMessageError{
			Reason: fmt.Sprintf("%d bytes exceeds limit of %d", len(data), limits.MaxMessageBytes),
		}
	}

	r := bitstream.NewReader(data)
	raw, err := r.ReadBits(limits.HeaderBits)
	if err != nil {
		return message.Message{}, err
	}
	id := uint32(raw)
	if expect != nil && id != *expect {
		return message.Message{}, &dcclerr.MalformedMessageError{
			Reason: fmt.Sprintf("header carries schema id %d, expected %d", id, *expect),
		}
	}

	s, err := d.registry.Lookup(id)
	if err != nil {
		return message.Message{}, err
	}

	b := &budget{limit: limits.MaxElements, left: limits.MaxElements}
	fields, err := d.decodeFields(r, s, "", b)
	if err != nil {
		return message.Message{}, err
	}
	if err := checkTrailing(r); err != nil {
		return message.Message{}, err
	}
	return message.Message{ID: id, Fields: fields}, nil
}

// checkTrailing accepts at most seven zero padding bits after the last field.
func checkTrailing(r *bitstream.Reader) error {
	rem := r.Remaining()
	if rem == 0 {
		return nil
	}
	if rem > 7 {
		return &dcclerr.MalformedMessageError{Reason: fmt.Sprintf("%d trailing bits after last field", rem)}
	}
	pad, err := r.ReadBits(rem)
	if err != nil {
		return err
	}
	if pad != 0 {
		return &dcclerr.MalformedMessageError{Reason: "non-zero padding bits"}
	}
	return nil
}

// budget counts decoded values against Limits.MaxElements so a short input
// cannot expand into an unbounded value tree.
type budget struct {
	limit int
	left  int
}

func (b *budget) take(n int, path string) error {
	if n > b.left {
		return &dcclerr.MalformedMessageError{
			Field:  path,
			Reason: fmt.Sprintf("message decodes to more than %d elements", b.limit),
		}
	}
	b.left -= n
	return nil
}

func (d *Decoder) decodeFields(r *bitstream.Reader, s *schema.Schema, prefix string, b *budget) (message.Fields, error) {
	fields := make(message.Fields, len(s.Fields))
	for i := range s.Fields {
		f := &s.Fields[i]
		path := joinPath(prefix, f.Name)

		if f.Optional {
			present, err := r.ReadBool()
			if err != nil {
				return nil, err
			}
			if !present {
				continue
			}
		}

		if !f.Repeated {
			if err := b.take(1, path); err != nil {
				return nil, err
			}
			v, err := d.decodeValue(r, f, path, b)
			if err != nil {
				return nil, err
			}
			fields[f.Name] = v
			continue
		}

		count, ok, err := readBounded(r, 0, int64(f.MaxRepeat))
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &dcclerr.MalformedMessageError{Field: path, Reason: fmt.Sprintf("count exceeds max_repeat %d", f.MaxRepeat)}
		}
		if err := b.take(int(count), path); err != nil {
			return nil, err
		}
		list := make([]any, count)
		for j := range list {
			v, err := d.decodeValue(r, f, indexPath(path, j), b)
			if err != nil {
				return nil, err
			}
			list[j] = v
		}
		fields[f.Name] = list
	}
	return fields, nil
}

func (d *Decoder) decodeValue(r *bitstream.Reader, f *schema.Field, path string, b *budget) (any, error) {
	if f.Type == schema.TypeMessage {
		return d.decodeFields(r, f.NestedSchema(), path, b)
	}
	c, ok := CodecFor(f.Type)
	if !ok {
		return nil, &dcclerr.MalformedMessageError{Field: path, Reason: "no codec for type " + string(f.Type)}
	}
	v, err := c.Decode(r, f)
	if err != nil {
		return nil, withPath(err, path)
	}
	return v, nil
}
