// Package codec encodes message instances into compact bit-packed bytes and
// decodes them back, driven by the schemas of a schema.Registry.
//
// A message on the wire is the schema id in a fixed-width header followed by
// every field in declared order, MSB first, zero padded to a byte:
//
//	reg, _ := schema.NewRegistry()
//	_ = reg.Register(schema.NewSchema(1, "sample", schema.Int("a", 0, 15), schema.Int("b", 0, 3)))
//	c := codec.New(reg)
//	data, _ := c.Encode(message.New(1).Set("a", 9).Set("b", 2)) // 0x00 0x01 0x98
package codec

import (
	"time"

	"go.uber.org/zap"

	"github.com/dccl/go-dccl/internal/metrics"
	"github.com/dccl/go-dccl/pkg/dccl/algorithm"
	"github.com/dccl/go-dccl/pkg/dccl/message"
	"github.com/dccl/go-dccl/pkg/dccl/schema"
)

type options struct {
	algorithms *algorithm.Set
	logger     *zap.Logger
	recorder   metrics.Recorder
}

// Option configures a Codec, Encoder or Decoder.
type Option func(*options)

// WithAlgorithms sets the algorithms fields may name. Defaults to
// algorithm.Builtins().
func WithAlgorithms(s *algorithm.Set) Option {
	return func(o *options) {
		if s != nil {
			o.algorithms = s
		}
	}
}

// WithLogger sets the logger used for failed calls.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(o *options) {
		if r != nil {
			o.recorder = r
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		algorithms: algorithm.Builtins(),
		logger:     zap.NewNop(),
		recorder:   metrics.Noop{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Codec pairs an Encoder and a Decoder sharing one registry and option set.
// It is safe for concurrent use once the registry is populated.
type Codec struct {
	*Encoder
	*Decoder

	registry *schema.Registry
	opts     options
}

// New creates a codec over registry.
func New(registry *schema.Registry, opts ...Option) *Codec {
	o := buildOptions(opts)
	return &Codec{
		Encoder:  &Encoder{registry: registry, opts: o},
		Decoder:  &Decoder{registry: registry, opts: o},
		registry: registry,
		opts:     o,
	}
}

// Registry returns the registry the codec reads schemas from.
func (c *Codec) Registry() *schema.Registry {
	return c.registry
}

// Encode encodes msg and records the call.
func (c *Codec) Encode(msg message.Message) ([]byte, error) {
	start := time.Now()
	data, err := c.Encoder.Encode(msg)
	name := c.schemaName(msg.ID)
	c.opts.recorder.ObserveEncode(name, len(data), time.Since(start), err)
	if err != nil {
		c.opts.logger.Debug("encode failed",
			zap.Uint32("id", msg.ID),
			zap.String("schema", name),
			zap.Error(err),
		)
	}
	return data, err
}

// Decode decodes data and records the call.
func (c *Codec) Decode(data []byte) (message.Message, error) {
	start := time.Now()
	msg, err := c.Decoder.Decode(data)
	c.observeDecode(data, msg, start, err)
	return msg, err
}

// DecodeAs decodes data, requiring schema id, and records the call.
func (c *Codec) DecodeAs(id uint32, data []byte) (message.Message, error) {
	start := time.Now()
	msg, err := c.Decoder.DecodeAs(id, data)
	c.observeDecode(data, msg, start, err)
	return msg, err
}

func (c *Codec) observeDecode(data []byte, msg message.Message, start time.Time, err error) {
	name := "unknown"
	if err == nil {
		name = c.schemaName(msg.ID)
	} else if id, perr := c.PeekID(data); perr == nil {
		name = c.schemaName(id)
	}
	c.opts.recorder.ObserveDecode(name, len(data), time.Since(start), err)
	if err != nil {
		c.opts.logger.Debug("decode failed",
			zap.Int("bytes", len(data)),
			zap.String("schema", name),
			zap.Error(err),
		)
	}
}

func (c *Codec) schemaName(id uint32) string {
	s, err := c.registry.Lookup(id)
	if err != nil {
		return "unknown"
	}
	return s.Name
}
