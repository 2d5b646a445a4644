package codec_test

import (
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dccl/go-dccl/pkg/dccl/algorithm"
	"github.com/dccl/go-dccl/pkg/dccl/codec"
	"github.com/dccl/go-dccl/pkg/dccl/dcclerr"
	"github.com/dccl/go-dccl/pkg/dccl/message"
	"github.com/dccl/go-dccl/pkg/dccl/schema"
)

// Test helpers

func createTestCodec(t *testing.T, opts ...codec.Option) *codec.Codec {
	t.Helper()
	reg, err := schema.NewRegistry()
	require.NoError(t, err)
	require.NoError(t, reg.RegisterAll([]*schema.Schema{
		schema.NewSchema(1, "Status", schema.Int("a", 0, 15), schema.Int("b", 0, 3)),
		schema.NewSchema(2, "Small", schema.Int("v", 0, 2)),
		schema.NewSchema(3, "Mode", schema.Enum("e", "a", "b", "c")),
		schema.NewSchema(4, "List", schema.Int("x", 0, 1).AsRepeated(2)),
		schema.NewSchema(5, "Text", schema.String("s", 2)),
		schema.NewSchema(6, "Maybe", schema.Int("o", 0, 255).AsOptional()),
		sampleSchema(),
		schema.NewSchema(10, "Position",
			schema.Float("lat", -90, 90, 2),
			schema.Float("lon", -180, 180, 2),
		),
		schema.NewSchema(11, "Tagged", schema.String("tag", 8).WithAlgorithms("trim", "to_lower")),
	}))
	reg.Freeze()
	return codec.New(reg, opts...)
}

func sampleSchema() *schema.Schema {
	return schema.NewSchema(20, "Sample",
		schema.Int("count", -10, 1000),
		schema.Enum("mode", "idle", "survey", "transit"),
		schema.Float("depth", 0, 6000, 1),
		schema.Bool("ok"),
		schema.String("name", 16),
		schema.Bytes("blob", 8),
		schema.Nested("pos", "Position"),
		schema.Int("samples", 0, 255).AsRepeated(4),
		schema.Nested("track", "Position").AsRepeated(3),
		schema.Float("heading", 0, 360, 0).AsOptional(),
		schema.Int("spare", 0, 3).AsOptional(),
		schema.Static("unit", "meters"),
		schema.Int("fixed", 7, 7),
	)
}

func sampleMessage() message.Message {
	return message.New(20).
		Set("count", -3).
		Set("mode", "survey").
		Set("depth", 123.4).
		Set("ok", true).
		Set("name", "unit-7").
		Set("blob", []byte{0xde, 0xad, 0xbe, 0xef}).
		Set("pos", message.Fields{"lat": 41.25, "lon": -70.5}).
		Set("samples", []any{1, 2, 255}).
		Set("track", []any{
			message.Fields{"lat": 1.0, "lon": 2.0},
			map[string]any{"lat": -1.5, "lon": 179.99},
		}).
		Set("spare", 2).
		Set("fixed", 7)
}

func TestCodec_WorkedExample(t *testing.T) {
	c := createTestCodec(t)

	data, err := c.Encode(message.New(1).Set("a", 9).Set("b", 2))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x01, 0x98}, data)

	msg, err := c.Decode(data)
	require.NoError(t, err)
	assert.True(t, message.Equal(message.New(1).Set("a", int64(9)).Set("b", int64(2)), msg), msg.String())
	assert.Equal(t, int64(9), msg.Fields["a"])

	bits, err := c.Size(message.New(1).Set("a", 9).Set("b", 2))
	require.NoError(t, err)
	assert.Equal(t, 22, bits)
}

func TestCodec_RoundTrip(t *testing.T) {
	c := createTestCodec(t)
	in := sampleMessage()

	data, err := c.Encode(in)
	require.NoError(t, err)

	s, err := c.Registry().Lookup(20)
	require.NoError(t, err)
	min, max := s.SizeRange()
	bits, err := c.Size(in)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, bits-16, min)
	assert.LessOrEqual(t, bits-16, max)
	assert.Equal(t, (bits+7)/8, len(data))

	out, err := c.Decode(data)
	require.NoError(t, err)

	want := sampleMessage().Set("unit", "meters")
	assert.True(t, message.Equal(want, out), "got %s", out)
	assert.False(t, out.Fields.Has("heading"))
	assert.Equal(t, "meters", out.Fields["unit"])

	again, err := c.Encode(out)
	require.NoError(t, err)
	assert.Equal(t, data, again, "re-encoding a decoded message is stable")
}

func TestCodec_Deterministic(t *testing.T) {
	c := createTestCodec(t)
	first, err := c.Encode(sampleMessage())
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		data, err := c.Encode(sampleMessage())
		require.NoError(t, err)
		assert.Equal(t, first, data)
	}
}

func TestCodec_Optional(t *testing.T) {
	c := createTestCodec(t)

	tests := []struct {
		name string
		msg  message.Message
		want []byte
	}{
		{"absent", message.New(6), []byte{0x00, 0x06, 0x00}},
		{"nil counts as absent", message.New(6).Set("o", nil), []byte{0x00, 0x06, 0x00}},
		{"present", message.New(6).Set("o", 5), []byte{0x00, 0x06, 0x82, 0x80}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := c.Encode(tt.msg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, data)

			out, err := c.Decode(data)
			require.NoError(t, err)
			assert.True(t, message.Equal(tt.msg, out))
		})
	}
}

func TestCodec_Float(t *testing.T) {
	c := createTestCodec(t)

	tests := []struct {
		name     string
		lat, lon any
		wantLat  float64
		wantLon  float64
	}{
		{"quantized", 45.678, -70.123, 45.68, -70.12},
		{"bounds", -90.0, 180.0, -90, 180},
		{"integers accepted", 12, -7, 12, -7},
		{"round half away from zero", 0.125, -0.125, 0.13, -0.13},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := c.Encode(message.New(10).Set("lat", tt.lat).Set("lon", tt.lon))
			require.NoError(t, err)
			out, err := c.Decode(data)
			require.NoError(t, err)
			assert.InDelta(t, tt.wantLat, out.Fields["lat"], 1e-9)
			assert.InDelta(t, tt.wantLon, out.Fields["lon"], 1e-9)
		})
	}
}

func TestCodec_Algorithms(t *testing.T) {
	c := createTestCodec(t)

	data, err := c.Encode(message.New(11).Set("tag", "  AUV-3 "))
	require.NoError(t, err)
	out, err := c.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "auv-3", out.Fields["tag"])

	empty := createTestCodec(t, codec.WithAlgorithms(algorithm.NewSet()))
	_, err = empty.Encode(message.New(11).Set("tag", "x"))
	var ferr *dcclerr.FieldError
	require.True(t, errors.As(err, &ferr))
	assert.Equal(t, "tag", ferr.Field)
	assert.ErrorIs(t, err, algorithm.ErrUnknown)
}

func TestCodec_EncodeErrors(t *testing.T) {
	c := createTestCodec(t)

	tests := []struct {
		name  string
		msg   message.Message
		kind  error
		field string
	}{
		{"int above max", message.New(1).Set("a", 16).Set("b", 0), dcclerr.ErrRange, "a"},
		{"int below min", message.New(1).Set("a", -1).Set("b", 0), dcclerr.ErrRange, "a"},
		{"unknown enum value", message.New(3).Set("e", "z"), dcclerr.ErrRange, "e"},
		{"string too long", message.New(5).Set("s", "abc"), dcclerr.ErrRange, "s"},
		{"too many elements", message.New(4).Set("x", []any{0, 1, 0}), dcclerr.ErrRange, "x"},
		{"nested out of range", sampleMessage().Set("pos", message.Fields{"lat": 91.0, "lon": 0.0}), dcclerr.ErrRange, "pos.lat"},
		{"repeated element out of range", sampleMessage().Set("samples", []any{1, 256}), dcclerr.ErrRange, "samples[1]"},
		{"repeated nested out of range", sampleMessage().Set("track", []any{message.Fields{"lat": 0.0, "lon": 200.0}}), dcclerr.ErrRange, "track[0].lon"},
		{"static mismatch", sampleMessage().Set("unit", "feet"), dcclerr.ErrRange, "unit"},
		{"fixed mismatch", sampleMessage().Set("fixed", 8), dcclerr.ErrRange, "fixed"},
		{"nan float", message.New(10).Set("lat", 0.0).Set("lon", math.NaN()), dcclerr.ErrRange, "lon"},
		{"float just above max", message.New(10).Set("lat", 90.004).Set("lon", 0.0), dcclerr.ErrRange, "lat"},
		{"float just below min", message.New(10).Set("lat", 0.0).Set("lon", -180.001), dcclerr.ErrRange, "lon"},
		{"uint64 past int64", message.New(1).Set("a", uint64(math.MaxUint64)).Set("b", 0), dcclerr.ErrRange, "a"},
		{"whole float past int64", message.New(1).Set("a", 0).Set("b", 1e19), dcclerr.ErrRange, "b"},
		{"json number past int64", message.New(1).Set("a", json.Number("1e400")).Set("b", 0), dcclerr.ErrRange, "a"},
		{"missing required", message.New(1).Set("a", 1), dcclerr.ErrField, "b"},
		{"missing nested required", sampleMessage().Set("pos", message.Fields{"lat": 1.0}), dcclerr.ErrField, "pos.lon"},
		{"wrong type", message.New(1).Set("a", "nine").Set("b", 0), dcclerr.ErrField, "a"},
		{"fractional int", message.New(1).Set("a", 1.5).Set("b", 0), dcclerr.ErrField, "a"},
		{"enum by ordinal", message.New(3).Set("e", 1), dcclerr.ErrField, "e"},
		{"invalid utf8", message.New(5).Set("s", string([]byte{0xff})), dcclerr.ErrField, "s"},
		{"repeated not a slice", message.New(4).Set("x", 1), dcclerr.ErrField, "x"},
		{"unknown field", message.New(1).Set("a", 1).Set("b", 0).Set("c", 1), dcclerr.ErrField, "c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := c.Encode(tt.msg)
			require.Error(t, err)
			assert.Nil(t, data)
			assert.ErrorIs(t, err, tt.kind)
			assert.Contains(t, err.Error(), tt.field)

			var rerr *dcclerr.RangeError
			var ferr *dcclerr.FieldError
			switch {
			case errors.As(err, &rerr):
				assert.Equal(t, tt.field, rerr.Field)
			case errors.As(err, &ferr):
				assert.Equal(t, tt.field, ferr.Field)
			default:
				t.Fatalf("unexpected error type %T", err)
			}
		})
	}

	_, err := c.Encode(message.New(99))
	assert.ErrorIs(t, err, dcclerr.ErrUnknownSchema)
}

func TestCodec_DecodeErrors(t *testing.T) {
	c := createTestCodec(t)

	tests := []struct {
		name string
		data []byte
		kind error
	}{
		{"empty input", nil, dcclerr.ErrUnderflow},
		{"truncated header", []byte{0x00}, dcclerr.ErrUnderflow},
		{"truncated body", []byte{0x00, 0x01}, dcclerr.ErrUnderflow},
		{"unknown schema", []byte{0x00, 0x63, 0x00}, dcclerr.ErrUnknownSchema},
		{"non-zero padding", []byte{0x00, 0x01, 0x99}, dcclerr.ErrMalformedMessage},
		{"extra byte", []byte{0x00, 0x01, 0x98, 0x00}, dcclerr.ErrMalformedMessage},
		{"int offset past range", []byte{0x00, 0x02, 0xC0}, dcclerr.ErrMalformedMessage},
		{"enum ordinal past values", []byte{0x00, 0x03, 0xC0}, dcclerr.ErrMalformedMessage},
		{"count past max_repeat", []byte{0x00, 0x04, 0xC0}, dcclerr.ErrMalformedMessage},
		{"length past max_length", []byte{0x00, 0x05, 0xC0}, dcclerr.ErrMalformedMessage},
		{"string bytes truncated", []byte{0x00, 0x05, 0x80}, dcclerr.ErrUnderflow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := c.Decode(tt.data)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.kind)
			assert.Nil(t, msg.Fields)
		})
	}
}

func TestCodec_DecodeMalformedField(t *testing.T) {
	c := createTestCodec(t)

	_, err := c.Decode([]byte{0x00, 0x02, 0xC0})
	var merr *dcclerr.MalformedMessageError
	require.True(t, errors.As(err, &merr))
	assert.Equal(t, "v", merr.Field)
}

func TestCodec_MaxMessageBytes(t *testing.T) {
	limits := schema.DefaultLimits()
	limits.MaxMessageBytes = 3
	reg, err := schema.NewRegistry(schema.WithLimits(limits))
	require.NoError(t, err)
	require.NoError(t, reg.Register(schema.NewSchema(1, "Status", schema.Int("a", 0, 15), schema.Int("b", 0, 3))))
	c := codec.New(reg)

	_, err = c.Decode([]byte{0x00, 0x01, 0x98, 0x00})
	assert.ErrorIs(t, err, dcclerr.ErrMalformedMessage)

	_, err = c.Decode([]byte{0x00, 0x01, 0x98})
	assert.NoError(t, err)
}

func TestCodec_MaxElements(t *testing.T) {
	limits := schema.DefaultLimits()
	limits.MaxElements = 10
	reg, err := schema.NewRegistry(schema.WithLimits(limits))
	require.NoError(t, err)
	require.NoError(t, reg.RegisterAll([]*schema.Schema{
		schema.NewSchema(1, "Inner", schema.Int("z", 0, 1).AsRepeated(4)),
		schema.NewSchema(2, "Outer", schema.Nested("in", "Inner").AsRepeated(4)),
	}))
	c := codec.New(reg)

	full := []any{}
	for i := 0; i < 4; i++ {
		full = append(full, message.Fields{"z": []any{1, 0, 1, 0}})
	}
	data, err := c.Encode(message.New(2).Set("in", full))
	require.NoError(t, err)

	msg, err := c.Decode(data)
	var merr *dcclerr.MalformedMessageError
	require.True(t, errors.As(err, &merr), "got %v", err)
	assert.Contains(t, merr.Reason, "more than 10 elements")
	assert.Nil(t, msg.Fields)

	small := []any{message.Fields{"z": []any{1}}, message.Fields{"z": []any{0}}}
	data, err = c.Encode(message.New(2).Set("in", small))
	require.NoError(t, err)
	msg, err = c.Decode(data)
	require.NoError(t, err)
	assert.True(t, message.Equal(message.New(2).Set("in", small), msg), msg.String())
}

func TestCodec_HeaderBits(t *testing.T) {
	limits := schema.DefaultLimits()
	limits.HeaderBits = 8
	reg, err := schema.NewRegistry(schema.WithLimits(limits))
	require.NoError(t, err)
	require.NoError(t, reg.Register(schema.NewSchema(1, "Status", schema.Int("a", 0, 15), schema.Int("b", 0, 3))))
	c := codec.New(reg)

	data, err := c.Encode(message.New(1).Set("a", 9).Set("b", 2))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x98}, data)

	id, err := c.PeekID(data)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), id)
}

func TestCodec_DecodeAs(t *testing.T) {
	c := createTestCodec(t)
	data, err := c.Encode(message.New(1).Set("a", 9).Set("b", 2))
	require.NoError(t, err)

	msg, err := c.DecodeAs(1, data)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), msg.ID)

	_, err = c.DecodeAs(2, data)
	assert.ErrorIs(t, err, dcclerr.ErrMalformedMessage)
}

type recordedCall struct {
	op     string
	schema string
	bytes  int
	failed bool
}

type fakeRecorder struct {
	mu    sync.Mutex
	calls []recordedCall
}

func (f *fakeRecorder) ObserveEncode(schema string, bytes int, d time.Duration, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recordedCall{"encode", schema, bytes, err != nil})
}

func (f *fakeRecorder) ObserveDecode(schema string, bytes int, d time.Duration, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recordedCall{"decode", schema, bytes, err != nil})
}

func TestCodec_Recorder(t *testing.T) {
	rec := &fakeRecorder{}
	c := createTestCodec(t, codec.WithRecorder(rec))

	data, err := c.Encode(message.New(1).Set("a", 9).Set("b", 2))
	require.NoError(t, err)
	_, err = c.Decode(data)
	require.NoError(t, err)
	_, err = c.Decode([]byte{0x00, 0x01, 0x99})
	require.Error(t, err)
	_, err = c.Decode([]byte{0x00, 0x63, 0x00})
	require.Error(t, err)

	assert.Equal(t, []recordedCall{
		{"encode", "Status", 3, false},
		{"decode", "Status", 3, false},
		{"decode", "Status", 3, true},
		{"decode", "unknown", 3, true},
	}, rec.calls)
}

func TestCodec_Concurrent(t *testing.T) {
	c := createTestCodec(t)
	want, err := c.Encode(sampleMessage())
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				data, err := c.Encode(sampleMessage())
				if err != nil {
					errs <- err
					return
				}
				if _, err := c.Decode(data); err != nil {
					errs <- err
					return
				}
				if string(data) != string(want) {
					errs <- errors.New("non-deterministic encoding")
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func BenchmarkCodec_Encode(b *testing.B) {
	reg, _ := schema.NewRegistry()
	_ = reg.RegisterAll([]*schema.Schema{
		schema.NewSchema(10, "Position", schema.Float("lat", -90, 90, 2), schema.Float("lon", -180, 180, 2)),
		sampleSchema(),
	})
	c := codec.New(reg)
	msg := sampleMessage()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := c.Encode(msg); err != nil {
			b.Fatal(err)
		}
	}
}
