package render

import (
	"reflect"

	"github.com/bytedance/sonic"
	cbor "github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"
)

// jsonConfig matches encoding/json and keeps numbers as json.Number on
// decode so integers survive unchanged.
var jsonConfig = sonic.Config{
	EscapeHTML:       true,
	SortMapKeys:      true,
	CompactMarshaler: true,
	CopyString:       true,
	ValidateString:   true,
	UseNumber:        true,
}.Froze()

type jsonFormat struct{}

// JSON returns the JSON format.
func JSON() Format { return jsonFormat{} }

func (jsonFormat) Marshal(v any) ([]byte, error) {
	return jsonConfig.MarshalIndent(v, "", "  ")
}

func (jsonFormat) Unmarshal(data []byte, v any) error {
	return jsonConfig.Unmarshal(data, v)
}

func (jsonFormat) Name() string { return "json" }

type yamlFormat struct{}

// YAML returns the YAML format.
func YAML() Format { return yamlFormat{} }

func (yamlFormat) Marshal(v any) ([]byte, error)      { return yaml.Marshal(v) }
func (yamlFormat) Unmarshal(data []byte, v any) error { return yaml.Unmarshal(data, v) }
func (yamlFormat) Name() string                       { return "yaml" }

type cborFormat struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// CBOR returns a deterministic CBOR format. Maps decode as map[string]any.
func CBOR() (Format, error) {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	dm, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		return nil, err
	}
	return cborFormat{enc: em, dec: dm}, nil
}

func (c cborFormat) Marshal(v any) ([]byte, error)      { return c.enc.Marshal(v) }
func (c cborFormat) Unmarshal(data []byte, v any) error { return c.dec.Unmarshal(data, v) }
func (cborFormat) Name() string                         { return "cbor" }

type msgpackFormat struct{}

// MsgPack returns the MessagePack format.
func MsgPack() Format { return msgpackFormat{} }

func (msgpackFormat) Marshal(v any) ([]byte, error)      { return msgpack.Marshal(v) }
func (msgpackFormat) Unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }
func (msgpackFormat) Name() string                       { return "msgpack" }
