// Package render converts decoded messages to and from text and binary
// document formats for the dccl command.
package render

import (
	"fmt"
	"sort"

	"github.com/dccl/go-dccl/pkg/dccl/message"
)

// Format encodes and decodes documents.
type Format interface {
	// Marshal serializes v into bytes.
	Marshal(v any) ([]byte, error)
	// Unmarshal deserializes data into v (must be a pointer).
	Unmarshal(data []byte, v any) error
	// Name returns the format identifier.
	Name() string
}

// Document is the rendered form of a message.
type Document struct {
	ID     uint32         `json:"id" yaml:"id" cbor:"id" msgpack:"id"`
	Schema string         `json:"schema,omitempty" yaml:"schema,omitempty" cbor:"schema,omitempty" msgpack:"schema,omitempty"`
	Fields map[string]any `json:"fields" yaml:"fields" cbor:"fields" msgpack:"fields"`
}

// FromMessage wraps msg for rendering.
func FromMessage(msg message.Message, schema string) Document {
	return Document{ID: msg.ID, Schema: schema, Fields: plain(msg.Fields)}
}

// Message returns the document as a message instance.
func (d Document) Message() message.Message {
	fields := message.Fields(d.Fields)
	if fields == nil {
		fields = message.Fields{}
	}
	return message.Message{ID: d.ID, Fields: fields}
}

// plain converts nested message.Fields into map[string]any so every format
// sees ordinary maps.
func plain(v any) map[string]any {
	var src map[string]any
	switch t := v.(type) {
	case message.Fields:
		src = t
	case map[string]any:
		src = t
	}
	out := make(map[string]any, len(src))
	for k, val := range src {
		out[k] = plainValue(val)
	}
	return out
}

func plainValue(v any) any {
	switch t := v.(type) {
	case message.Fields, map[string]any:
		return plain(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = plainValue(t[i])
		}
		return out
	}
	return v
}

var formats = map[string]func() (Format, error){
	"json":    func() (Format, error) { return JSON(), nil },
	"yaml":    func() (Format, error) { return YAML(), nil },
	"cbor":    CBOR,
	"msgpack": func() (Format, error) { return MsgPack(), nil },
}

// Lookup returns the named format.
func Lookup(name string) (Format, error) {
	ctor, ok := formats[name]
	if !ok {
		return nil, fmt.Errorf("render: unknown format %q (want one of %v)", name, Names())
	}
	return ctor()
}

// Names returns the supported format names, sorted.
func Names() []string {
	names := make([]string, 0, len(formats))
	for name := range formats {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
