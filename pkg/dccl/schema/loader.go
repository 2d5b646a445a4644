package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Description is the on-disk form of a set of schemas:
//
//	[[message]]
//	id = 1
//	name = "Status"
//
//	  [[message.field]]
//	  name = "depth"
//	  type = "float"
//	  min = 0
//	  max = 6000
//	  precision = 1
type Description struct {
	Messages []MessageDescription `toml:"message" yaml:"message"`
}

// MessageDescription describes one schema.
type MessageDescription struct {
	ID     uint32             `toml:"id" yaml:"id"`
	Name   string             `toml:"name" yaml:"name"`
	Fields []FieldDescription `toml:"field" yaml:"field"`
}

// FieldDescription describes one field. Min and Max accept integers or
// floats.
type FieldDescription struct {
	Name        string   `toml:"name" yaml:"name"`
	Type        string   `toml:"type" yaml:"type"`
	Optional    bool     `toml:"optional" yaml:"optional"`
	Repeated    bool     `toml:"repeated" yaml:"repeated"`
	MaxRepeat   int      `toml:"max_repeat" yaml:"max_repeat"`
	Min         any      `toml:"min" yaml:"min"`
	Max         any      `toml:"max" yaml:"max"`
	Precision   int      `toml:"precision" yaml:"precision"`
	MaxLength   int      `toml:"max_length" yaml:"max_length"`
	Values      []string `toml:"values" yaml:"values"`
	StaticValue string   `toml:"static_value" yaml:"static_value"`
	Message     string   `toml:"message" yaml:"message"`
	Algorithms  []string `toml:"algorithms" yaml:"algorithms"`
}

// ParseTOML parses a TOML description.
func ParseTOML(data []byte) ([]*Schema, error) {
	var d Description
	if _, err := toml.Decode(string(data), &d); err != nil {
		return nil, fmt.Errorf("schema: parse toml: %w", err)
	}
	return d.Compile()
}

// ParseYAML parses a YAML description.
func ParseYAML(data []byte) ([]*Schema, error) {
	var d Description
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("schema: parse yaml: %w", err)
	}
	return d.Compile()
}

// LoadFile reads a description file, choosing the format by extension.
func LoadFile(path string) ([]*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema: read %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return ParseTOML(data)
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return nil, fmt.Errorf("schema: unsupported description format %q", filepath.Ext(path))
	}
}

// Compile converts the description into schemas. It only checks what the
// description format itself requires; bounds and references are validated
// when the schemas are registered.
func (d Description) Compile() ([]*Schema, error) {
	out := make([]*Schema, 0, len(d.Messages))
	for _, m := range d.Messages {
		s := &Schema{ID: m.ID, Name: m.Name, Fields: make([]Field, 0, len(m.Fields))}
		for _, fd := range m.Fields {
			f, err := fd.compile()
			if err != nil {
				return nil, fmt.Errorf("schema: message %q field %q: %w", m.Name, fd.Name, err)
			}
			s.Fields = append(s.Fields, f)
		}
		out = append(out, s)
	}
	return out, nil
}

func (fd FieldDescription) compile() (Field, error) {
	min, err := toFloat(fd.Min)
	if err != nil {
		return Field{}, fmt.Errorf("min: %w", err)
	}
	max, err := toFloat(fd.Max)
	if err != nil {
		return Field{}, fmt.Errorf("max: %w", err)
	}
	return Field{
		Name:        fd.Name,
		Type:        FieldType(strings.ToLower(fd.Type)),
		Optional:    fd.Optional,
		Repeated:    fd.Repeated,
		MaxRepeat:   fd.MaxRepeat,
		Min:         min,
		Max:         max,
		Precision:   fd.Precision,
		MaxLength:   fd.MaxLength,
		Values:      fd.Values,
		StaticValue: fd.StaticValue,
		Message:     fd.Message,
		Algorithms:  fd.Algorithms,
	}, nil
}

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case uint64:
		return float64(t), nil
	case float64:
		return t, nil
	}
	return 0, fmt.Errorf("expected a number, got %T", v)
}
