package schema

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Describe returns a human-readable layout of the schema: every field with
// its type, bounds and size in bits.
func (s *Schema) Describe() string {
	var sb strings.Builder
	min, max := s.SizeRange()
	fmt.Fprintf(&sb, "%s (id %d, fingerprint %016x)\n", s.Name, s.ID, s.Fingerprint())
	if min == max {
		fmt.Fprintf(&sb, "\tbody size [bits]: %d\n", min)
	} else {
		fmt.Fprintf(&sb, "\tbody size [bits]: %d..%d\n", min, max)
	}
	for i := range s.Fields {
		sb.WriteString(s.Fields[i].describe())
	}
	return sb.String()
}

func (f *Field) describe() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "\t%s (%s", f.Name, f.Type)
	if f.Optional {
		sb.WriteString(", optional")
	}
	if f.Repeated {
		fmt.Fprintf(&sb, ", repeated <= %d", f.MaxRepeat)
	}
	sb.WriteString("):\n")

	if len(f.Algorithms) > 0 {
		fmt.Fprintf(&sb, "\t\talgorithm(s): %s\n", strings.Join(f.Algorithms, ", "))
	}
	switch f.Type {
	case TypeInt, TypeFloat:
		fmt.Fprintf(&sb, "\t\t[min, max] = [%v, %v]\n", f.Min, f.Max)
		if f.Type == TypeFloat {
			fmt.Fprintf(&sb, "\t\tprecision: %d\n", f.Precision)
		}
	case TypeString, TypeBytes:
		fmt.Fprintf(&sb, "\t\tmax_length: %d\n", f.MaxLength)
	case TypeEnum:
		fmt.Fprintf(&sb, "\t\tvalues: {%s}\n", strings.Join(f.Values, ","))
	case TypeStatic:
		fmt.Fprintf(&sb, "\t\tvalue: %q\n", f.StaticValue)
	case TypeMessage:
		fmt.Fprintf(&sb, "\t\tmessage: %s\n", f.Message)
	}

	min, max := f.SizeRange()
	if min == max {
		fmt.Fprintf(&sb, "\t\tsize [bits]: %d\n", min)
	} else {
		fmt.Fprintf(&sb, "\t\tsize [bits]: %d..%d\n", min, max)
	}
	return sb.String()
}

// Fingerprint returns an xxhash-64 of the schema's canonical wire layout,
// nested schemas included. Two peers with equal fingerprints agree on the
// encoding bit for bit. Field names are part of the layout; algorithms are
// not, since they do not change the wire format.
func (s *Schema) Fingerprint() uint64 {
	d := xxhash.New()
	s.canonical(d)
	return d.Sum64()
}

func (s *Schema) canonical(d *xxhash.Digest) {
	_, _ = d.WriteString("schema:")
	_, _ = d.WriteString(strconv.FormatUint(uint64(s.ID), 10))
	_, _ = d.WriteString(":")
	_, _ = d.WriteString(s.Name)
	for i := range s.Fields {
		f := &s.Fields[i]
		_, _ = d.WriteString(fmt.Sprintf("|%s:%s:o=%t:r=%t/%d", f.Name, f.Type, f.Optional, f.Repeated, f.MaxRepeat))
		switch f.Type {
		case TypeInt:
			min, max := f.IntRange()
			_, _ = d.WriteString(fmt.Sprintf(":%d:%d", min, max))
		case TypeFloat:
			min, max := f.ScaledRange()
			_, _ = d.WriteString(fmt.Sprintf(":%d:%d:p=%d", min, max, f.Precision))
		case TypeString, TypeBytes:
			_, _ = d.WriteString(fmt.Sprintf(":l=%d", f.MaxLength))
		case TypeEnum:
			_, _ = d.WriteString(":" + strings.Join(f.Values, ","))
		case TypeStatic:
			_, _ = d.WriteString(":" + f.StaticValue)
		case TypeMessage:
			_, _ = d.WriteString("{")
			if f.nested != nil {
				f.nested.canonical(d)
			} else {
				_, _ = d.WriteString(f.Message)
			}
			_, _ = d.WriteString("}")
		}
	}
}
