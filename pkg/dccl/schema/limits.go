package schema

// Limits bounds what a registry accepts and what a decoder will allocate.
type Limits struct {
	// HeaderBits is the width of the schema id header: 8, 16 or 32
	HeaderBits int `json:"header_bits"`

	// MaxDepth bounds nested-message recursion
	MaxDepth int `json:"max_depth"`

	// MaxRepeat is the ceiling for any repeated field's MaxRepeat
	MaxRepeat int `json:"max_repeat"`

	// MaxLength is the ceiling for any string or bytes field's MaxLength
	MaxLength int `json:"max_length"`

	// MaxMessageBytes rejects larger inputs before decoding starts
	MaxMessageBytes int `json:"max_message_bytes"`

	// MaxElements caps the values a decoder materializes for one message,
	// counting every scalar, nested message and repeated element
	MaxElements int `json:"max_elements"`
}

// DefaultLimits returns the default limits
func DefaultLimits() Limits {
	return Limits{
		HeaderBits:      16,
		MaxDepth:        8,
		MaxRepeat:       1024,
		MaxLength:       4096,
		MaxMessageBytes: 64 * 1024,
		MaxElements:     64 * 1024,
	}
}

// MaxID returns the largest schema id the header can carry.
func (l Limits) MaxID() uint32 {
	if l.HeaderBits >= 32 {
		return ^uint32(0)
	}
	return uint32(1)<<uint(l.HeaderBits) - 1
}

func validHeaderBits(n int) bool {
	return n == 8 || n == 16 || n == 32
}
