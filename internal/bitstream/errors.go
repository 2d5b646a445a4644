package bitstream

import "errors"

// ErrInvalidWidth is recorded when a caller asks for fewer than 0 or more
// than 64 bits in a single call.
var ErrInvalidWidth = errors.New("bitstream: bit width must be in [0, 64]")

// MaxWidth is the widest value a single WriteBits/ReadBits call can move.
const MaxWidth = 64
