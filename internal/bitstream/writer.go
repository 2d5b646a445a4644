// Package bitstream implements the sub-byte read/write cursor every field
// codec is layered on. Values are packed most-significant-bit first with no
// alignment between consecutive writes.
package bitstream

import "math/bits"

// Writer appends bit-packed values to a growable byte slice.
//
// Like the rest of the codec's writers it keeps the first error it hits and
// turns every later write into a no-op, so a caller can emit a whole message
// and check Error once at the end.
type Writer struct {
	buf   []byte
	nbits int   // bits written so far
	err   error // first error encountered
}

// NewWriter returns a Writer whose buffer starts with room for sizeHint bytes.
func NewWriter(sizeHint int) *Writer {
	if sizeHint < 0 {
		sizeHint = 0
	}
	return &Writer{buf: make([]byte, 0, sizeHint)}
}

// Error returns the first error that occurred during writing, if any.
func (w *Writer) Error() error {
	return w.err
}

func (w *Writer) recordError(err error) {
	if w.err == nil && err != nil {
		w.err = err
	}
}

// WriteBits packs the low-order n bits of value at the cursor and advances it
// by exactly n bits.
func (w *Writer) WriteBits(value uint64, n int) {
	if w.err != nil {
		return
	}
	if n < 0 || n > MaxWidth {
		w.recordError(ErrInvalidWidth)
		return
	}
	for n > 0 {
		off := w.nbits & 7
		if off == 0 {
			w.buf = append(w.buf, 0)
		}
		free := 8 - off
		take := free
		if n < take {
			take = n
		}
		mask := uint64(1)<<uint(take) - 1
		chunk := byte((value >> uint(n-take)) & mask)
		w.buf[len(w.buf)-1] |= chunk << uint(free-take)
		n -= take
		w.nbits += take
	}
}

// WriteBool writes a single bit.
func (w *Writer) WriteBool(v bool) {
	if v {
		w.WriteBits(1, 1)
		return
	}
	w.WriteBits(0, 1)
}

// WriteBytes writes p as consecutive 8-bit values starting at the cursor.
func (w *Writer) WriteBytes(p []byte) {
	if w.err != nil {
		return
	}
	if w.nbits&7 == 0 {
		w.buf = append(w.buf, p...)
		w.nbits += 8 * len(p)
		return
	}
	for _, b := range p {
		w.WriteBits(uint64(b), 8)
	}
}

// Size returns the number of bits written.
func (w *Writer) Size() int {
	return w.nbits
}

// Len returns the number of bytes the written bits occupy, including the
// final partial byte.
func (w *Writer) Len() int {
	return len(w.buf)
}

// Padding returns the number of zero bits that pad the final partial byte.
func (w *Writer) Padding() int {
	return 8*len(w.buf) - w.nbits
}

// Bytes returns the written bits zero-padded to the next byte boundary, or
// nil if an error was recorded. The slice aliases the Writer's buffer.
func (w *Writer) Bytes() []byte {
	if w.err != nil {
		return nil
	}
	return w.buf
}

// Reset empties the Writer while keeping its allocated capacity.
func (w *Writer) Reset() {
	w.buf = w.buf[:0]
	w.nbits = 0
	w.err = nil
}

// Width returns the number of bits needed to represent every integer in
// [0, span], that is ceil(log2(span+1)).
func Width(span uint64) int {
	return bits.Len64(span)
}
