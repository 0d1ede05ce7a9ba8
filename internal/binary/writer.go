package binary

import (
	"bytes"
	"encoding/binary"
	"math"
)

// Writer provides buffered staging for wire-format encoding. Bytes are
// appended in memory and exposed to a destination only when the caller
// drains them, so a staged batch can be dropped and re-staged without
// touching the output stream.
type Writer struct {
	buf *bytes.Buffer
}

// NewWriter creates a new Writer.
func NewWriter() *Writer {
	return &Writer{buf: &bytes.Buffer{}}
}

// Bytes returns the staged bytes.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

// Len returns the number of staged bytes.
func (w *Writer) Len() int {
	return w.buf.Len()
}

// Reset discards all staged bytes.
func (w *Writer) Reset() {
	w.buf.Reset()
}

// Byte stages a single byte.
func (w *Writer) Byte(b byte) {
	w.buf.WriteByte(b)
}

// WriteBytes stages a byte slice.
func (w *Writer) WriteBytes(data []byte) {
	w.buf.Write(data)
}

// WriteU32 stages an unsigned LEB128 encoded uint32.
func (w *Writer) WriteU32(v uint32) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		w.buf.WriteByte(b)
		if v == 0 {
			break
		}
	}
}

// WriteS32 stages a signed LEB128 encoded int32.
func (w *Writer) WriteS32(v int32) {
	more := true
	for more {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			more = false
		} else {
			b |= 0x80
		}
		w.buf.WriteByte(b)
	}
}

// WriteU32LE stages a little-endian uint32 (fixed 4 bytes).
func (w *Writer) WriteU32LE(v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	w.buf.Write(buf[:])
}

// WriteF32 stages a little-endian IEEE-754 float32.
func (w *Writer) WriteF32(v float32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
	w.buf.Write(buf[:])
}

// WriteF64 stages a little-endian IEEE-754 float64.
func (w *Writer) WriteF64(v float64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
	w.buf.Write(buf[:])
}

// WriteName stages a NUL-terminated name. The name itself must not
// contain a NUL byte; callers validate names before staging.
func (w *Writer) WriteName(s string) {
	w.buf.WriteString(s)
	w.buf.WriteByte(0)
}
