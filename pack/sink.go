package pack

import (
	"bytes"
	"math"
)

// BufferSink is an unbounded in-memory destination. It never exerts
// backpressure.
type BufferSink struct {
	buf bytes.Buffer
}

// NewBufferSink creates an empty BufferSink.
func NewBufferSink() *BufferSink {
	return &BufferSink{}
}

// Room implements asmpack.Sink.
func (s *BufferSink) Room() int {
	return math.MaxInt
}

// Write implements asmpack.Sink.
func (s *BufferSink) Write(p []byte) (int, error) {
	return s.buf.Write(p)
}

// Bytes returns everything written so far.
func (s *BufferSink) Bytes() []byte {
	return s.buf.Bytes()
}

// Len returns the number of bytes written so far.
func (s *BufferSink) Len() int {
	return s.buf.Len()
}

// LimitedSink is an in-memory destination that accepts bytes only up to an
// explicitly granted budget, exerting backpressure on the writer. Useful
// for driving the writer's suspend/resume path.
type LimitedSink struct {
	buf  bytes.Buffer
	room int
}

// NewLimitedSink creates a sink with an initial room grant.
func NewLimitedSink(room int) *LimitedSink {
	return &LimitedSink{room: room}
}

// Room implements asmpack.Sink.
func (s *LimitedSink) Room() int {
	return s.room
}

// Grant makes n more bytes of room available.
func (s *LimitedSink) Grant(n int) {
	s.room += n
}

// Write implements asmpack.Sink.
func (s *LimitedSink) Write(p []byte) (int, error) {
	n, err := s.buf.Write(p)
	s.room -= n
	return n, err
}

// Bytes returns everything written so far.
func (s *LimitedSink) Bytes() []byte {
	return s.buf.Bytes()
}

// countSink measures output length without retaining bytes. Used by the
// size precomputation pass.
type countSink struct {
	n uint64
}

func (s *countSink) Room() int {
	return math.MaxInt
}

func (s *countSink) Write(p []byte) (int, error) {
	s.n += uint64(len(p))
	return len(p), nil
}
