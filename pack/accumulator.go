package pack

import (
	"errors"
	"fmt"

	"github.com/wippyai/asmpack"
	"github.com/wippyai/asmpack/internal/binary"
)

// ErrNoRoom is the recoverable backpressure signal: the staged batch does
// not fit the destination's current room. It is never wrapped; compare
// with ==.
var ErrNoRoom = errors.New("pack: insufficient room in sink")

// accumulator stages primitive writes and exposes them to the destination
// only on an explicit atomic commit. A commit either transfers the whole
// staged batch or nothing: on insufficient room the batch is dropped and
// the owning step re-stages the identical bytes when it is re-invoked, so
// a retried step never double-emits a partial result.
//
// The destination receives committed bytes immediately; there is no second
// buffering layer to flush on failure.
type accumulator struct {
	sink   asmpack.Sink
	stage  *binary.Writer
	offset uint64
}

func newAccumulator(sink asmpack.Sink) *accumulator {
	return &accumulator{sink: sink, stage: binary.NewWriter()}
}

// Stage returns the staging writer for the current step.
func (a *accumulator) Stage() *binary.Writer {
	return a.stage
}

// Commit atomically transfers the staged batch to the sink. Returns
// ErrNoRoom when the batch exceeds the sink's current room; any other
// error is a destination fault. The staged batch is discarded in every
// case.
func (a *accumulator) Commit() error {
	n := a.stage.Len()
	if n == 0 {
		return nil
	}
	if n > a.sink.Room() {
		a.stage.Reset()
		return ErrNoRoom
	}
	written, err := a.sink.Write(a.stage.Bytes())
	a.stage.Reset()
	if err != nil {
		return err
	}
	if written != n {
		return fmt.Errorf("pack: sink accepted %d of %d bytes", written, n)
	}
	a.offset += uint64(n)
	return nil
}

// Drop discards any staged bytes without committing them.
func (a *accumulator) Drop() {
	a.stage.Reset()
}

// Offset returns the monotonic count of committed bytes.
func (a *accumulator) Offset() uint64 {
	return a.offset
}
