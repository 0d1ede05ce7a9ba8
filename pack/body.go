package pack

import (
	"github.com/wippyai/asmpack/asm"
)

// BodyWriter emits one function's statement tree for the wire: a varint
// statement count, then each statement encoded depth-first through its
// behavior record. It suspends on the same insufficient-room condition as
// the module writer and signals completion or error through listeners,
// which are cleared once fired.
type BodyWriter struct {
	fn  *asm.FunctionDefinition
	acc *accumulator

	onComplete func()
	onError    func(error)

	idx     int
	started bool
}

func newBodyWriter(fn *asm.FunctionDefinition, acc *accumulator) *BodyWriter {
	return &BodyWriter{fn: fn, acc: acc}
}

// step advances the body writer by one atomic commit. It returns
// (true, nil) once the whole tree has been emitted, (false, ErrNoRoom) on
// backpressure, and (false, err) on a validation or encode failure.
func (b *BodyWriter) step() (bool, error) {
	if !b.started {
		b.acc.Stage().WriteU32(uint32(len(b.fn.Body)))
		if err := b.acc.Commit(); err != nil {
			return false, err
		}
		b.started = true
		if len(b.fn.Body) == 0 {
			b.finish()
			return true, nil
		}
		return false, nil
	}

	n := b.fn.Body[b.idx]
	if err := asm.ValidateTree(b.fn, n); err != nil {
		b.fail(err)
		return false, err
	}
	if err := asm.EncodeNode(b.acc.Stage(), n); err != nil {
		b.acc.Drop()
		b.fail(err)
		return false, err
	}
	if err := b.acc.Commit(); err != nil {
		// ErrNoRoom is backpressure, not failure; listeners stay armed.
		if err != ErrNoRoom {
			b.fail(err)
		}
		return false, err
	}

	b.idx++
	if b.idx == len(b.fn.Body) {
		b.finish()
		return true, nil
	}
	return false, nil
}

func (b *BodyWriter) finish() {
	if b.onComplete != nil {
		b.onComplete()
	}
	b.release()
}

func (b *BodyWriter) fail(err error) {
	if b.onError != nil {
		b.onError(err)
	}
	b.release()
}

// release clears the completion and error listeners so a torn-down writer
// leaves no dangling continuations.
func (b *BodyWriter) release() {
	b.onComplete = nil
	b.onError = nil
}
