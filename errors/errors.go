package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseValidate Phase = "validate" // structural tree validation
	PhaseEncode   Phase = "encode"   // tree to wire bytes
	PhaseDecode   Phase = "decode"   // wire bytes to tree
	PhaseOptimize Phase = "optimize" // peephole rewriting
	PhaseWrite    Phase = "write"    // module writer state machine
	PhaseLayout   Phase = "layout"   // local-variable table construction
)

// Kind categorizes the error
type Kind string

const (
	KindTypeMismatch  Kind = "type_mismatch"
	KindOperandCount  Kind = "operand_count"
	KindOperandKind   Kind = "operand_kind"
	KindOutOfRange    Kind = "out_of_range"
	KindOutOfOrder    Kind = "out_of_order"
	KindUnknownOpcode Kind = "unknown_opcode"
	KindInvalidShape  Kind = "invalid_shape"
	KindTruncated     Kind = "truncated"
	KindOverflow      Kind = "overflow"
	KindSizeMismatch  Kind = "size_mismatch"
	KindClosed        Kind = "closed"
)

// Error is the structured error type used throughout the packer
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Want   string
	Got    string
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Want != "" || e.Got != "" {
		b.WriteString(": ")
		if e.Want != "" && e.Got != "" {
			b.WriteString("want ")
			b.WriteString(e.Want)
			b.WriteString(", got ")
			b.WriteString(e.Got)
		} else if e.Want != "" {
			b.WriteString("want ")
			b.WriteString(e.Want)
		} else {
			b.WriteString("got ")
			b.WriteString(e.Got)
		}
	}

	if e.Detail != "" {
		if e.Want != "" || e.Got != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the constraint path (e.g. opcode name, operand name)
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Want sets the expected type or shape
func (b *Builder) Want(s string) *Builder {
	b.err.Want = s
	return b
}

// Got sets the actual type or shape
func (b *Builder) Got(s string) *Builder {
	b.err.Got = s
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Is and As re-export the standard library helpers so callers need only
// one errors import.

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Convenience constructors for common error patterns

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, path []string, want, got string) *Error {
	return &Error{
		Phase: phase,
		Kind:  KindTypeMismatch,
		Path:  path,
		Want:  want,
		Got:   got,
	}
}

// OperandCount creates a wrong-operand-count error
func OperandCount(phase Phase, path []string, want, got int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOperandCount,
		Path:   path,
		Detail: fmt.Sprintf("expected %d operands, got %d", want, got),
		Value:  got,
	}
}

// OperandKind creates a statement/expression kind violation error
func OperandKind(phase Phase, path []string, want string) *Error {
	return &Error{
		Phase: phase,
		Kind:  KindOperandKind,
		Path:  path,
		Want:  want,
	}
}

// OutOfRange creates an index range error
func OutOfRange(phase Phase, path []string, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfRange,
		Path:   path,
		Detail: fmt.Sprintf("index %d out of range (length %d)", index, length),
		Value:  index,
	}
}

// UnknownOpcode creates an unknown opcode error
func UnknownOpcode(phase Phase, code byte) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnknownOpcode,
		Detail: fmt.Sprintf("opcode 0x%02x has no registered behavior", code),
		Value:  code,
	}
}

// OutOfOrder creates a pool ordering violation error
func OutOfOrder(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfOrder,
		Path:   path,
		Detail: detail,
	}
}

// InvalidShape creates an illegal entity shape error
func InvalidShape(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidShape,
		Path:   path,
		Detail: detail,
	}
}

// Truncated creates an unexpected-end-of-input error
func Truncated(phase Phase, path []string, cause error) *Error {
	return &Error{
		Phase: phase,
		Kind:  KindTruncated,
		Path:  path,
		Cause: cause,
	}
}
