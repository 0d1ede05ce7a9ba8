package asm

import (
	"github.com/wippyai/asmpack/errors"
)

// LocalVariable is one slot in a function's variable table. Arguments come
// first; declared locals follow grouped by type.
type LocalVariable struct {
	Type       Type
	IsArgument bool
}

// FunctionDefinition owns one declared function's local-variable table and
// statement tree. The tree is mutable in place: the optimizer may rewrite
// nodes before the function is written.
type FunctionDefinition struct {
	Assembly    *Assembly
	Declaration *FunctionDeclaration
	Sig         *FunctionSignature

	// Body is the root statement list of the function's tree.
	Body []*Node

	NumI32Locals uint32
	NumF32Locals uint32
	NumF64Locals uint32

	// Byte offset and length of this function's emitted body, filled in
	// by the module writer.
	ByteOffset uint64
	ByteLength uint64

	vars []LocalVariable
}

// NewFunctionDefinition builds a definition with its variable table laid
// out as arguments, then I32 locals, then F32 locals, then F64 locals.
func NewFunctionDefinition(sig *FunctionSignature, nI32, nF32, nF64 uint32) *FunctionDefinition {
	fn := &FunctionDefinition{
		Sig:          sig,
		NumI32Locals: nI32,
		NumF32Locals: nF32,
		NumF64Locals: nF64,
	}
	fn.vars = make([]LocalVariable, 0, len(sig.Args)+int(nI32)+int(nF32)+int(nF64))
	for _, t := range sig.Args {
		fn.vars = append(fn.vars, LocalVariable{Type: t, IsArgument: true})
	}
	for i := uint32(0); i < nI32; i++ {
		fn.vars = append(fn.vars, LocalVariable{Type: TypeI32})
	}
	for i := uint32(0); i < nF32; i++ {
		fn.vars = append(fn.vars, LocalVariable{Type: TypeF32})
	}
	for i := uint32(0); i < nF64; i++ {
		fn.vars = append(fn.vars, LocalVariable{Type: TypeF64})
	}
	return fn
}

// NumVariables returns argc + declared local count.
func (fn *FunctionDefinition) NumVariables() int {
	return len(fn.vars)
}

// Variable resolves index k: argument k for k < argc, then I32 locals,
// then F32 locals, then F64 locals.
func (fn *FunctionDefinition) Variable(k int) (LocalVariable, error) {
	if k < 0 || k >= len(fn.vars) {
		return LocalVariable{}, errors.OutOfRange(errors.PhaseLayout, []string{"locals"}, k, len(fn.vars))
	}
	return fn.vars[k], nil
}

// HeaderPrinter renders a function's argument and local layout as source
// text. Implementations live outside this module; it has no wire-format
// implications.
type HeaderPrinter interface {
	PrintFunctionHeader(fn *FunctionDefinition, names []string) (string, error)
}
