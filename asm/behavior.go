package asm

import (
	"github.com/wippyai/asmpack/internal/binary"
)

// NodeKind distinguishes statements from expressions.
type NodeKind byte

const (
	KindStatement NodeKind = iota
	KindExpression
)

func (k NodeKind) String() string {
	if k == KindStatement {
		return "statement"
	}
	return "expression"
}

// Behavior is the per-opcode implementation record. Every opcode maps to
// exactly one behavior; nodes reference their behavior rather than
// implementing these operations themselves.
//
// Behaviors are stateless and shared across all trees.
type Behavior struct {
	// Name is the opcode's mnemonic, used in diagnostics.
	Name string
	// Kind is the node kind this opcode produces.
	Kind NodeKind
	// HeapType is the linear-memory value type for the load/store family,
	// TypeVoid otherwise.
	HeapType Type

	// Decode consumes the opcode's wire shape (immediates plus a fixed,
	// opcode-specific number of operand sub-trees) and constructs the node.
	// The opcode code itself has already been read.
	Decode func(r *binary.Reader, op Opcode) (*Node, error)
	// Validate enforces structural invariants: exact operand count,
	// operand kind, and operand result types.
	Validate func(fn *FunctionDefinition, n *Node) error
	// Encode emits the opcode code, immediates, and each operand in
	// declared order.
	Encode func(w *binary.Writer, n *Node) error
	// Optimize returns a well-typed replacement node, or n itself for no
	// change. A behavior may instead rewrite n's opcode in place; the
	// traversal detects that as a change too. Nil means the opcode has no
	// peephole rules.
	Optimize func(fn *FunctionDefinition, n *Node) *Node
}

var behaviors [256]*Behavior

// Lookup returns the behavior registered for op, or nil.
func Lookup(op Opcode) *Behavior {
	return behaviors[op]
}

func register(op Opcode, b *Behavior) {
	behaviors[op] = b
}

// Behaviors returns the registered opcodes in ascending code order.
func Behaviors() []Opcode {
	var ops []Opcode
	for code, b := range behaviors {
		if b != nil {
			ops = append(ops, Opcode(code))
		}
	}
	return ops
}

// OpcodeName returns the mnemonic for op, or "unknown".
func OpcodeName(op Opcode) string {
	if b := Lookup(op); b != nil {
		return b.Name
	}
	return "unknown"
}
