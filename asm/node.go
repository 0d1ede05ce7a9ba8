package asm

import (
	"github.com/wippyai/asmpack/errors"
	"github.com/wippyai/asmpack/internal/binary"
)

// Node is one statement or expression in a function's tree. It carries its
// opcode, an ordered operand list, immediates fixed at construction time,
// and a reference to its opcode's behavior record. Expression nodes
// additionally carry a declared result type.
type Node struct {
	Behavior *Behavior
	Kids     []*Node

	// Index is the opcode's primary immediate: a local, global, constant
	// pool, declaration, import, or table index depending on the opcode.
	Index uint32
	// SigIndex selects a signature within an import's signature list
	// (CallImportStmt only).
	SigIndex uint32
	// Lit is the embedded literal payload (LitI32 only).
	Lit int32

	Op   Opcode
	Type Type
}

// NewStmt constructs a statement node for op. An unregistered opcode
// leaves the behavior reference nil; validation and encoding report it.
func NewStmt(op Opcode, kids ...*Node) *Node {
	return &Node{Op: op, Behavior: Lookup(op), Kids: kids}
}

// NewExpr constructs an expression node with the given result type.
func NewExpr(op Opcode, t Type, kids ...*Node) *Node {
	return &Node{Op: op, Behavior: Lookup(op), Type: t, Kids: kids}
}

// NewLitI32 constructs an I32 literal expression.
func NewLitI32(v int32) *Node {
	n := NewExpr(OpLitI32, TypeI32)
	n.Lit = v
	return n
}

// NewGetLocal constructs a local read with the local's type.
func NewGetLocal(index uint32, t Type) *Node {
	n := NewExpr(OpGetLocal, t)
	n.Index = index
	return n
}

// IsStatement reports whether the node's opcode is a statement.
func (n *Node) IsStatement() bool {
	return n.Behavior != nil && n.Behavior.Kind == KindStatement
}

// IsExpression reports whether the node's opcode is an expression.
func (n *Node) IsExpression() bool {
	return n.Behavior != nil && n.Behavior.Kind == KindExpression
}

// EncodeNode emits the node through its behavior: the opcode code, the
// opcode's immediates, then each operand in declared order.
func EncodeNode(w *binary.Writer, n *Node) error {
	if n == nil {
		return errors.InvalidShape(errors.PhaseEncode, nil, "nil node")
	}
	if n.Behavior == nil {
		return errors.UnknownOpcode(errors.PhaseEncode, byte(n.Op))
	}
	return n.Behavior.Encode(w, n)
}

// DecodeNode reads one node: the opcode code, then the opcode-specific
// wire shape through the opcode's behavior.
func DecodeNode(r *binary.Reader) (*Node, error) {
	code, err := r.ReadByte()
	if err != nil {
		return nil, errors.Truncated(errors.PhaseDecode, []string{"opcode"}, err)
	}
	b := Lookup(Opcode(code))
	if b == nil {
		return nil, errors.UnknownOpcode(errors.PhaseDecode, code)
	}
	return b.Decode(r, Opcode(code))
}

// ValidateTree validates n and every node below it through the behavior
// table.
func ValidateTree(fn *FunctionDefinition, n *Node) error {
	if n == nil {
		return errors.InvalidShape(errors.PhaseValidate, nil, "nil node")
	}
	if n.Behavior == nil {
		return errors.UnknownOpcode(errors.PhaseValidate, byte(n.Op))
	}
	if err := n.Behavior.Validate(fn, n); err != nil {
		return err
	}
	for _, kid := range n.Kids {
		if err := ValidateTree(fn, kid); err != nil {
			return err
		}
	}
	return nil
}
