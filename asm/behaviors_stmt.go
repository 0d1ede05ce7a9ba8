package asm

import (
	"fmt"

	"github.com/wippyai/asmpack/errors"
	"github.com/wippyai/asmpack/internal/binary"
)

// Shared encode/decode/validate helpers for behavior records.

func encodeKids(w *binary.Writer, n *Node) error {
	for _, kid := range n.Kids {
		if err := EncodeNode(w, kid); err != nil {
			return err
		}
	}
	return nil
}

func decodeKids(r *binary.Reader, count uint32) ([]*Node, error) {
	kids := make([]*Node, 0, count)
	for i := uint32(0); i < count; i++ {
		kid, err := DecodeNode(r)
		if err != nil {
			return nil, err
		}
		kids = append(kids, kid)
	}
	return kids, nil
}

func wantKids(b *Behavior, n *Node, count int) error {
	if len(n.Kids) != count {
		return errors.OperandCount(errors.PhaseValidate, []string{b.Name}, count, len(n.Kids))
	}
	return nil
}

// wantExpr checks that kid is an expression operand; want == TypeVoid
// skips the result-type check.
func wantExpr(b *Behavior, operand string, kid *Node, want Type) error {
	if kid == nil || !kid.IsExpression() {
		return errors.OperandKind(errors.PhaseValidate, []string{b.Name, operand}, "expression")
	}
	if want != TypeVoid && kid.Type != want {
		return errors.TypeMismatch(errors.PhaseValidate, []string{b.Name, operand}, want.String(), kid.Type.String())
	}
	return nil
}

func wantStmt(b *Behavior, operand string, kid *Node) error {
	if kid == nil || !kid.IsStatement() {
		return errors.OperandKind(errors.PhaseValidate, []string{b.Name, operand}, "statement")
	}
	return nil
}

func requireAssembly(b *Behavior, fn *FunctionDefinition) (*Assembly, error) {
	if fn == nil || fn.Assembly == nil {
		return nil, errors.InvalidShape(errors.PhaseValidate, []string{b.Name}, "function is not attached to an assembly")
	}
	return fn.Assembly, nil
}

// validateCallArgs checks argument operands against a callee signature.
func validateCallArgs(b *Behavior, args []*Node, sig *FunctionSignature) error {
	if len(args) != len(sig.Args) {
		return errors.OperandCount(errors.PhaseValidate, []string{b.Name, "args"}, len(sig.Args), len(args))
	}
	for i, arg := range args {
		if err := wantExpr(b, fmt.Sprintf("arg %d", i), arg, sig.Args[i]); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	register(OpBlock, &Behavior{
		Name: "Block",
		Kind: KindStatement,
		Decode: func(r *binary.Reader, op Opcode) (*Node, error) {
			count, err := r.ReadU32()
			if err != nil {
				return nil, errors.Truncated(errors.PhaseDecode, []string{"Block", "count"}, err)
			}
			kids, err := decodeKids(r, count)
			if err != nil {
				return nil, err
			}
			return NewStmt(op, kids...), nil
		},
		Validate: func(fn *FunctionDefinition, n *Node) error {
			for i, kid := range n.Kids {
				if err := wantStmt(n.Behavior, fmt.Sprintf("stmt %d", i), kid); err != nil {
					return err
				}
			}
			return nil
		},
		Encode: func(w *binary.Writer, n *Node) error {
			w.Byte(byte(n.Op))
			w.WriteU32(uint32(len(n.Kids)))
			return encodeKids(w, n)
		},
		Optimize: func(fn *FunctionDefinition, n *Node) *Node {
			// A single-statement block is the statement itself.
			if len(n.Kids) == 1 {
				return n.Kids[0]
			}
			return n
		},
	})

	register(OpIf, &Behavior{
		Name: "If",
		Kind: KindStatement,
		Decode: func(r *binary.Reader, op Opcode) (*Node, error) {
			kids, err := decodeKids(r, 2)
			if err != nil {
				return nil, err
			}
			return NewStmt(op, kids...), nil
		},
		Validate: func(fn *FunctionDefinition, n *Node) error {
			if err := wantKids(n.Behavior, n, 2); err != nil {
				return err
			}
			if err := wantExpr(n.Behavior, "condition", n.Kids[0], TypeI32); err != nil {
				return err
			}
			return wantStmt(n.Behavior, "body", n.Kids[1])
		},
		Encode: encodePlain,
	})

	register(OpIfElse, &Behavior{
		Name: "IfElse",
		Kind: KindStatement,
		Decode: func(r *binary.Reader, op Opcode) (*Node, error) {
			kids, err := decodeKids(r, 3)
			if err != nil {
				return nil, err
			}
			return NewStmt(op, kids...), nil
		},
		Validate: func(fn *FunctionDefinition, n *Node) error {
			if err := wantKids(n.Behavior, n, 3); err != nil {
				return err
			}
			if err := wantExpr(n.Behavior, "condition", n.Kids[0], TypeI32); err != nil {
				return err
			}
			if err := wantStmt(n.Behavior, "then", n.Kids[1]); err != nil {
				return err
			}
			return wantStmt(n.Behavior, "else", n.Kids[2])
		},
		Encode: encodePlain,
		Optimize: func(fn *FunctionDefinition, n *Node) *Node {
			// An empty else branch degrades to a plain If. The node is
			// rewritten in place; the opcode change is the reported delta.
			if len(n.Kids) != 3 {
				return n
			}
			els := n.Kids[2]
			if els != nil && els.Op == OpBlock && len(els.Kids) == 0 {
				n.Op = OpIf
				n.Behavior = Lookup(OpIf)
				n.Kids = n.Kids[:2]
			}
			return n
		},
	})

	register(OpWhile, &Behavior{
		Name: "While",
		Kind: KindStatement,
		Decode: func(r *binary.Reader, op Opcode) (*Node, error) {
			kids, err := decodeKids(r, 2)
			if err != nil {
				return nil, err
			}
			return NewStmt(op, kids...), nil
		},
		Validate: func(fn *FunctionDefinition, n *Node) error {
			if err := wantKids(n.Behavior, n, 2); err != nil {
				return err
			}
			if err := wantExpr(n.Behavior, "condition", n.Kids[0], TypeI32); err != nil {
				return err
			}
			return wantStmt(n.Behavior, "body", n.Kids[1])
		},
		Encode: encodePlain,
	})

	register(OpReturn, &Behavior{
		Name: "Return",
		Kind: KindStatement,
		Decode: func(r *binary.Reader, op Opcode) (*Node, error) {
			count, err := r.ReadU32()
			if err != nil {
				return nil, errors.Truncated(errors.PhaseDecode, []string{"Return", "count"}, err)
			}
			if count > 1 {
				return nil, errors.InvalidShape(errors.PhaseDecode, []string{"Return"}, "more than one return value")
			}
			kids, err := decodeKids(r, count)
			if err != nil {
				return nil, err
			}
			return NewStmt(op, kids...), nil
		},
		Validate: func(fn *FunctionDefinition, n *Node) error {
			if fn == nil || fn.Sig == nil {
				return errors.InvalidShape(errors.PhaseValidate, []string{"Return"}, "function has no signature")
			}
			if fn.Sig.Ret == TypeVoid {
				return wantKids(n.Behavior, n, 0)
			}
			if err := wantKids(n.Behavior, n, 1); err != nil {
				return err
			}
			return wantExpr(n.Behavior, "value", n.Kids[0], fn.Sig.Ret)
		},
		Encode: func(w *binary.Writer, n *Node) error {
			w.Byte(byte(n.Op))
			w.WriteU32(uint32(len(n.Kids)))
			return encodeKids(w, n)
		},
	})

	register(OpSetLocal, &Behavior{
		Name: "SetLocal",
		Kind: KindStatement,
		Decode: decodeIndexedOne,
		Validate: func(fn *FunctionDefinition, n *Node) error {
			if err := wantKids(n.Behavior, n, 1); err != nil {
				return err
			}
			v, err := fn.Variable(int(n.Index))
			if err != nil {
				return err
			}
			return wantExpr(n.Behavior, "value", n.Kids[0], v.Type)
		},
		Encode: encodeIndexed,
	})

	register(OpSetGlobal, &Behavior{
		Name: "SetGlobal",
		Kind: KindStatement,
		Decode: decodeIndexedOne,
		Validate: func(fn *FunctionDefinition, n *Node) error {
			if err := wantKids(n.Behavior, n, 1); err != nil {
				return err
			}
			a, err := requireAssembly(n.Behavior, fn)
			if err != nil {
				return err
			}
			if int(n.Index) >= len(a.Globals) {
				return errors.OutOfRange(errors.PhaseValidate, []string{"SetGlobal"}, int(n.Index), len(a.Globals))
			}
			return wantExpr(n.Behavior, "value", n.Kids[0], a.Globals[n.Index].Type)
		},
		Encode: encodeIndexed,
	})

	register(OpStoreI32, storeBehavior("StoreI32", TypeI32))
	register(OpStoreF32, storeBehavior("StoreF32", TypeF32))
	register(OpStoreF64, storeBehavior("StoreF64", TypeF64))

	register(OpCallStmt, &Behavior{
		Name: "CallStmt",
		Kind: KindStatement,
		Decode: func(r *binary.Reader, op Opcode) (*Node, error) {
			return decodeCall(r, op, false)
		},
		Validate: func(fn *FunctionDefinition, n *Node) error {
			a, err := requireAssembly(n.Behavior, fn)
			if err != nil {
				return err
			}
			sig, err := a.DeclarationSignature(n.Index)
			if err != nil {
				return err
			}
			return validateCallArgs(n.Behavior, n.Kids, sig)
		},
		Encode: encodeCall,
	})

	register(OpCallImportStmt, &Behavior{
		Name: "CallImportStmt",
		Kind: KindStatement,
		Decode: func(r *binary.Reader, op Opcode) (*Node, error) {
			importIdx, err := r.ReadU32()
			if err != nil {
				return nil, errors.Truncated(errors.PhaseDecode, []string{"CallImportStmt", "import"}, err)
			}
			sigIdx, err := r.ReadU32()
			if err != nil {
				return nil, errors.Truncated(errors.PhaseDecode, []string{"CallImportStmt", "signature"}, err)
			}
			argc, err := r.ReadU32()
			if err != nil {
				return nil, errors.Truncated(errors.PhaseDecode, []string{"CallImportStmt", "argc"}, err)
			}
			kids, err := decodeKids(r, argc)
			if err != nil {
				return nil, err
			}
			n := NewStmt(op, kids...)
			n.Index = importIdx
			n.SigIndex = sigIdx
			return n, nil
		},
		Validate: func(fn *FunctionDefinition, n *Node) error {
			a, err := requireAssembly(n.Behavior, fn)
			if err != nil {
				return err
			}
			if int(n.Index) >= len(a.Imports) {
				return errors.OutOfRange(errors.PhaseValidate, []string{"CallImportStmt", "import"}, int(n.Index), len(a.Imports))
			}
			imp := a.Imports[n.Index]
			if int(n.SigIndex) >= len(imp.SigIndexes) {
				return errors.OutOfRange(errors.PhaseValidate, []string{"CallImportStmt", "signature"}, int(n.SigIndex), len(imp.SigIndexes))
			}
			sig, err := a.Signature(imp.SigIndexes[n.SigIndex])
			if err != nil {
				return err
			}
			return validateCallArgs(n.Behavior, n.Kids, sig)
		},
		Encode: func(w *binary.Writer, n *Node) error {
			w.Byte(byte(n.Op))
			w.WriteU32(n.Index)
			w.WriteU32(n.SigIndex)
			w.WriteU32(uint32(len(n.Kids)))
			return encodeKids(w, n)
		},
	})
}

// encodePlain emits the opcode code and operands with no immediates.
func encodePlain(w *binary.Writer, n *Node) error {
	w.Byte(byte(n.Op))
	return encodeKids(w, n)
}

// encodeIndexed emits the opcode code, the primary index immediate, then
// the operands.
func encodeIndexed(w *binary.Writer, n *Node) error {
	w.Byte(byte(n.Op))
	w.WriteU32(n.Index)
	return encodeKids(w, n)
}

// decodeIndexedOne reads one index immediate and one operand.
func decodeIndexedOne(r *binary.Reader, op Opcode) (*Node, error) {
	idx, err := r.ReadU32()
	if err != nil {
		return nil, errors.Truncated(errors.PhaseDecode, []string{OpcodeName(op), "index"}, err)
	}
	kids, err := decodeKids(r, 1)
	if err != nil {
		return nil, err
	}
	n := NewStmt(op, kids...)
	n.Index = idx
	return n, nil
}

func encodeCall(w *binary.Writer, n *Node) error {
	w.Byte(byte(n.Op))
	w.WriteU32(n.Index)
	w.WriteU32(uint32(len(n.Kids)))
	return encodeKids(w, n)
}

// decodeCall reads a declaration index, an argument count, and that many
// argument sub-trees. Expression calls get their result type annotated
// once the assembly context is known.
func decodeCall(r *binary.Reader, op Opcode, expr bool) (*Node, error) {
	declIdx, err := r.ReadU32()
	if err != nil {
		return nil, errors.Truncated(errors.PhaseDecode, []string{OpcodeName(op), "callee"}, err)
	}
	argc, err := r.ReadU32()
	if err != nil {
		return nil, errors.Truncated(errors.PhaseDecode, []string{OpcodeName(op), "argc"}, err)
	}
	kids, err := decodeKids(r, argc)
	if err != nil {
		return nil, err
	}
	var n *Node
	if expr {
		n = NewExpr(op, TypeVoid, kids...)
	} else {
		n = NewStmt(op, kids...)
	}
	n.Index = declIdx
	return n, nil
}

func storeBehavior(name string, heap Type) *Behavior {
	b := &Behavior{
		Name:     name,
		Kind:     KindStatement,
		HeapType: heap,
	}
	b.Decode = func(r *binary.Reader, op Opcode) (*Node, error) {
		kids, err := decodeKids(r, 2)
		if err != nil {
			return nil, err
		}
		return NewStmt(op, kids...), nil
	}
	b.Validate = func(fn *FunctionDefinition, n *Node) error {
		if err := wantKids(b, n, 2); err != nil {
			return err
		}
		// The heap index is always an I32 expression.
		if err := wantExpr(b, "heap index", n.Kids[0], TypeI32); err != nil {
			return err
		}
		// The stored value must match the opcode's heap type.
		return wantExpr(b, "value", n.Kids[1], heap)
	}
	b.Encode = encodePlain
	return b
}
