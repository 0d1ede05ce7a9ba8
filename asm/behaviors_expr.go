package asm

import (
	"github.com/wippyai/asmpack/errors"
	"github.com/wippyai/asmpack/internal/binary"
)

func init() {
	register(OpGetLocal, &Behavior{
		Name:   "GetLocal",
		Kind:   KindExpression,
		Decode: decodeIndexedExpr,
		Validate: func(fn *FunctionDefinition, n *Node) error {
			if err := wantKids(n.Behavior, n, 0); err != nil {
				return err
			}
			v, err := fn.Variable(int(n.Index))
			if err != nil {
				return err
			}
			if n.Type != v.Type {
				return errors.TypeMismatch(errors.PhaseValidate, []string{"GetLocal"}, v.Type.String(), n.Type.String())
			}
			return nil
		},
		Encode: encodeIndexed,
	})

	register(OpGetGlobal, &Behavior{
		Name:   "GetGlobal",
		Kind:   KindExpression,
		Decode: decodeIndexedExpr,
		Validate: func(fn *FunctionDefinition, n *Node) error {
			if err := wantKids(n.Behavior, n, 0); err != nil {
				return err
			}
			a, err := requireAssembly(n.Behavior, fn)
			if err != nil {
				return err
			}
			if int(n.Index) >= len(a.Globals) {
				return errors.OutOfRange(errors.PhaseValidate, []string{"GetGlobal"}, int(n.Index), len(a.Globals))
			}
			if want := a.Globals[n.Index].Type; n.Type != want {
				return errors.TypeMismatch(errors.PhaseValidate, []string{"GetGlobal"}, want.String(), n.Type.String())
			}
			return nil
		},
		Encode: encodeIndexed,
	})

	register(OpLitI32, &Behavior{
		Name: "LitI32",
		Kind: KindExpression,
		Decode: func(r *binary.Reader, op Opcode) (*Node, error) {
			v, err := r.ReadS32()
			if err != nil {
				return nil, errors.Truncated(errors.PhaseDecode, []string{"LitI32"}, err)
			}
			return NewLitI32(v), nil
		},
		Validate: func(fn *FunctionDefinition, n *Node) error {
			if err := wantKids(n.Behavior, n, 0); err != nil {
				return err
			}
			if n.Type != TypeI32 {
				return errors.TypeMismatch(errors.PhaseValidate, []string{"LitI32"}, "i32", n.Type.String())
			}
			return nil
		},
		Encode: func(w *binary.Writer, n *Node) error {
			w.Byte(byte(n.Op))
			w.WriteS32(n.Lit)
			return nil
		},
	})

	register(OpConstI32, constBehavior("ConstI32", TypeI32))
	register(OpConstF32, constBehavior("ConstF32", TypeF32))
	register(OpConstF64, constBehavior("ConstF64", TypeF64))

	register(OpLoadI32, loadBehavior("LoadI32", TypeI32))
	register(OpLoadF32, loadBehavior("LoadF32", TypeF32))
	register(OpLoadF64, loadBehavior("LoadF64", TypeF64))

	register(OpAddI32, arithBehavior("AddI32", TypeI32, optimizeAddI32))
	register(OpSubI32, arithBehavior("SubI32", TypeI32, optimizeSubI32))
	register(OpMulI32, arithBehavior("MulI32", TypeI32, optimizeMulI32))
	register(OpAddF32, arithBehavior("AddF32", TypeF32, nil))
	register(OpMulF32, arithBehavior("MulF32", TypeF32, nil))
	register(OpAddF64, arithBehavior("AddF64", TypeF64, nil))
	register(OpMulF64, arithBehavior("MulF64", TypeF64, nil))

	register(OpCallExpr, &Behavior{
		Name: "CallExpr",
		Kind: KindExpression,
		Decode: func(r *binary.Reader, op Opcode) (*Node, error) {
			return decodeCall(r, op, true)
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
			if sig.Ret == TypeVoid {
				return errors.InvalidShape(errors.PhaseValidate, []string{"CallExpr"}, "callee returns void")
			}
			if n.Type != sig.Ret {
				return errors.TypeMismatch(errors.PhaseValidate, []string{"CallExpr"}, sig.Ret.String(), n.Type.String())
			}
			return validateCallArgs(n.Behavior, n.Kids, sig)
		},
		Encode: encodeCall,
	})

	register(OpCallIndirect, &Behavior{
		Name: "CallIndirect",
		Kind: KindExpression,
		Decode: func(r *binary.Reader, op Opcode) (*Node, error) {
			tableIdx, err := r.ReadU32()
			if err != nil {
				return nil, errors.Truncated(errors.PhaseDecode, []string{"CallIndirect", "table"}, err)
			}
			argc, err := r.ReadU32()
			if err != nil {
				return nil, errors.Truncated(errors.PhaseDecode, []string{"CallIndirect", "argc"}, err)
			}
			// Operand 0 is the table-slot index expression.
			kids, err := decodeKids(r, argc+1)
			if err != nil {
				return nil, err
			}
			n := NewExpr(op, TypeVoid, kids...)
			n.Index = tableIdx
			return n, nil
		},
		Validate: func(fn *FunctionDefinition, n *Node) error {
			a, err := requireAssembly(n.Behavior, fn)
			if err != nil {
				return err
			}
			if int(n.Index) >= len(a.PointerTables) {
				return errors.OutOfRange(errors.PhaseValidate, []string{"CallIndirect", "table"}, int(n.Index), len(a.PointerTables))
			}
			sig, err := a.Signature(a.PointerTables[n.Index].SigIndex)
			if err != nil {
				return err
			}
			if len(n.Kids) < 1 {
				return errors.OperandCount(errors.PhaseValidate, []string{"CallIndirect"}, len(sig.Args)+1, len(n.Kids))
			}
			if err := wantExpr(n.Behavior, "slot index", n.Kids[0], TypeI32); err != nil {
				return err
			}
			if n.Type != sig.Ret {
				return errors.TypeMismatch(errors.PhaseValidate, []string{"CallIndirect"}, sig.Ret.String(), n.Type.String())
			}
			return validateCallArgs(n.Behavior, n.Kids[1:], sig)
		},
		Encode: func(w *binary.Writer, n *Node) error {
			w.Byte(byte(n.Op))
			w.WriteU32(n.Index)
			if len(n.Kids) > 0 {
				w.WriteU32(uint32(len(n.Kids) - 1))
			} else {
				w.WriteU32(0)
			}
			return encodeKids(w, n)
		},
	})
}

// decodeIndexedExpr reads one index immediate and no operands. The result
// type depends on module context and is annotated by the caller.
func decodeIndexedExpr(r *binary.Reader, op Opcode) (*Node, error) {
	idx, err := r.ReadU32()
	if err != nil {
		return nil, errors.Truncated(errors.PhaseDecode, []string{OpcodeName(op), "index"}, err)
	}
	n := NewExpr(op, TypeVoid)
	n.Index = idx
	return n, nil
}

func constBehavior(name string, t Type) *Behavior {
	b := &Behavior{
		Name: name,
		Kind: KindExpression,
	}
	b.Decode = func(r *binary.Reader, op Opcode) (*Node, error) {
		idx, err := r.ReadU32()
		if err != nil {
			return nil, errors.Truncated(errors.PhaseDecode, []string{name, "pool index"}, err)
		}
		n := NewExpr(op, t)
		n.Index = idx
		return n, nil
	}
	b.Validate = func(fn *FunctionDefinition, n *Node) error {
		if err := wantKids(b, n, 0); err != nil {
			return err
		}
		a, err := requireAssembly(b, fn)
		if err != nil {
			return err
		}
		var poolLen int
		switch t {
		case TypeI32:
			poolLen = len(a.I32Consts)
		case TypeF32:
			poolLen = len(a.F32Consts)
		case TypeF64:
			poolLen = len(a.F64Consts)
		}
		if int(n.Index) >= poolLen {
			return errors.OutOfRange(errors.PhaseValidate, []string{name, "pool index"}, int(n.Index), poolLen)
		}
		if n.Type != t {
			return errors.TypeMismatch(errors.PhaseValidate, []string{name}, t.String(), n.Type.String())
		}
		return nil
	}
	b.Encode = encodeIndexed
	return b
}

func loadBehavior(name string, heap Type) *Behavior {
	b := &Behavior{
		Name:     name,
		Kind:     KindExpression,
		HeapType: heap,
	}
	b.Decode = func(r *binary.Reader, op Opcode) (*Node, error) {
		kids, err := decodeKids(r, 1)
		if err != nil {
			return nil, err
		}
		return NewExpr(op, heap, kids...), nil
	}
	b.Validate = func(fn *FunctionDefinition, n *Node) error {
		if err := wantKids(b, n, 1); err != nil {
			return err
		}
		if err := wantExpr(b, "heap index", n.Kids[0], TypeI32); err != nil {
			return err
		}
		if n.Type != heap {
			return errors.TypeMismatch(errors.PhaseValidate, []string{name}, heap.String(), n.Type.String())
		}
		return nil
	}
	b.Encode = encodePlain
	return b
}

func arithBehavior(name string, t Type, opt func(*FunctionDefinition, *Node) *Node) *Behavior {
	b := &Behavior{
		Name: name,
		Kind: KindExpression,
	}
	b.Decode = func(r *binary.Reader, op Opcode) (*Node, error) {
		kids, err := decodeKids(r, 2)
		if err != nil {
			return nil, err
		}
		return NewExpr(op, t, kids...), nil
	}
	b.Validate = func(fn *FunctionDefinition, n *Node) error {
		if err := wantKids(b, n, 2); err != nil {
			return err
		}
		if err := wantExpr(b, "lhs", n.Kids[0], t); err != nil {
			return err
		}
		if err := wantExpr(b, "rhs", n.Kids[1], t); err != nil {
			return err
		}
		if n.Type != t {
			return errors.TypeMismatch(errors.PhaseValidate, []string{name}, t.String(), n.Type.String())
		}
		return nil
	}
	b.Encode = encodePlain
	b.Optimize = opt
	return b
}

func isLitI32(n *Node) bool {
	return n != nil && n.Op == OpLitI32
}

func optimizeAddI32(fn *FunctionDefinition, n *Node) *Node {
	if len(n.Kids) != 2 {
		return n
	}
	lhs, rhs := n.Kids[0], n.Kids[1]
	switch {
	case isLitI32(lhs) && isLitI32(rhs):
		return NewLitI32(lhs.Lit + rhs.Lit)
	case isLitI32(rhs) && rhs.Lit == 0:
		return lhs
	case isLitI32(lhs) && lhs.Lit == 0:
		return rhs
	}
	return n
}

func optimizeSubI32(fn *FunctionDefinition, n *Node) *Node {
	if len(n.Kids) != 2 {
		return n
	}
	lhs, rhs := n.Kids[0], n.Kids[1]
	switch {
	case isLitI32(lhs) && isLitI32(rhs):
		return NewLitI32(lhs.Lit - rhs.Lit)
	case isLitI32(rhs) && rhs.Lit == 0:
		return lhs
	}
	return n
}

func optimizeMulI32(fn *FunctionDefinition, n *Node) *Node {
	if len(n.Kids) != 2 {
		return n
	}
	lhs, rhs := n.Kids[0], n.Kids[1]
	switch {
	case isLitI32(lhs) && isLitI32(rhs):
		return NewLitI32(lhs.Lit * rhs.Lit)
	case isLitI32(rhs) && rhs.Lit == 1:
		return lhs
	case isLitI32(lhs) && lhs.Lit == 1:
		return rhs
	}
	return n
}
