package asm

import (
	"testing"
)

func optFunc(body ...*Node) *FunctionDefinition {
	fn := NewFunctionDefinition(&FunctionSignature{Ret: TypeVoid}, 4, 0, 0)
	fn.Body = body
	return fn
}

func setLocal(idx uint32, value *Node) *Node {
	n := NewStmt(OpSetLocal, value)
	n.Index = idx
	return n
}

func TestOptimizeNoChanges(t *testing.T) {
	stmt := setLocal(0, NewGetLocal(1, TypeI32))
	fn := optFunc(stmt)

	if got := fn.Optimize(); got != 0 {
		t.Fatalf("Optimize = %d, want 0", got)
	}
	if fn.Body[0] != stmt {
		t.Fatal("unchanged statement was replaced")
	}
}

func TestOptimizeFoldsLiteralAdd(t *testing.T) {
	fn := optFunc(setLocal(0, NewExpr(OpAddI32, TypeI32, NewLitI32(2), NewLitI32(3))))

	if got := fn.Optimize(); got != 1 {
		t.Fatalf("Optimize = %d, want 1", got)
	}
	v := fn.Body[0].Kids[0]
	if v.Op != OpLitI32 || v.Lit != 5 {
		t.Fatalf("folded value = %s %d, want LitI32 5", OpcodeName(v.Op), v.Lit)
	}
}

func TestOptimizeDropsAddZero(t *testing.T) {
	x := NewGetLocal(1, TypeI32)
	fn := optFunc(setLocal(0, NewExpr(OpAddI32, TypeI32, x, NewLitI32(0))))

	if got := fn.Optimize(); got != 1 {
		t.Fatalf("Optimize = %d, want 1", got)
	}
	if fn.Body[0].Kids[0] != x {
		t.Fatal("x + 0 did not reduce to x itself")
	}
}

func TestOptimizeSubAndMulIdentities(t *testing.T) {
	x := NewGetLocal(1, TypeI32)
	y := NewGetLocal(2, TypeI32)
	fn := optFunc(
		setLocal(0, NewExpr(OpSubI32, TypeI32, x, NewLitI32(0))),
		setLocal(0, NewExpr(OpMulI32, TypeI32, y, NewLitI32(1))),
		setLocal(0, NewExpr(OpMulI32, TypeI32, NewLitI32(1), NewGetLocal(3, TypeI32))),
	)

	if got := fn.Optimize(); got != 3 {
		t.Fatalf("Optimize = %d, want 3", got)
	}
	if fn.Body[0].Kids[0] != x {
		t.Fatal("x - 0 did not reduce to x")
	}
	if fn.Body[1].Kids[0] != y {
		t.Fatal("y * 1 did not reduce to y")
	}
	if got := fn.Body[2].Kids[0]; got.Op != OpGetLocal || got.Index != 3 {
		t.Fatal("1 * z did not reduce to z")
	}
}

func TestOptimizeEmptyElseBecomesIf(t *testing.T) {
	n := NewStmt(OpIfElse,
		NewLitI32(1),
		NewStmt(OpReturn),
		NewStmt(OpBlock))
	fn := optFunc(n)

	if got := fn.Optimize(); got != 1 {
		t.Fatalf("Optimize = %d, want 1", got)
	}
	if fn.Body[0] != n {
		t.Fatal("in-place rewrite replaced the node")
	}
	if n.Op != OpIf || len(n.Kids) != 2 {
		t.Fatalf("rewrote to %s with %d operands, want If with 2", OpcodeName(n.Op), len(n.Kids))
	}
	if n.Behavior != Lookup(OpIf) {
		t.Fatal("behavior reference not updated with the opcode")
	}
}

func TestOptimizeUnwrapsSingleStatementBlock(t *testing.T) {
	inner := NewStmt(OpReturn)
	fn := optFunc(NewStmt(OpBlock, inner))

	if got := fn.Optimize(); got != 1 {
		t.Fatalf("Optimize = %d, want 1", got)
	}
	if fn.Body[0] != inner {
		t.Fatal("single-statement block was not unwrapped at the root")
	}
}

func TestOptimizeSinglePassLeavesWork(t *testing.T) {
	// (1 + 2) + 3 folds the inner add on the first pass; the outer add only
	// sees two literals on the next.
	fn := optFunc(setLocal(0,
		NewExpr(OpAddI32, TypeI32,
			NewExpr(OpAddI32, TypeI32, NewLitI32(1), NewLitI32(2)),
			NewLitI32(3))))

	if got := fn.Optimize(); got != 1 {
		t.Fatalf("first pass = %d, want 1", got)
	}
	if got := fn.Optimize(); got != 1 {
		t.Fatalf("second pass = %d, want 1", got)
	}
	v := fn.Body[0].Kids[0]
	if v.Op != OpLitI32 || v.Lit != 6 {
		t.Fatalf("fixed point = %s %d, want LitI32 6", OpcodeName(v.Op), v.Lit)
	}
	if got := fn.Optimize(); got != 0 {
		t.Fatalf("third pass = %d, want 0", got)
	}
}

func TestOptimizeAllReachesFixedPoint(t *testing.T) {
	fn := optFunc(setLocal(0,
		NewExpr(OpAddI32, TypeI32,
			NewExpr(OpAddI32, TypeI32, NewLitI32(1), NewLitI32(2)),
			NewLitI32(3))))

	if got := fn.OptimizeAll(); got != 2 {
		t.Fatalf("OptimizeAll = %d, want 2", got)
	}
	v := fn.Body[0].Kids[0]
	if v.Op != OpLitI32 || v.Lit != 6 {
		t.Fatalf("result = %s %d, want LitI32 6", OpcodeName(v.Op), v.Lit)
	}
}

func TestOptimizeSubstitutesEveryOccurrence(t *testing.T) {
	// The same node object feeds two statements; both slots must follow the
	// replacement when their copy of the subtree is rewritten.
	shared := NewExpr(OpAddI32, TypeI32, NewLitI32(2), NewLitI32(2))
	fn := optFunc(setLocal(0, shared), setLocal(1, shared))

	if got := fn.Optimize(); got != 2 {
		t.Fatalf("Optimize = %d, want 2", got)
	}
	for i := range fn.Body {
		v := fn.Body[i].Kids[0]
		if v.Op != OpLitI32 || v.Lit != 4 {
			t.Fatalf("statement %d holds %s %d, want LitI32 4", i, OpcodeName(v.Op), v.Lit)
		}
	}
}
