package pack

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wippyai/asmpack/asm"
	"github.com/wippyai/asmpack/errors"
)

// richAssembly exercises every section and opcode family: all three
// constant pools, imports, mixed globals, a pointer table, and two
// functions whose bodies cover the statement and expression sets.
func richAssembly(t *testing.T) *asm.Assembly {
	t.Helper()
	a := &asm.Assembly{
		I32Consts: []int32{7, -1},
		F32Consts: []float32{1.5},
		F64Consts: []float64{2.5, 3.25},
		Globals: []*asm.GlobalVariable{
			{Type: asm.TypeI32},
			{Type: asm.TypeF32},
			{Type: asm.TypeF64},
			{Type: asm.TypeI32, Imported: true, ImportName: "heap_base"},
		},
	}
	voidSig := &asm.FunctionSignature{Ret: asm.TypeVoid}
	a.Imports = []*asm.FunctionImport{
		{Name: "env_print", SigIndexes: []uint32{a.AddSignature(voidSig)}},
	}

	fn0 := asm.NewFunctionDefinition(voidSig, 1, 0, 0)
	a.AddFunction(fn0)

	addSig := &asm.FunctionSignature{Ret: asm.TypeI32, Args: []asm.Type{asm.TypeI32, asm.TypeI32}}
	fn1 := asm.NewFunctionDefinition(addSig, 0, 0, 0)
	a.AddFunction(fn1)

	a.PointerTables = []*asm.FunctionPointerTable{
		{SigIndex: a.AddSignature(addSig), Elements: []uint32{1, 1}},
	}

	constI32 := func(idx uint32) *asm.Node {
		n := asm.NewExpr(asm.OpConstI32, asm.TypeI32)
		n.Index = idx
		return n
	}
	constF32 := func(idx uint32) *asm.Node {
		n := asm.NewExpr(asm.OpConstF32, asm.TypeF32)
		n.Index = idx
		return n
	}
	constF64 := func(idx uint32) *asm.Node {
		n := asm.NewExpr(asm.OpConstF64, asm.TypeF64)
		n.Index = idx
		return n
	}
	setLocal := func(idx uint32, v *asm.Node) *asm.Node {
		n := asm.NewStmt(asm.OpSetLocal, v)
		n.Index = idx
		return n
	}
	setGlobal := func(idx uint32, v *asm.Node) *asm.Node {
		n := asm.NewStmt(asm.OpSetGlobal, v)
		n.Index = idx
		return n
	}
	getGlobal := func(idx uint32, t asm.Type) *asm.Node {
		n := asm.NewExpr(asm.OpGetGlobal, t)
		n.Index = idx
		return n
	}
	callImport := func(imp, sel uint32) *asm.Node {
		n := asm.NewStmt(asm.OpCallImportStmt)
		n.Index, n.SigIndex = imp, sel
		return n
	}
	callStmt := func(decl uint32) *asm.Node {
		n := asm.NewStmt(asm.OpCallStmt)
		n.Index = decl
		return n
	}

	fn0.Body = []*asm.Node{
		setLocal(0, asm.NewLitI32(42)),
		setGlobal(0, asm.NewGetLocal(0, asm.TypeI32)),
		setGlobal(1, asm.NewExpr(asm.OpMulF32, asm.TypeF32,
			constF32(0),
			asm.NewExpr(asm.OpLoadF32, asm.TypeF32, asm.NewLitI32(8)))),
		setGlobal(2, asm.NewExpr(asm.OpAddF64, asm.TypeF64,
			constF64(1),
			asm.NewExpr(asm.OpLoadF64, asm.TypeF64, asm.NewLitI32(0)))),
		asm.NewStmt(asm.OpStoreI32, asm.NewLitI32(0), constI32(0)),
		asm.NewStmt(asm.OpStoreF64, asm.NewLitI32(1), constF64(0)),
		asm.NewStmt(asm.OpWhile,
			getGlobal(3, asm.TypeI32),
			asm.NewStmt(asm.OpBlock)),
		asm.NewStmt(asm.OpIfElse,
			asm.NewLitI32(1),
			callImport(0, 0),
			asm.NewStmt(asm.OpBlock,
				setLocal(0, asm.NewExpr(asm.OpSubI32, asm.TypeI32,
					asm.NewGetLocal(0, asm.TypeI32), asm.NewLitI32(1))))),
		callStmt(0),
		asm.NewStmt(asm.OpReturn),
	}

	indirect := asm.NewExpr(asm.OpCallIndirect, asm.TypeI32,
		asm.NewGetLocal(1, asm.TypeI32),
		asm.NewGetLocal(0, asm.TypeI32),
		asm.NewGetLocal(1, asm.TypeI32))
	indirect.Index = 0

	callExpr := asm.NewExpr(asm.OpCallExpr, asm.TypeI32,
		asm.NewGetLocal(0, asm.TypeI32),
		asm.NewGetLocal(1, asm.TypeI32))
	callExpr.Index = 1

	fn1.Body = []*asm.Node{
		asm.NewStmt(asm.OpStoreI32, asm.NewLitI32(0), callExpr),
		asm.NewStmt(asm.OpReturn,
			asm.NewExpr(asm.OpAddI32, asm.TypeI32,
				asm.NewGetLocal(0, asm.TypeI32),
				indirect)),
	}

	a.Export = &asm.Export{
		Kind: asm.ExportRecord,
		Entries: []asm.ExportEntry{
			{Name: "run", FuncIndex: 0},
			{Name: "add", FuncIndex: 1},
		},
	}
	return a
}

func TestRoundtrip(t *testing.T) {
	a := richAssembly(t)
	out := writeModule(t, a)

	dec, err := Decode(out)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if diff := cmp.Diff(a.I32Consts, dec.I32Consts); diff != "" {
		t.Errorf("i32 pool mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(a.F32Consts, dec.F32Consts); diff != "" {
		t.Errorf("f32 pool mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(a.F64Consts, dec.F64Consts); diff != "" {
		t.Errorf("f64 pool mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(a.Signatures, dec.Signatures); diff != "" {
		t.Errorf("signatures mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(a.Imports, dec.Imports); diff != "" {
		t.Errorf("imports mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(a.Globals, dec.Globals); diff != "" {
		t.Errorf("globals mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(a.PointerTables, dec.PointerTables); diff != "" {
		t.Errorf("pointer tables mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(a.Export, dec.Export); diff != "" {
		t.Errorf("export mismatch (-want +got):\n%s", diff)
	}
	if len(dec.Functions) != len(a.Functions) {
		t.Fatalf("decoded %d functions, want %d", len(dec.Functions), len(a.Functions))
	}

	again := writeModule(t, dec)
	if !bytes.Equal(again, out) {
		t.Fatalf("re-encoded module differs\n got % x\nwant % x", again, out)
	}
}

func TestDecodeAnnotatesContextTypes(t *testing.T) {
	out := writeModule(t, richAssembly(t))
	dec, err := Decode(out)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	// fn1: Return(AddI32(GetLocal 0, CallIndirect ...))
	ret := dec.Functions[1].Body[1]
	add := ret.Kids[0]
	if add.Kids[0].Type != asm.TypeI32 {
		t.Fatalf("GetLocal type = %s, want i32", add.Kids[0].Type)
	}
	if add.Kids[1].Op != asm.OpCallIndirect || add.Kids[1].Type != asm.TypeI32 {
		t.Fatalf("CallIndirect type = %s, want i32", add.Kids[1].Type)
	}

	// fn0: SetGlobal 3 is the imported i32 read in the While condition.
	while := dec.Functions[0].Body[6]
	if while.Kids[0].Op != asm.OpGetGlobal || while.Kids[0].Type != asm.TypeI32 {
		t.Fatalf("GetGlobal type = %s, want i32", while.Kids[0].Type)
	}
}

func TestDecodeFunctionMetadata(t *testing.T) {
	a := richAssembly(t)
	out := writeModule(t, a)
	dec, err := Decode(out)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	for i := range a.Functions {
		if a.Functions[i].ByteOffset != dec.Functions[i].ByteOffset {
			t.Errorf("function %d offset: wrote %d, decoded %d",
				i, a.Functions[i].ByteOffset, dec.Functions[i].ByteOffset)
		}
		if a.Functions[i].ByteLength != dec.Functions[i].ByteLength {
			t.Errorf("function %d length: wrote %d, decoded %d",
				i, a.Functions[i].ByteLength, dec.Functions[i].ByteLength)
		}
	}
}

func TestDecodeRejectsBadInput(t *testing.T) {
	valid := writeModule(t, richAssembly(t))

	t.Run("bad magic", func(t *testing.T) {
		bad := append([]byte(nil), valid...)
		bad[0] ^= 0xFF
		wantDecodeError(t, bad, errors.KindInvalidShape)
	})

	t.Run("size mismatch", func(t *testing.T) {
		bad := append([]byte(nil), valid...)
		bad[4]++
		wantDecodeError(t, bad, errors.KindSizeMismatch)
	})

	t.Run("truncated", func(t *testing.T) {
		bad := append([]byte(nil), valid[:len(valid)-3]...)
		// Keep the header honest about the shortened length.
		bad[4] = byte(len(bad))
		wantDecodeError(t, bad, errors.KindTruncated)
	})

	t.Run("empty", func(t *testing.T) {
		wantDecodeError(t, nil, errors.KindTruncated)
	})

	t.Run("unknown export discriminator", func(t *testing.T) {
		out := writeModule(t, emptyAssembly())
		out[len(out)-2] = 0x7F
		wantDecodeError(t, out, errors.KindInvalidShape)
	})

	t.Run("unknown opcode", func(t *testing.T) {
		a := emptyAssembly()
		addVoidFunctions(a, 1)
		a.Functions[0].Body = []*asm.Node{asm.NewStmt(asm.OpReturn)}
		out := writeModule(t, a)
		// The statement opcode sits right after the local header and count.
		idx := int(a.Functions[0].ByteOffset) + 2
		out[idx] = 0x7F
		wantDecodeError(t, out, errors.KindUnknownOpcode)
	})
}

func wantDecodeError(t *testing.T, data []byte, kind errors.Kind) {
	t.Helper()
	_, err := Decode(data)
	if err == nil {
		t.Fatal("Decode accepted bad input")
	}
	var e *errors.Error
	if !errors.As(err, &e) || e.Kind != kind {
		t.Fatalf("Decode error = %v, want kind %s", err, kind)
	}
}
