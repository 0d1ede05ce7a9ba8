package pack

import (
	"bytes"
	"testing"

	"github.com/wippyai/asmpack/asm"
	"github.com/wippyai/asmpack/errors"
)

// writeModule drives a writer over an unbounded sink to completion.
func writeModule(t *testing.T, a *asm.Assembly) []byte {
	t.Helper()
	sink := NewBufferSink()
	w, err := NewWriter(a, sink)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	done, err := w.Resume()
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if !done {
		t.Fatal("Resume over an unbounded sink did not finish")
	}
	return sink.Bytes()
}

func emptyAssembly() *asm.Assembly {
	return &asm.Assembly{Export: &asm.Export{Kind: asm.ExportRecord}}
}

func TestWriteEmptyModule(t *testing.T) {
	out := writeModule(t, emptyAssembly())

	want := []byte{
		0x61, 0x73, 0x6D, 0x62, // magic "asmb"
		0x18, 0x00, 0x00, 0x00, // total size 24
		0x00, 0x00, 0x00, // constant pool counts
		0x00,       // signatures
		0x00, 0x00, // imports, total signature refs
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // global group counts
		0x00,       // declarations
		0x00,       // pointer tables
		0x01, 0x00, // record export, no entries
	}
	if !bytes.Equal(out, want) {
		t.Fatalf("module bytes\n got % x\nwant % x", out, want)
	}
}

func TestWriterSizeMatchesOutput(t *testing.T) {
	a := emptyAssembly()
	size, err := Measure(a)
	if err != nil {
		t.Fatalf("Measure: %v", err)
	}
	out := writeModule(t, a)
	if size != uint64(len(out)) {
		t.Fatalf("Measure = %d, output = %d bytes", size, len(out))
	}
}

func TestSignatureSectionBytes(t *testing.T) {
	a := emptyAssembly()
	a.AddSignature(&asm.FunctionSignature{
		Ret:  asm.TypeI32,
		Args: []asm.Type{asm.TypeF64, asm.TypeF64},
	})

	sink := NewBufferSink()
	w, err := NewWriter(a, sink)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	offsets := map[Section]uint64{}
	w.Observe(func(sec Section, off uint64) {
		offsets[sec] = off
	})
	if _, err := w.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}

	section := sink.Bytes()[offsets[SectionSignatures]:offsets[SectionImports]]
	want := []byte{
		0x01,                   // one signature
		0x01, 0x02, 0x03, 0x03, // i32 (f64, f64)
	}
	if !bytes.Equal(section, want) {
		t.Fatalf("signature section % x, want % x", section, want)
	}
}

func addVoidFunctions(a *asm.Assembly, n int) {
	sig := &asm.FunctionSignature{Ret: asm.TypeVoid}
	for i := 0; i < n; i++ {
		a.AddFunction(asm.NewFunctionDefinition(sig, 0, 0, 0))
	}
}

func TestDefaultExportBytes(t *testing.T) {
	a := &asm.Assembly{Export: &asm.Export{Kind: asm.ExportDefault, FuncIndex: 3}}
	addVoidFunctions(a, 4)

	out := writeModule(t, a)
	if got := out[len(out)-2:]; !bytes.Equal(got, []byte{0x00, 0x03}) {
		t.Fatalf("default export tail % x, want 00 03", got)
	}
}

func TestRecordExportBytes(t *testing.T) {
	a := &asm.Assembly{Export: &asm.Export{
		Kind: asm.ExportRecord,
		Entries: []asm.ExportEntry{
			{Name: "main", FuncIndex: 0},
			{Name: "init", FuncIndex: 1},
		},
	}}
	addVoidFunctions(a, 2)

	out := writeModule(t, a)
	want := []byte{
		0x01, 0x02,
		'm', 'a', 'i', 'n', 0x00, 0x00,
		'i', 'n', 'i', 't', 0x00, 0x01,
	}
	if got := out[len(out)-len(want):]; !bytes.Equal(got, want) {
		t.Fatalf("record export tail % x, want % x", got, want)
	}
}

func TestLocalHeaderEncodings(t *testing.T) {
	a := &asm.Assembly{Export: &asm.Export{Kind: asm.ExportRecord}}
	sig := &asm.FunctionSignature{Ret: asm.TypeVoid}
	a.AddFunction(asm.NewFunctionDefinition(sig, 3, 0, 0))   // packed
	a.AddFunction(asm.NewFunctionDefinition(sig, 3, 1, 0))   // flags, f32 present
	a.AddFunction(asm.NewFunctionDefinition(sig, 130, 0, 0)) // flags, count > 127

	sink := NewBufferSink()
	w, err := NewWriter(a, sink)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	var bodiesOff uint64
	w.Observe(func(sec Section, off uint64) {
		if sec == SectionFunctionBodies {
			bodiesOff = off
		}
	})
	if _, err := w.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}

	bodies := sink.Bytes()[bodiesOff : uint64(sink.Len())-2]
	want := []byte{
		0x83, 0x00, // packed: 3 i32 locals, empty body
		0x03, 0x03, 0x01, 0x00, // flags i32|f32, counts 3 and 1
		0x01, 0x82, 0x01, 0x00, // flags i32, varint count 130
	}
	if !bytes.Equal(bodies, want) {
		t.Fatalf("bodies % x, want % x", bodies, want)
	}
}

func TestFunctionByteMetadata(t *testing.T) {
	a := &asm.Assembly{Export: &asm.Export{Kind: asm.ExportRecord}}
	addVoidFunctions(a, 2)
	a.Functions[1].Body = []*asm.Node{asm.NewStmt(asm.OpReturn)}

	out := writeModule(t, a)
	for i, fn := range a.Functions {
		region := out[fn.ByteOffset : fn.ByteOffset+fn.ByteLength]
		if region[0] != 0x80 {
			t.Fatalf("function %d region % x does not start at its local header", i, region)
		}
	}
	if a.Functions[0].ByteLength != 2 {
		t.Fatalf("empty body length = %d, want 2", a.Functions[0].ByteLength)
	}
	if a.Functions[1].ByteLength != 4 {
		t.Fatalf("return body length = %d, want 4", a.Functions[1].ByteLength)
	}
	if end := a.Functions[0].ByteOffset + a.Functions[0].ByteLength; end != a.Functions[1].ByteOffset {
		t.Fatalf("function regions not adjacent: %d vs %d", end, a.Functions[1].ByteOffset)
	}
}

func TestGlobalsOutOfOrderFailsBeforeAnyByte(t *testing.T) {
	a := emptyAssembly()
	a.Globals = []*asm.GlobalVariable{
		{Type: asm.TypeF32},
		{Type: asm.TypeI32},
	}

	sink := NewBufferSink()
	_, err := NewWriter(a, sink)
	if err == nil {
		t.Fatal("expected ordering violation at construction")
	}
	var e *errors.Error
	if !errors.As(err, &e) || e.Kind != errors.KindOutOfOrder {
		t.Fatalf("error = %v, want out_of_order", err)
	}
	if sink.Len() != 0 {
		t.Fatalf("sink received %d bytes from a rejected module", sink.Len())
	}
}

func TestMissingExportIsFatal(t *testing.T) {
	_, err := NewWriter(&asm.Assembly{}, NewBufferSink())
	var e *errors.Error
	if !errors.As(err, &e) || e.Kind != errors.KindInvalidShape {
		t.Fatalf("error = %v, want invalid_shape", err)
	}
}

func TestDefinitionsMustMatchDeclarations(t *testing.T) {
	a := emptyAssembly()
	a.Declarations = []*asm.FunctionDeclaration{{SigIndex: 0}}
	a.Signatures = []*asm.FunctionSignature{{Ret: asm.TypeVoid}}

	_, err := NewWriter(a, NewBufferSink())
	var e *errors.Error
	if !errors.As(err, &e) || e.Kind != errors.KindInvalidShape {
		t.Fatalf("error = %v, want invalid_shape", err)
	}
}

func TestBackpressureProducesIdenticalBytes(t *testing.T) {
	a := richAssembly(t)
	want := writeModule(t, richAssembly(t))

	sink := NewLimitedSink(0)
	w, err := NewWriter(a, sink)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	for i := 0; ; i++ {
		if i > 10000 {
			t.Fatal("writer did not finish under incremental grants")
		}
		done, err := w.Resume()
		if err != nil {
			t.Fatalf("Resume: %v", err)
		}
		if done {
			break
		}
		sink.Grant(3)
	}
	if !bytes.Equal(sink.Bytes(), want) {
		t.Fatalf("backpressured output differs\n got % x\nwant % x", sink.Bytes(), want)
	}
	if w.Offset() != uint64(len(want)) {
		t.Fatalf("offset = %d, want %d", w.Offset(), len(want))
	}
}

func TestResumeSuspendsWithoutRoom(t *testing.T) {
	w, err := NewWriter(emptyAssembly(), NewLimitedSink(0))
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	for i := 0; i < 3; i++ {
		done, err := w.Resume()
		if done || err != nil {
			t.Fatalf("Resume #%d = (%v, %v), want suspended", i, done, err)
		}
	}
	if w.Offset() != 0 {
		t.Fatalf("offset = %d while suspended at the header", w.Offset())
	}
}

func TestCloseTerminatesWriter(t *testing.T) {
	w, err := NewWriter(emptyAssembly(), NewBufferSink())
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	_, err = w.Resume()
	var e *errors.Error
	if !errors.As(err, &e) || e.Kind != errors.KindClosed {
		t.Fatalf("Resume after Close = %v, want closed", err)
	}
	// The error is sticky.
	if _, err2 := w.Resume(); err2 != err {
		t.Fatalf("second Resume returned a different error: %v", err2)
	}
}

func TestObserverSeesSectionsInOrder(t *testing.T) {
	a := richAssembly(t)
	sink := NewBufferSink()
	w, err := NewWriter(a, sink)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	var secs []Section
	var offs []uint64
	w.Observe(func(sec Section, off uint64) {
		secs = append(secs, sec)
		offs = append(offs, off)
	})
	if _, err := w.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}

	want := []Section{
		SectionHeader, SectionConstants, SectionSignatures, SectionImports,
		SectionGlobals, SectionDeclarations, SectionPointerTables,
		SectionFunctionBodies, SectionExport,
	}
	if len(secs) != len(want) {
		t.Fatalf("observed %d sections, want %d", len(secs), len(want))
	}
	for i := range want {
		if secs[i] != want[i] {
			t.Fatalf("section %d = %s, want %s", i, secs[i], want[i])
		}
		if i > 0 && offs[i] < offs[i-1] {
			t.Fatalf("section offsets not monotonic: %v", offs)
		}
	}
}
