package pack

import (
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/asmpack"
	"github.com/wippyai/asmpack/asm"
	"github.com/wippyai/asmpack/errors"
	"github.com/wippyai/asmpack/internal/binary"
)

// Section identifies a wire section for observers and diagnostics.
type Section int

const (
	SectionHeader Section = iota
	SectionConstants
	SectionSignatures
	SectionImports
	SectionGlobals
	SectionDeclarations
	SectionPointerTables
	SectionFunctionBodies
	SectionExport
)

func (s Section) String() string {
	switch s {
	case SectionHeader:
		return "header"
	case SectionConstants:
		return "constants"
	case SectionSignatures:
		return "signatures"
	case SectionImports:
		return "imports"
	case SectionGlobals:
		return "globals"
	case SectionDeclarations:
		return "declarations"
	case SectionPointerTables:
		return "pointer_tables"
	case SectionFunctionBodies:
		return "function_bodies"
	case SectionExport:
		return "export"
	default:
		return "unknown"
	}
}

// Observer receives a callback when the writer enters a section, with the
// committed output offset at that point. Observers are diagnostic only and
// have no wire-format effect.
type Observer func(sec Section, offset uint64)

// state is the module writer's position in the fixed section order.
type state int

const (
	stateHeader state = iota
	stateConstantsCount
	stateConstantsI32
	stateConstantsF32
	stateConstantsF64
	stateSignaturesCount
	stateSignatures
	stateImportsCount
	stateImports
	stateGlobalsCount
	stateGlobals
	stateDeclarationsCount
	stateDeclarations
	statePointerTablesCount
	statePointerTableHeader
	statePointerTableElements
	stateFunctionBodies
	stateExport
	stateEnd
	stateError
)

// elemBatch bounds how many pointer-table elements are staged per commit,
// so very large tables stream instead of buffering whole.
const elemBatch = 64

// Writer is a single-threaded, resumable state machine that emits an
// assembly section by section. Each step stages its bytes and exposes them
// with one atomic commit; when the destination lacks room the writer
// suspends and Resume re-runs the same step from its start once the caller
// has made room available.
type Writer struct {
	a   *asm.Assembly
	acc *accumulator
	log *zap.Logger

	observers []Observer
	err       error

	body        *BodyWriter
	globalNames []string

	size        uint64
	state       state
	lastSection Section

	idx  int // entry cursor within the current state
	elem int // element cursor within the current pointer table

	measuring bool
}

// NewWriter creates a writer for the assembly. The total output size is
// precomputed here so the header can carry it; structural violations in
// the assembly surface immediately, before any byte reaches the sink.
func NewWriter(a *asm.Assembly, sink asmpack.Sink) (*Writer, error) {
	size, err := Measure(a)
	if err != nil {
		return nil, err
	}
	if size > math.MaxUint32 {
		return nil, errors.New(errors.PhaseWrite, errors.KindOverflow).
			Detail("encoded size %d exceeds the 32-bit header field", size).
			Build()
	}
	w := newWriter(a, sink)
	w.size = size
	return w, nil
}

func newWriter(a *asm.Assembly, sink asmpack.Sink) *Writer {
	return &Writer{
		a:           a,
		acc:         newAccumulator(sink),
		log:         Logger(),
		lastSection: Section(-1),
	}
}

// Measure computes the total encoded size of the assembly by running the
// writer against a counting destination.
func Measure(a *asm.Assembly) (uint64, error) {
	cs := &countSink{}
	w := newWriter(a, cs)
	w.measuring = true
	for {
		done, err := w.Resume()
		if err != nil {
			return 0, err
		}
		if done {
			return cs.n, nil
		}
	}
}

// Observe registers a section-boundary observer.
func (w *Writer) Observe(o Observer) {
	w.observers = append(w.observers, o)
}

// Offset returns the number of bytes committed to the sink so far.
func (w *Writer) Offset() uint64 {
	return w.acc.Offset()
}

// Size returns the precomputed total output size.
func (w *Writer) Size() uint64 {
	return w.size
}

// Resume drives the state machine until the module is fully written
// (true, nil), the destination runs out of room (false, nil), or a fatal
// structural error terminates the stream (false, err). After a fatal
// error every further call returns the same error and no further bytes
// are emitted.
func (w *Writer) Resume() (bool, error) {
	if w.state == stateError {
		return false, w.err
	}
	if w.state == stateEnd {
		return true, nil
	}
	for {
		err := w.step()
		if err == ErrNoRoom {
			w.log.Debug("writer suspended",
				zap.Stringer("section", w.section()),
				zap.Uint64("offset", w.acc.Offset()))
			return false, nil
		}
		if err != nil {
			w.fail(err)
			return false, w.err
		}
		if w.state == stateEnd {
			return true, nil
		}
	}
}

// Close tears the writer down. Any active body writer's listeners are
// released and the writer stops emitting; committed bytes are already at
// the destination. Closing a finished writer is a no-op.
func (w *Writer) Close() error {
	if w.state == stateEnd || w.state == stateError {
		return nil
	}
	w.fail(errors.New(errors.PhaseWrite, errors.KindClosed).Detail("writer torn down").Build())
	return nil
}

// Err returns the fatal error, if the writer has terminated on one.
func (w *Writer) Err() error {
	return w.err
}

func (w *Writer) fail(err error) {
	if w.body != nil {
		w.body.release()
		w.body = nil
	}
	w.acc.Drop()
	w.err = err
	w.state = stateError
	w.log.Debug("writer terminated", zap.Error(err))
}

// section maps the current state to its wire section.
func (w *Writer) section() Section {
	switch {
	case w.state == stateHeader:
		return SectionHeader
	case w.state <= stateConstantsF64:
		return SectionConstants
	case w.state <= stateSignatures:
		return SectionSignatures
	case w.state <= stateImports:
		return SectionImports
	case w.state <= stateGlobals:
		return SectionGlobals
	case w.state <= stateDeclarations:
		return SectionDeclarations
	case w.state <= statePointerTableElements:
		return SectionPointerTables
	case w.state == stateFunctionBodies:
		return SectionFunctionBodies
	default:
		return SectionExport
	}
}

func (w *Writer) enterSection() {
	sec := w.section()
	if sec == w.lastSection {
		return
	}
	w.lastSection = sec
	w.log.Debug("section", zap.Stringer("section", sec), zap.Uint64("offset", w.acc.Offset()))
	for _, o := range w.observers {
		o(sec, w.acc.Offset())
	}
}

// step performs the current state's single atomic commit and advances.
// Steps are safe to re-run from their start: a failed commit stages
// nothing at the destination.
func (w *Writer) step() error {
	w.enterSection()
	st := w.acc.Stage()

	switch w.state {
	case stateHeader:
		st.WriteU32LE(asm.Magic)
		st.WriteU32LE(uint32(w.size))
		if err := w.acc.Commit(); err != nil {
			return err
		}
		w.state = stateConstantsCount

	case stateConstantsCount:
		st.WriteU32(uint32(len(w.a.I32Consts)))
		st.WriteU32(uint32(len(w.a.F32Consts)))
		st.WriteU32(uint32(len(w.a.F64Consts)))
		if err := w.acc.Commit(); err != nil {
			return err
		}
		w.state, w.idx = stateConstantsI32, 0

	case stateConstantsI32:
		if w.idx >= len(w.a.I32Consts) {
			w.state, w.idx = stateConstantsF32, 0
			return nil
		}
		st.WriteS32(w.a.I32Consts[w.idx])
		if err := w.acc.Commit(); err != nil {
			return err
		}
		w.idx++

	case stateConstantsF32:
		if w.idx >= len(w.a.F32Consts) {
			w.state, w.idx = stateConstantsF64, 0
			return nil
		}
		st.WriteF32(w.a.F32Consts[w.idx])
		if err := w.acc.Commit(); err != nil {
			return err
		}
		w.idx++

	case stateConstantsF64:
		if w.idx >= len(w.a.F64Consts) {
			w.state, w.idx = stateSignaturesCount, 0
			return nil
		}
		st.WriteF64(w.a.F64Consts[w.idx])
		if err := w.acc.Commit(); err != nil {
			return err
		}
		w.idx++

	case stateSignaturesCount:
		st.WriteU32(uint32(len(w.a.Signatures)))
		if err := w.acc.Commit(); err != nil {
			return err
		}
		w.state, w.idx = stateSignatures, 0

	case stateSignatures:
		if w.idx >= len(w.a.Signatures) {
			w.state, w.idx = stateImportsCount, 0
			return nil
		}
		sig := w.a.Signatures[w.idx]
		if err := checkSignature(sig, w.idx); err != nil {
			return err
		}
		st.Byte(byte(sig.Ret))
		st.WriteU32(uint32(len(sig.Args)))
		for _, t := range sig.Args {
			st.Byte(byte(t))
		}
		if err := w.acc.Commit(); err != nil {
			return err
		}
		w.idx++

	case stateImportsCount:
		total := 0
		for _, imp := range w.a.Imports {
			total += len(imp.SigIndexes)
		}
		st.WriteU32(uint32(len(w.a.Imports)))
		st.WriteU32(uint32(total))
		if err := w.acc.Commit(); err != nil {
			return err
		}
		w.state, w.idx = stateImports, 0

	case stateImports:
		if w.idx >= len(w.a.Imports) {
			w.state, w.idx = stateGlobalsCount, 0
			return nil
		}
		imp := w.a.Imports[w.idx]
		if err := checkName(imp.Name, "imports"); err != nil {
			return err
		}
		for _, sigIdx := range imp.SigIndexes {
			if int(sigIdx) >= len(w.a.Signatures) {
				return errors.OutOfRange(errors.PhaseWrite, []string{"imports", imp.Name}, int(sigIdx), len(w.a.Signatures))
			}
		}
		st.WriteName(imp.Name)
		st.WriteU32(uint32(len(imp.SigIndexes)))
		for _, sigIdx := range imp.SigIndexes {
			st.WriteU32(sigIdx)
		}
		if err := w.acc.Commit(); err != nil {
			return err
		}
		w.idx++

	case stateGlobalsCount:
		// The grouped-order scan must consume the pool exactly; any
		// deviation is fatal before a single section byte is staged.
		counts, err := w.a.GlobalGroupCounts()
		if err != nil {
			return err
		}
		for _, c := range counts {
			st.WriteU32(c)
		}
		if err := w.acc.Commit(); err != nil {
			return err
		}
		w.globalNames = w.a.ImportedGlobalNames()
		w.state, w.idx = stateGlobals, 0

	case stateGlobals:
		if w.idx >= len(w.globalNames) {
			w.state, w.idx = stateDeclarationsCount, 0
			return nil
		}
		name := w.globalNames[w.idx]
		if err := checkName(name, "globals"); err != nil {
			return err
		}
		st.WriteName(name)
		if err := w.acc.Commit(); err != nil {
			return err
		}
		w.idx++

	case stateDeclarationsCount:
		st.WriteU32(uint32(len(w.a.Declarations)))
		if err := w.acc.Commit(); err != nil {
			return err
		}
		w.state, w.idx = stateDeclarations, 0

	case stateDeclarations:
		if w.idx >= len(w.a.Declarations) {
			w.state, w.idx = statePointerTablesCount, 0
			return nil
		}
		decl := w.a.Declarations[w.idx]
		if int(decl.SigIndex) >= len(w.a.Signatures) {
			return errors.OutOfRange(errors.PhaseWrite, []string{"declarations"}, int(decl.SigIndex), len(w.a.Signatures))
		}
		st.WriteU32(decl.SigIndex)
		if err := w.acc.Commit(); err != nil {
			return err
		}
		w.idx++

	case statePointerTablesCount:
		st.WriteU32(uint32(len(w.a.PointerTables)))
		if err := w.acc.Commit(); err != nil {
			return err
		}
		w.state, w.idx = statePointerTableHeader, 0

	case statePointerTableHeader:
		if w.idx >= len(w.a.PointerTables) {
			w.state, w.idx = stateFunctionBodies, 0
			return nil
		}
		table := w.a.PointerTables[w.idx]
		if int(table.SigIndex) >= len(w.a.Signatures) {
			return errors.OutOfRange(errors.PhaseWrite, []string{"pointer_tables"}, int(table.SigIndex), len(w.a.Signatures))
		}
		st.WriteU32(table.SigIndex)
		st.WriteU32(uint32(len(table.Elements)))
		if err := w.acc.Commit(); err != nil {
			return err
		}
		w.state, w.elem = statePointerTableElements, 0

	case statePointerTableElements:
		table := w.a.PointerTables[w.idx]
		if w.elem >= len(table.Elements) {
			w.state, w.idx = statePointerTableHeader, w.idx+1
			return nil
		}
		end := w.elem + elemBatch
		if end > len(table.Elements) {
			end = len(table.Elements)
		}
		for _, declIdx := range table.Elements[w.elem:end] {
			if int(declIdx) >= len(w.a.Declarations) {
				w.acc.Drop()
				return errors.OutOfRange(errors.PhaseWrite, []string{"pointer_tables", "elements"}, int(declIdx), len(w.a.Declarations))
			}
			st.WriteU32(declIdx)
		}
		if err := w.acc.Commit(); err != nil {
			return err
		}
		w.elem = end

	case stateFunctionBodies:
		if len(w.a.Functions) != len(w.a.Declarations) {
			return errors.InvalidShape(errors.PhaseWrite, []string{"function_bodies"},
				"definitions are not 1:1 with declarations")
		}
		if w.idx >= len(w.a.Functions) {
			w.state = stateExport
			return nil
		}
		return w.stepFunctionBody()

	case stateExport:
		if err := w.stageExport(st); err != nil {
			w.acc.Drop()
			return err
		}
		if err := w.acc.Commit(); err != nil {
			return err
		}
		if !w.measuring && w.acc.Offset() != w.size {
			return errors.New(errors.PhaseWrite, errors.KindSizeMismatch).
				Detail("offset %d disagrees with precomputed size %d", w.acc.Offset(), w.size).
				Build()
		}
		w.state = stateEnd
		w.log.Debug("module written", zap.Uint64("bytes", w.acc.Offset()))
	}
	return nil
}

// stepFunctionBody emits the current function: first its packed
// local-count header, then its tree through a delegated body writer. The
// module writer stays in this state until the body writer signals
// completion.
func (w *Writer) stepFunctionBody() error {
	fn := w.a.Functions[w.idx]

	if w.body == nil {
		st := w.acc.Stage()
		if err := stageLocalHeader(st, fn); err != nil {
			w.acc.Drop()
			return err
		}
		start := w.acc.Offset()
		if err := w.acc.Commit(); err != nil {
			return err
		}
		fn.ByteOffset = start

		idx := w.idx
		w.body = newBodyWriter(fn, w.acc)
		w.body.onComplete = func() {
			fn.ByteLength = w.acc.Offset() - start
			w.body = nil
			w.idx = idx + 1
		}
		w.body.onError = func(err error) {
			w.body = nil
		}
		return nil
	}

	_, err := w.body.step()
	return err
}

// stageLocalHeader stages the function's variable-count header: a single
// packed byte on the I32-only fast path, otherwise a type-presence flags
// byte followed by a varint count per present type.
func stageLocalHeader(st *binary.Writer, fn *asm.FunctionDefinition) error {
	for k := 0; k < fn.NumVariables(); k++ {
		v, err := fn.Variable(k)
		if err != nil {
			return err
		}
		if !v.Type.Valid() {
			return errors.InvalidShape(errors.PhaseWrite, []string{"function_bodies", "locals"},
				"illegal local-variable type "+v.Type.String())
		}
	}

	if fn.NumF32Locals == 0 && fn.NumF64Locals == 0 && fn.NumI32Locals <= asm.PackedLocalMax {
		st.Byte(asm.LocalHeaderPacked | byte(fn.NumI32Locals))
		return nil
	}

	var flags byte
	if fn.NumI32Locals > 0 {
		flags |= asm.LocalFlagI32
	}
	if fn.NumF32Locals > 0 {
		flags |= asm.LocalFlagF32
	}
	if fn.NumF64Locals > 0 {
		flags |= asm.LocalFlagF64
	}
	st.Byte(flags)
	if fn.NumI32Locals > 0 {
		st.WriteU32(fn.NumI32Locals)
	}
	if fn.NumF32Locals > 0 {
		st.WriteU32(fn.NumF32Locals)
	}
	if fn.NumF64Locals > 0 {
		st.WriteU32(fn.NumF64Locals)
	}
	return nil
}

// stageExport stages the export descriptor: a one-byte discriminator then
// either a single function index or ordered (name, index) pairs.
func (w *Writer) stageExport(st *binary.Writer) error {
	e := w.a.Export
	if e == nil {
		return errors.InvalidShape(errors.PhaseWrite, []string{"export"}, "missing export descriptor")
	}
	switch e.Kind {
	case asm.ExportDefault:
		if int(e.FuncIndex) >= len(w.a.Declarations) {
			return errors.OutOfRange(errors.PhaseWrite, []string{"export"}, int(e.FuncIndex), len(w.a.Declarations))
		}
		st.Byte(asm.ExportDefaultCode)
		st.WriteU32(e.FuncIndex)
	case asm.ExportRecord:
		seen := make(map[string]bool, len(e.Entries))
		st.Byte(asm.ExportRecordCode)
		st.WriteU32(uint32(len(e.Entries)))
		for _, entry := range e.Entries {
			if err := checkName(entry.Name, "export"); err != nil {
				return err
			}
			if seen[entry.Name] {
				return errors.InvalidShape(errors.PhaseWrite, []string{"export", entry.Name}, "duplicate export name")
			}
			seen[entry.Name] = true
			if int(entry.FuncIndex) >= len(w.a.Declarations) {
				return errors.OutOfRange(errors.PhaseWrite, []string{"export", entry.Name}, int(entry.FuncIndex), len(w.a.Declarations))
			}
			st.WriteName(entry.Name)
			st.WriteU32(entry.FuncIndex)
		}
	default:
		return errors.InvalidShape(errors.PhaseWrite, []string{"export"}, "unknown export kind")
	}
	return nil
}

func checkSignature(sig *asm.FunctionSignature, idx int) error {
	if sig == nil {
		return errors.InvalidShape(errors.PhaseWrite, []string{"signatures"}, "nil signature")
	}
	if sig.Ret != asm.TypeVoid && !sig.Ret.Valid() {
		return errors.InvalidShape(errors.PhaseWrite, []string{"signatures"}, "illegal return type")
	}
	for _, t := range sig.Args {
		if !t.Valid() {
			return errors.InvalidShape(errors.PhaseWrite, []string{"signatures"}, "illegal argument type")
		}
	}
	return nil
}

// checkName rejects names the NUL-terminated wire form cannot carry.
func checkName(name, section string) error {
	if strings.IndexByte(name, 0) >= 0 {
		return errors.InvalidShape(errors.PhaseWrite, []string{section}, "name contains a NUL byte")
	}
	return nil
}
