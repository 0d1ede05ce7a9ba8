package pack

import (
	"github.com/wippyai/asmpack/asm"
	"github.com/wippyai/asmpack/errors"
	"github.com/wippyai/asmpack/internal/binary"
)

// Decode parses a complete packed module back into an assembly. The input
// must be exactly one module: the header size field and the byte count
// both have to match, and every section is validated as it is read.
// Statement trees come back through the same behavior table the encoder
// uses, so a decoded assembly re-encodes to the identical byte stream.
func Decode(data []byte) (*asm.Assembly, error) {
	r := binary.NewBytesReader(data)
	a := &asm.Assembly{}

	magic, err := r.ReadU32LE()
	if err != nil {
		return nil, errors.Truncated(errors.PhaseDecode, []string{"header"}, err)
	}
	if magic != asm.Magic {
		return nil, errors.New(errors.PhaseDecode, errors.KindInvalidShape).
			Path("header").
			Detail("bad magic 0x%08x", magic).
			Build()
	}
	size, err := r.ReadU32LE()
	if err != nil {
		return nil, errors.Truncated(errors.PhaseDecode, []string{"header"}, err)
	}
	if int(size) != len(data) {
		return nil, errors.New(errors.PhaseDecode, errors.KindSizeMismatch).
			Path("header").
			Detail("header declares %d bytes, input holds %d", size, len(data)).
			Build()
	}

	if err := decodeConstants(r, a); err != nil {
		return nil, err
	}
	if err := decodeSignatures(r, a); err != nil {
		return nil, err
	}
	if err := decodeImports(r, a); err != nil {
		return nil, err
	}
	if err := decodeGlobals(r, a); err != nil {
		return nil, err
	}
	if err := decodeDeclarations(r, a); err != nil {
		return nil, err
	}
	if err := decodePointerTables(r, a); err != nil {
		return nil, err
	}
	if err := decodeFunctionBodies(r, a); err != nil {
		return nil, err
	}
	if err := decodeExport(r, a); err != nil {
		return nil, err
	}

	if r.Position() != len(data) {
		return nil, errors.New(errors.PhaseDecode, errors.KindSizeMismatch).
			Detail("%d trailing bytes after export", len(data)-r.Position()).
			Build()
	}
	return a, nil
}

func decodeConstants(r *binary.Reader, a *asm.Assembly) error {
	path := []string{"constants"}
	nI32, err := r.ReadU32()
	if err != nil {
		return errors.Truncated(errors.PhaseDecode, path, err)
	}
	nF32, err := r.ReadU32()
	if err != nil {
		return errors.Truncated(errors.PhaseDecode, path, err)
	}
	nF64, err := r.ReadU32()
	if err != nil {
		return errors.Truncated(errors.PhaseDecode, path, err)
	}
	for i := uint32(0); i < nI32; i++ {
		v, err := r.ReadS32()
		if err != nil {
			return errors.Truncated(errors.PhaseDecode, path, err)
		}
		a.I32Consts = append(a.I32Consts, v)
	}
	for i := uint32(0); i < nF32; i++ {
		v, err := r.ReadF32()
		if err != nil {
			return errors.Truncated(errors.PhaseDecode, path, err)
		}
		a.F32Consts = append(a.F32Consts, v)
	}
	for i := uint32(0); i < nF64; i++ {
		v, err := r.ReadF64()
		if err != nil {
			return errors.Truncated(errors.PhaseDecode, path, err)
		}
		a.F64Consts = append(a.F64Consts, v)
	}
	return nil
}

func decodeSignatures(r *binary.Reader, a *asm.Assembly) error {
	path := []string{"signatures"}
	count, err := r.ReadU32()
	if err != nil {
		return errors.Truncated(errors.PhaseDecode, path, err)
	}
	for i := uint32(0); i < count; i++ {
		ret, err := r.ReadByte()
		if err != nil {
			return errors.Truncated(errors.PhaseDecode, path, err)
		}
		sig := &asm.FunctionSignature{Ret: asm.Type(ret)}
		if sig.Ret != asm.TypeVoid && !sig.Ret.Valid() {
			return errors.InvalidShape(errors.PhaseDecode, path, "illegal return type")
		}
		argc, err := r.ReadU32()
		if err != nil {
			return errors.Truncated(errors.PhaseDecode, path, err)
		}
		for j := uint32(0); j < argc; j++ {
			t, err := r.ReadByte()
			if err != nil {
				return errors.Truncated(errors.PhaseDecode, path, err)
			}
			if !asm.Type(t).Valid() {
				return errors.InvalidShape(errors.PhaseDecode, path, "illegal argument type")
			}
			sig.Args = append(sig.Args, asm.Type(t))
		}
		a.Signatures = append(a.Signatures, sig)
	}
	return nil
}

func decodeImports(r *binary.Reader, a *asm.Assembly) error {
	path := []string{"imports"}
	count, err := r.ReadU32()
	if err != nil {
		return errors.Truncated(errors.PhaseDecode, path, err)
	}
	declaredRefs, err := r.ReadU32()
	if err != nil {
		return errors.Truncated(errors.PhaseDecode, path, err)
	}
	var totalRefs uint32
	for i := uint32(0); i < count; i++ {
		name, err := r.ReadName()
		if err != nil {
			return errors.Truncated(errors.PhaseDecode, path, err)
		}
		refs, err := r.ReadU32()
		if err != nil {
			return errors.Truncated(errors.PhaseDecode, append(path, name), err)
		}
		imp := &asm.FunctionImport{Name: name}
		for j := uint32(0); j < refs; j++ {
			sigIdx, err := r.ReadU32()
			if err != nil {
				return errors.Truncated(errors.PhaseDecode, append(path, name), err)
			}
			if int(sigIdx) >= len(a.Signatures) {
				return errors.OutOfRange(errors.PhaseDecode, append(path, name), int(sigIdx), len(a.Signatures))
			}
			imp.SigIndexes = append(imp.SigIndexes, sigIdx)
		}
		totalRefs += refs
		a.Imports = append(a.Imports, imp)
	}
	if totalRefs != declaredRefs {
		return errors.New(errors.PhaseDecode, errors.KindSizeMismatch).
			Path("imports").
			Detail("header declares %d signature references, entries hold %d", declaredRefs, totalRefs).
			Build()
	}
	return nil
}

// decodeGlobals rebuilds the global pool from its six grouped counts:
// zero-initialized i32/f32/f64, then imported i32/f32/f64, with import
// names following in pool order.
func decodeGlobals(r *binary.Reader, a *asm.Assembly) error {
	path := []string{"globals"}
	var counts [6]uint32
	for g := range counts {
		c, err := r.ReadU32()
		if err != nil {
			return errors.Truncated(errors.PhaseDecode, path, err)
		}
		counts[g] = c
	}
	groupTypes := [6]asm.Type{
		asm.TypeI32, asm.TypeF32, asm.TypeF64,
		asm.TypeI32, asm.TypeF32, asm.TypeF64,
	}
	for g, c := range counts {
		for i := uint32(0); i < c; i++ {
			a.Globals = append(a.Globals, &asm.GlobalVariable{
				Type:     groupTypes[g],
				Imported: g >= 3,
			})
		}
	}
	for _, gv := range a.Globals {
		if !gv.Imported {
			continue
		}
		name, err := r.ReadName()
		if err != nil {
			return errors.Truncated(errors.PhaseDecode, path, err)
		}
		gv.ImportName = name
	}
	return nil
}

func decodeDeclarations(r *binary.Reader, a *asm.Assembly) error {
	path := []string{"declarations"}
	count, err := r.ReadU32()
	if err != nil {
		return errors.Truncated(errors.PhaseDecode, path, err)
	}
	for i := uint32(0); i < count; i++ {
		sigIdx, err := r.ReadU32()
		if err != nil {
			return errors.Truncated(errors.PhaseDecode, path, err)
		}
		if int(sigIdx) >= len(a.Signatures) {
			return errors.OutOfRange(errors.PhaseDecode, path, int(sigIdx), len(a.Signatures))
		}
		a.Declarations = append(a.Declarations, &asm.FunctionDeclaration{SigIndex: sigIdx, Index: i})
	}
	return nil
}

func decodePointerTables(r *binary.Reader, a *asm.Assembly) error {
	path := []string{"pointer_tables"}
	count, err := r.ReadU32()
	if err != nil {
		return errors.Truncated(errors.PhaseDecode, path, err)
	}
	for i := uint32(0); i < count; i++ {
		sigIdx, err := r.ReadU32()
		if err != nil {
			return errors.Truncated(errors.PhaseDecode, path, err)
		}
		if int(sigIdx) >= len(a.Signatures) {
			return errors.OutOfRange(errors.PhaseDecode, path, int(sigIdx), len(a.Signatures))
		}
		elemCount, err := r.ReadU32()
		if err != nil {
			return errors.Truncated(errors.PhaseDecode, path, err)
		}
		table := &asm.FunctionPointerTable{SigIndex: sigIdx}
		for j := uint32(0); j < elemCount; j++ {
			declIdx, err := r.ReadU32()
			if err != nil {
				return errors.Truncated(errors.PhaseDecode, path, err)
			}
			if int(declIdx) >= len(a.Declarations) {
				return errors.OutOfRange(errors.PhaseDecode, append(path, "elements"), int(declIdx), len(a.Declarations))
			}
			table.Elements = append(table.Elements, declIdx)
		}
		a.PointerTables = append(a.PointerTables, table)
	}
	return nil
}

// decodeFunctionBodies reads one body per declaration; there is no body
// count on the wire. Each decoded tree gets its context-dependent result
// types annotated, then runs the same validation the writer applies.
func decodeFunctionBodies(r *binary.Reader, a *asm.Assembly) error {
	path := []string{"function_bodies"}
	for _, decl := range a.Declarations {
		sig := a.Signatures[decl.SigIndex]
		start := r.Position()

		nI32, nF32, nF64, err := decodeLocalHeader(r)
		if err != nil {
			return err
		}
		fn := asm.NewFunctionDefinition(sig, nI32, nF32, nF64)
		fn.Assembly = a
		fn.Declaration = decl

		stmtCount, err := r.ReadU32()
		if err != nil {
			return errors.Truncated(errors.PhaseDecode, path, err)
		}
		for i := uint32(0); i < stmtCount; i++ {
			n, err := asm.DecodeNode(r)
			if err != nil {
				return err
			}
			if !n.IsStatement() {
				return errors.InvalidShape(errors.PhaseDecode, path, "expression at statement position")
			}
			fn.Body = append(fn.Body, n)
		}
		fn.ByteOffset = uint64(start)
		fn.ByteLength = uint64(r.Position() - start)

		for _, n := range fn.Body {
			if err := annotateTypes(fn, n); err != nil {
				return err
			}
			if err := asm.ValidateTree(fn, n); err != nil {
				return err
			}
		}
		a.Functions = append(a.Functions, fn)
	}
	return nil
}

// decodeLocalHeader reads the variable-count header in either of its two
// forms: a packed I32-only byte or a flags byte with per-type counts.
func decodeLocalHeader(r *binary.Reader) (nI32, nF32, nF64 uint32, err error) {
	path := []string{"function_bodies", "locals"}
	head, err := r.ReadByte()
	if err != nil {
		return 0, 0, 0, errors.Truncated(errors.PhaseDecode, path, err)
	}
	if head&asm.LocalHeaderPacked != 0 {
		return uint32(head &^ asm.LocalHeaderPacked), 0, 0, nil
	}
	if head&^(asm.LocalFlagI32|asm.LocalFlagF32|asm.LocalFlagF64) != 0 {
		return 0, 0, 0, errors.InvalidShape(errors.PhaseDecode, path, "unknown local-header flags")
	}
	if head&asm.LocalFlagI32 != 0 {
		if nI32, err = r.ReadU32(); err != nil {
			return 0, 0, 0, errors.Truncated(errors.PhaseDecode, path, err)
		}
	}
	if head&asm.LocalFlagF32 != 0 {
		if nF32, err = r.ReadU32(); err != nil {
			return 0, 0, 0, errors.Truncated(errors.PhaseDecode, path, err)
		}
	}
	if head&asm.LocalFlagF64 != 0 {
		if nF64, err = r.ReadU32(); err != nil {
			return 0, 0, 0, errors.Truncated(errors.PhaseDecode, path, err)
		}
	}
	return nI32, nF32, nF64, nil
}

// annotateTypes fills in result types the wire omits because they follow
// from module context: local and global reads take their slot's type,
// calls take their callee's return type.
func annotateTypes(fn *asm.FunctionDefinition, n *asm.Node) error {
	for _, kid := range n.Kids {
		if err := annotateTypes(fn, kid); err != nil {
			return err
		}
	}
	a := fn.Assembly
	switch n.Op {
	case asm.OpGetLocal:
		v, err := fn.Variable(int(n.Index))
		if err != nil {
			return err
		}
		n.Type = v.Type
	case asm.OpGetGlobal:
		if int(n.Index) >= len(a.Globals) {
			return errors.OutOfRange(errors.PhaseDecode, []string{"GetGlobal"}, int(n.Index), len(a.Globals))
		}
		n.Type = a.Globals[n.Index].Type
	case asm.OpCallExpr:
		sig, err := a.DeclarationSignature(n.Index)
		if err != nil {
			return err
		}
		n.Type = sig.Ret
	case asm.OpCallIndirect:
		if int(n.Index) >= len(a.PointerTables) {
			return errors.OutOfRange(errors.PhaseDecode, []string{"CallIndirect", "table"}, int(n.Index), len(a.PointerTables))
		}
		sig, err := a.Signature(a.PointerTables[n.Index].SigIndex)
		if err != nil {
			return err
		}
		n.Type = sig.Ret
	}
	return nil
}

func decodeExport(r *binary.Reader, a *asm.Assembly) error {
	path := []string{"export"}
	disc, err := r.ReadByte()
	if err != nil {
		return errors.Truncated(errors.PhaseDecode, path, err)
	}
	switch disc {
	case asm.ExportDefaultCode:
		funcIdx, err := r.ReadU32()
		if err != nil {
			return errors.Truncated(errors.PhaseDecode, path, err)
		}
		if int(funcIdx) >= len(a.Declarations) {
			return errors.OutOfRange(errors.PhaseDecode, path, int(funcIdx), len(a.Declarations))
		}
		a.Export = &asm.Export{Kind: asm.ExportDefault, FuncIndex: funcIdx}
	case asm.ExportRecordCode:
		count, err := r.ReadU32()
		if err != nil {
			return errors.Truncated(errors.PhaseDecode, path, err)
		}
		e := &asm.Export{Kind: asm.ExportRecord}
		seen := make(map[string]bool, count)
		for i := uint32(0); i < count; i++ {
			name, err := r.ReadName()
			if err != nil {
				return errors.Truncated(errors.PhaseDecode, path, err)
			}
			if seen[name] {
				return errors.InvalidShape(errors.PhaseDecode, append(path, name), "duplicate export name")
			}
			seen[name] = true
			funcIdx, err := r.ReadU32()
			if err != nil {
				return errors.Truncated(errors.PhaseDecode, append(path, name), err)
			}
			if int(funcIdx) >= len(a.Declarations) {
				return errors.OutOfRange(errors.PhaseDecode, append(path, name), int(funcIdx), len(a.Declarations))
			}
			e.Entries = append(e.Entries, asm.ExportEntry{Name: name, FuncIndex: funcIdx})
		}
		a.Export = e
	default:
		return errors.InvalidShape(errors.PhaseDecode, path, "unknown export discriminator")
	}
	return nil
}
