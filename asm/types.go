package asm

import (
	"fmt"

	"github.com/wippyai/asmpack/errors"
)

// Assembly is the module container. It owns the constant pools, signature
// pool, imports, globals, declarations, pointer tables, function
// definitions, and the export descriptor. The writer treats everything
// except statement trees as immutable.
type Assembly struct {
	I32Consts []int32
	F32Consts []float32
	F64Consts []float64

	Signatures    []*FunctionSignature
	Imports       []*FunctionImport
	Globals       []*GlobalVariable
	Declarations  []*FunctionDeclaration
	PointerTables []*FunctionPointerTable
	Functions     []*FunctionDefinition

	Export *Export
}

// FunctionSignature is a pool-indexed return type plus ordered argument
// types, reused by imports, declarations, and pointer tables.
type FunctionSignature struct {
	Ret  Type
	Args []Type
}

// Equal reports whether two signatures have identical shape.
func (s *FunctionSignature) Equal(o *FunctionSignature) bool {
	if s.Ret != o.Ret || len(s.Args) != len(o.Args) {
		return false
	}
	for i := range s.Args {
		if s.Args[i] != o.Args[i] {
			return false
		}
	}
	return true
}

// FunctionImport is an imported function name and the signatures it may be
// called with, as indices into the signature pool.
type FunctionImport struct {
	Name       string
	SigIndexes []uint32
}

// GlobalVariable is a typed module global, either zero-initialized or bound
// to an import name.
type GlobalVariable struct {
	ImportName string
	Type       Type
	Imported   bool
}

// FunctionDeclaration binds a function index to its signature.
// Declarations are 1:1 with function definitions by index.
type FunctionDeclaration struct {
	SigIndex uint32
	Index    uint32
}

// FunctionPointerTable maps call-table slots to declaration indices,
// constrained to a single signature. Element lists may hold thousands of
// entries and are streamed, never buffered whole.
type FunctionPointerTable struct {
	SigIndex uint32
	Elements []uint32
}

// ExportKind discriminates the export descriptor variants.
type ExportKind byte

const (
	ExportDefault ExportKind = iota // a single function reference
	ExportRecord                    // named (name, function) pairs
)

// ExportEntry is one named export in a record export. Entry order is
// preserved on the wire.
type ExportEntry struct {
	Name      string
	FuncIndex uint32
}

// Export is the module's single export descriptor.
type Export struct {
	Entries   []ExportEntry // Record only
	FuncIndex uint32        // Default only
	Kind      ExportKind
}

// AddSignature adds a signature to the pool and returns its index, reusing
// an existing equal entry.
func (a *Assembly) AddSignature(sig *FunctionSignature) uint32 {
	for i, s := range a.Signatures {
		if s.Equal(sig) {
			return uint32(i)
		}
	}
	idx := uint32(len(a.Signatures))
	a.Signatures = append(a.Signatures, sig)
	return idx
}

// AddFunction appends a declaration/definition pair and wires the
// definition back to this assembly.
func (a *Assembly) AddFunction(fn *FunctionDefinition) uint32 {
	idx := uint32(len(a.Declarations))
	decl := &FunctionDeclaration{SigIndex: a.AddSignature(fn.Sig), Index: idx}
	fn.Declaration = decl
	fn.Assembly = a
	a.Declarations = append(a.Declarations, decl)
	a.Functions = append(a.Functions, fn)
	return idx
}

// Signature returns the pool entry at idx.
func (a *Assembly) Signature(idx uint32) (*FunctionSignature, error) {
	if int(idx) >= len(a.Signatures) {
		return nil, errors.OutOfRange(errors.PhaseValidate, []string{"signatures"}, int(idx), len(a.Signatures))
	}
	return a.Signatures[idx], nil
}

// DeclarationSignature resolves the signature of the declaration at idx.
func (a *Assembly) DeclarationSignature(idx uint32) (*FunctionSignature, error) {
	if int(idx) >= len(a.Declarations) {
		return nil, errors.OutOfRange(errors.PhaseValidate, []string{"declarations"}, int(idx), len(a.Declarations))
	}
	return a.Signature(a.Declarations[idx].SigIndex)
}

// globalGroup maps a pool entry to its mandated group ordinal:
// [i32 zero, f32 zero, f64 zero, i32 import, f32 import, f64 import].
func globalGroup(g *GlobalVariable) (int, bool) {
	var base int
	if g.Imported {
		base = 3
	}
	switch g.Type {
	case TypeI32:
		return base + 0, true
	case TypeF32:
		return base + 1, true
	case TypeF64:
		return base + 2, true
	default:
		return 0, false
	}
}

// GlobalGroupCounts scans the global pool and returns the six group counts
// in the mandated order. The pool must already be grouped
// [i32 zero][f32 zero][f64 zero][i32 import][f32 import][f64 import];
// any deviation is a structural violation.
func (a *Assembly) GlobalGroupCounts() ([6]uint32, error) {
	var counts [6]uint32
	current := 0
	for i, g := range a.Globals {
		group, ok := globalGroup(g)
		if !ok {
			return counts, errors.InvalidShape(errors.PhaseValidate, []string{"globals"},
				fmt.Sprintf("global %d has non-numeric type", i))
		}
		if group < current {
			return counts, errors.OutOfOrder(errors.PhaseValidate, []string{"globals"},
				fmt.Sprintf("global %d (%s%s) appears after a later group", i, g.Type, groupSuffix(g)))
		}
		current = group
		counts[group]++
	}
	return counts, nil
}

// ImportedGlobalNames returns the import names of imported globals in pool
// order. Only meaningful once GlobalGroupCounts has accepted the pool.
func (a *Assembly) ImportedGlobalNames() []string {
	var names []string
	for _, g := range a.Globals {
		if g.Imported {
			names = append(names, g.ImportName)
		}
	}
	return names
}

func groupSuffix(g *GlobalVariable) string {
	if g.Imported {
		return " import"
	}
	return " zero-init"
}
