// Package pack turns an assembly into its packed wire form and back.
//
// The centerpiece is Writer, a resumable state machine that walks the
// module section by section: header, constant pools, signatures, imports,
// globals, declarations, pointer tables, function bodies, export. Every
// step stages its bytes in an accumulator and releases them with one
// atomic commit, so the destination only ever sees whole steps. When the
// destination reports insufficient room the commit fails with ErrNoRoom,
// the staged bytes are discarded, and Resume suspends; the next Resume
// re-runs the interrupted step from its start and produces the identical
// bytes.
//
// The total module size is measured up front by running the writer
// against a counting destination, which lets the header carry the final
// size and surfaces structural violations before anything reaches the
// real destination.
//
// Decode reverses the process, rebuilding an assembly whose re-encoding
// is byte-identical to the input.
package pack
