// Package asmpack encodes typed assembly modules into a compact binary
// wire format, byte-for-byte compatible with independent decoders.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct
// responsibilities:
//
//	asmpack/             Root package with the Sink destination interface
//	├── asm/             Assembly model: pools, signatures, function
//	│                    definitions, statement trees, opcode behaviors,
//	│                    and the peephole optimizer
//	├── pack/            Incremental module writer state machine, the
//	│                    staged accumulator, and the symmetric decoder
//	├── errors/          Structured error types for diagnostics
//	└── internal/binary/ Wire primitives (varints, floats, names)
//
// # Quick Start
//
// Build an assembly, optimize its functions, and write it out:
//
//	a := &asm.Assembly{}
//	// ... populate pools, signatures, functions ...
//	for _, fn := range a.Functions {
//	    fn.Optimize()
//	}
//
//	sink := pack.NewBufferSink()
//	w, err := pack.NewWriter(a, sink)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for {
//	    done, err := w.Resume()
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    if done {
//	        break
//	    }
//	    // suspended: free up room in the sink, then resume
//	}
//
// Decoding is symmetric:
//
//	a2, err := pack.Decode(sink.Bytes())
package asmpack
