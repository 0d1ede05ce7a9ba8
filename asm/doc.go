// Package asm models a typed assembly module: constant pools, function
// signatures, imports, globals, declarations, function pointer tables,
// function definitions with their local-variable layout, and the
// statement/expression trees that make up function bodies.
//
// Every opcode maps to exactly one Behavior record implementing decode,
// validate, encode, and optimize; nodes hold a reference to their opcode's
// behavior rather than implementing these operations themselves. The
// behavior table is closed and populated at package init.
//
// Trees are built by an upstream producer and are mutable only through the
// optimizer, which runs a single explicit-stack peephole pass per call:
//
//	fn := asm.NewFunctionDefinition(sig, 3, 0, 0)
//	fn.Body = []*asm.Node{ ... }
//	changes := fn.Optimize()
//
// Wire encoding and the module-level writer live in package pack.
package asm
