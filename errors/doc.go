// Package errors provides structured error types for the asmpack library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). The Error type includes the violated constraint path, expected
// and actual shapes, and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseValidate, errors.KindTypeMismatch).
//		Path("StoreF64", "value").
//		Want("f64").
//		Got("i32").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.TypeMismatch(errors.PhaseValidate, path, "i32", "f64")
//	err := errors.OutOfRange(errors.PhaseLayout, path, 10, 5)
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
