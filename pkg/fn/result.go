// Package fn provides the Result type and stage combinators the ingestion
// pipeline is built from. A pipeline is a chain of Stage values composed
// with Then; each stage either transforms a document artifact or
// short-circuits the rest of the chain with an error.
package fn

import "fmt"

// Result carries either a value or an error, never both.
type Result[T any] struct {
	val T
	err error
	ok  bool
}

// Ok wraps a value in a successful Result.
func Ok[T any](v T) Result[T] {
	return Result[T]{val: v, ok: true}
}

// Err wraps an error in a failed Result.
func Err[T any](err error) Result[T] {
	return Result[T]{err: err}
}

// Errf builds a failed Result from a format string. Supports %w.
func Errf[T any](format string, args ...any) Result[T] {
	return Result[T]{err: fmt.Errorf(format, args...)}
}

// IsOk reports whether the Result holds a value.
func (r Result[T]) IsOk() bool { return r.ok }

// IsErr reports whether the Result holds an error.
func (r Result[T]) IsErr() bool { return !r.ok }

// Unwrap returns the value and error as a conventional pair.
func (r Result[T]) Unwrap() (T, error) { return r.val, r.err }
