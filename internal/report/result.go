package report

import "fmt"

// Result carries a report together with the error that produced it, if any.
// A failed Result still holds a usable (empty) value so callers can render it.
type Result[T any] struct {
	value T
	err   error
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] { return Result[T]{value: v} }

// Fail wraps a fallback value and the error that caused it.
func Fail[T any](v T, err error) Result[T] { return Result[T]{value: v, err: err} }

func (r Result[T]) Value() T   { return r.value }
func (r Result[T]) Err() error { return r.err }
func (r Result[T]) OK() bool   { return r.err == nil }

// SourceError marks a failure of one upstream source.
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s source: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }
