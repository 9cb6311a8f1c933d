package flagship

// Result holds either a value or the error explaining why there is none.
type Result[T any] struct {
	value T
	err   error
}

// Ok returns a successful result.
func Ok[T any](v T) Result[T] {
	return Result[T]{value: v}
}

// Fail returns a failed result.
func Fail[T any](err error) Result[T] {
	return Result[T]{err: err}
}

// IsSuccess reports whether r holds a value.
func (r Result[T]) IsSuccess() bool { return r.err == nil }

// Err returns the failure, or nil.
func (r Result[T]) Err() error { return r.err }

// Get returns the value and error.
func (r Result[T]) Get() (T, error) { return r.value, r.err }

// GetOrElse returns the value, or def on failure.
func (r Result[T]) GetOrElse(def T) T {
	if r.err != nil {
		return def
	}
	return r.value
}

// OnSuccess calls fn with the value when r succeeded.
func (r Result[T]) OnSuccess(fn func(T)) Result[T] {
	if r.err == nil {
		fn(r.value)
	}
	return r
}

// OnFailure calls fn with the error when r failed.
func (r Result[T]) OnFailure(fn func(error)) Result[T] {
	if r.err != nil {
		fn(r.err)
	}
	return r
}
