package async

// Poll is the outcome of advancing a future once.
type Poll[T any] struct {
	Value T
	Err   error
	ready bool
}

// Pending returns the outcome of a future that has not finished.
func Pending[T any]() Poll[T] {
	return Poll[T]{}
}

// Ready returns a terminal outcome.
func Ready[T any](value T, err error) Poll[T] {
	return Poll[T]{Value: value, Err: err, ready: true}
}

// IsPending reports whether the future must be polled again.
func (p Poll[T]) IsPending() bool {
	return !p.ready
}
