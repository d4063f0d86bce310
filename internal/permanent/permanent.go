package permanent

import "errors"

// Error wraps delivery failures that retrying cannot fix.
// Params: wrapped root cause.
// Returns: typed non-retryable marker.
type Error struct {
	Err error
}

// Error returns the wrapped message.
// Params: none.
// Returns: string representation.
func (e Error) Error() string {
	if e.Err == nil {
		return "permanent error"
	}
	return e.Err.Error()
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
// Params: none.
// Returns: wrapped error.
func (e Error) Unwrap() error {
	return e.Err
}

// Permanent marks the error as non-retryable.
// Params: none.
// Returns: true.
func (Error) Permanent() bool {
	return true
}

// Mark wraps an error with the permanent marker.
// Params: source error.
// Returns: wrapped error or nil for nil input.
func Mark(err error) error {
	if err == nil {
		return nil
	}
	return Error{Err: err}
}

// Is reports whether the error carries the permanent marker.
// Params: candidate error.
// Returns: true when a retry must not happen.
func Is(err error) bool {
	if err == nil {
		return false
	}
	type marker interface {
		Permanent() bool
	}
	var tagged marker
	return errors.As(err, &tagged) && tagged.Permanent()
}
