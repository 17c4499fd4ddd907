// Package modules defines the helper module contract: the interface every
// helper (dbhelper, cipherhelper, lockhelper, ...) implements, the static
// per-module function whitelist the dispatcher trusts, and the error type
// helpers use to signal a structured failure kind back to the dispatcher.
package modules

import "fmt"

// ErrorKind is the machine-readable discriminant carried in a failure
// response's error_kind field.
type ErrorKind string

const (
	KindBadRequest      ErrorKind = "bad_request"
	KindUnknownModule   ErrorKind = "unknown_module"
	KindUnknownFunction ErrorKind = "unknown_function"
	KindInvalidParams   ErrorKind = "invalid_params"
	KindNotFound        ErrorKind = "not_found"
	KindDriverError     ErrorKind = "driver_error"
	KindStateError      ErrorKind = "state_error"
	KindTimeout         ErrorKind = "timeout"
	KindInternal        ErrorKind = "internal"
)

// HelperError is what helper functions return on failure. The dispatcher is
// the only place that turns this into a Response; helpers never write to the
// wire directly.
type HelperError struct {
	Kind ErrorKind
	Err  error
}

func (e *HelperError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return e.Err.Error()
}

func (e *HelperError) Unwrap() error { return e.Err }

// NewError wraps msg/args as a HelperError of the given kind.
func NewError(kind ErrorKind, format string, args ...any) *HelperError {
	return &HelperError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Wrap annotates an existing error with a kind without losing the original message.
func Wrap(kind ErrorKind, err error) *HelperError {
	if err == nil {
		return nil
	}
	return &HelperError{Kind: kind, Err: err}
}

// KindOf extracts the ErrorKind from err if it is (or wraps) a *HelperError,
// defaulting to KindInternal for anything else -- an unexpected error from a
// helper must never be allowed to kill the daemon, but it also must never be
// silently reported as success.
func KindOf(err error) ErrorKind {
	var he *HelperError
	if ok := asHelperError(err, &he); ok {
		return he.Kind
	}
	return KindInternal
}

func asHelperError(err error, target **HelperError) bool {
	for err != nil {
		if he, ok := err.(*HelperError); ok {
			*target = he
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
