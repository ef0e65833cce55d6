package errors

import stderrors "errors"

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool { return stderrors.As(err, target) }

// Join returns an error wrapping the given errors, or nil if all are nil.
func Join(errs ...error) error { return stderrors.Join(errs...) }

// Code returns the code of the first coded error in err's chain, or "".
func Code(err error) string {
	var e *Error
	if As(err, &e) {
		return e.Code
	}
	return ""
}
