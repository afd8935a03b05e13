package errors

import (
	"errors"
)

// Wrap wraps an error with additional context, creating a LensError if the
// input is not already one.
func Wrap(err error, errType ErrorType, code, message string) *LensError {
	if err == nil {
		return nil
	}

	var le *LensError
	if errors.As(err, &le) {
		return &LensError{
			Type:        errType,
			Code:        code,
			Message:     message,
			Cause:       le,
			Context:     le.Context,
			Component:   le.Component,
			FilePath:    le.FilePath,
			Line:        le.Line,
			Column:      le.Column,
			Recoverable: le.Recoverable,
		}
	}

	return &LensError{
		Type:        errType,
		Code:        code,
		Message:     message,
		Cause:       err,
		Recoverable: errType != ErrorTypeInternal && errType != ErrorTypeConfig,
	}
}

// WrapIO wraps an error as an I/O error.
func WrapIO(err error, code, message string) *LensError {
	return Wrap(err, ErrorTypeIO, code, message)
}

// WrapNetwork wraps an error as a network error.
func WrapNetwork(err error, code, message string) *LensError {
	return Wrap(err, ErrorTypeNetwork, code, message)
}
