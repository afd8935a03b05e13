// Package errors provides the structured error type shared by devlens
// packages.
//
// Every failure in the overlay pipeline is local and recoverable by the user:
// a malformed template is passed through, a bad props attribute becomes an
// empty payload, invalid editor text blocks saving. The Type field lets
// callers decide how to surface a failure without string matching.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeInstrumentation ErrorType = "instrumentation"
	ErrorTypeParse           ErrorType = "parse"
	ErrorTypeValidation      ErrorType = "validation"
	ErrorTypeNetwork         ErrorType = "network"
	ErrorTypeResolution      ErrorType = "resolution"
	ErrorTypeIO              ErrorType = "io"
	ErrorTypeConfig          ErrorType = "config"
	ErrorTypeInternal        ErrorType = "internal"
)

// LensError is a structured error type with context.
type LensError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	Component   string
	FilePath    string
	Line        int
	Column      int
	Recoverable bool
}

// Error implements the error interface.
func (e *LensError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Component != "" {
		parts = append(parts, "component:"+e.Component)
	}

	if e.FilePath != "" {
		location := e.FilePath
		if e.Line > 0 {
			location += fmt.Sprintf(":%d", e.Line)
			if e.Column > 0 {
				location += fmt.Sprintf(":%d", e.Column)
			}
		}
		parts = append(parts, location)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *LensError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a LensError of the same type and code.
func (e *LensError) Is(target error) bool {
	var t *LensError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *LensError) WithContext(key string, value interface{}) *LensError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithLocation adds file location information.
func (e *LensError) WithLocation(filePath string, line, column int) *LensError {
	e.FilePath = filePath
	e.Line = line
	e.Column = column

	return e
}

// WithComponent adds component context.
func (e *LensError) WithComponent(component string) *LensError {
	e.Component = component

	return e
}

func newError(t ErrorType, code, message string, cause error) *LensError {
	return &LensError{
		Type:        t,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewInstrumentationError creates an error for a template the transform pass
// could not instrument.
func NewInstrumentationError(code, message string, cause error) *LensError {
	return newError(ErrorTypeInstrumentation, code, message, cause)
}

// NewParseError creates a parse error.
func NewParseError(code, message string, cause error) *LensError {
	return newError(ErrorTypeParse, code, message, cause)
}

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *LensError {
	return newError(ErrorTypeValidation, code, message, nil)
}

// NewNetworkError creates a network error.
func NewNetworkError(code, message string, cause error) *LensError {
	return newError(ErrorTypeNetwork, code, message, cause)
}

// NewResolutionError creates a site resolution error.
func NewResolutionError(code, message string) *LensError {
	return newError(ErrorTypeResolution, code, message, nil)
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *LensError {
	return newError(ErrorTypeIO, code, message, cause)
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *LensError {
	e := newError(ErrorTypeConfig, code, message, nil)
	e.Recoverable = false
	return e
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *LensError {
	e := newError(ErrorTypeInternal, code, message, cause)
	e.Recoverable = false
	return e
}

// TypeOf returns the ErrorType of err, or "" when err is not a LensError.
func TypeOf(err error) ErrorType {
	var le *LensError
	if errors.As(err, &le) {
		return le.Type
	}
	return ""
}

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var le *LensError
	if errors.As(err, &le) {
		return le.Recoverable
	}

	return false
}

// IsType reports whether err is a LensError of the given type.
func IsType(err error, t ErrorType) bool {
	return TypeOf(err) == t
}

// CodeOf returns the code of err, or "" when err is not a LensError.
func CodeOf(err error) string {
	var le *LensError
	if errors.As(err, &le) {
		return le.Code
	}
	return ""
}

// IsNotFound reports whether err means a missing file or component.
func IsNotFound(err error) bool {
	switch CodeOf(err) {
	case ErrCodeNotFound, ErrCodeComponentNotFound:
		return true
	}
	return false
}

// Common error codes.
const (
	ErrCodeNoFrontmatter     = "ERR_NO_FRONTMATTER"
	ErrCodeMarkupSyntax      = "ERR_MARKUP_SYNTAX"
	ErrCodeInvalidProps      = "ERR_INVALID_PROPS"
	ErrCodeInvalidJSON       = "ERR_INVALID_JSON"
	ErrCodeInvalidDataPath   = "ERR_INVALID_DATA_PATH"
	ErrCodePathTraversal     = "ERR_PATH_TRAVERSAL"
	ErrCodeNotFound          = "ERR_NOT_FOUND"
	ErrCodeComponentNotFound = "ERR_COMPONENT_NOT_FOUND"
	ErrCodeNotAdjacent       = "ERR_NOT_ADJACENT"
	ErrCodeOutOfRange        = "ERR_OUT_OF_RANGE"
	ErrCodeSiteUnresolved    = "ERR_SITE_UNRESOLVED"
	ErrCodeRequestFailed     = "ERR_REQUEST_FAILED"
	ErrCodeInvalidState      = "ERR_INVALID_STATE"
	ErrCodeUnsavedChanges    = "ERR_UNSAVED_CHANGES"
	ErrCodeConfigInvalid     = "ERR_CONFIG_INVALID"
	ErrCodeInternalError     = "ERR_INTERNAL"
)

// ErrPathTraversal creates a path traversal error.
func ErrPathTraversal(path string) *LensError {
	return NewValidationError(ErrCodePathTraversal, "path traversal attempt: "+path)
}

// ErrComponentNotFound creates a component not found error.
func ErrComponentNotFound(id string) *LensError {
	return NewValidationError(ErrCodeComponentNotFound, "component not found: "+id)
}

// ErrSiteUnresolved creates the error returned when an action needs a site
// and none could be resolved from the browsing context.
func ErrSiteUnresolved(host string) *LensError {
	return NewResolutionError(ErrCodeSiteUnresolved,
		fmt.Sprintf("cannot resolve site for host %q", host))
}
