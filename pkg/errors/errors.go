// Package errors provides structured error types for shelf.
//
// This package defines error codes that let callers tell apart the four
// failure families of a run:
//   - INVALID_SYNTAX: the script does not parse
//   - INVALID_DECLARATION: the script parses but an include() call is malformed
//   - INSTALL_FAILED: the upstream installer or registry failed
//   - CACHE_ERROR: listing or relocating cache slots failed
//
// Syntax and declaration errors are user errors: they are detected before any
// dependency is installed and are reported as a single line. Everything else
// is operational and is reported with its full cause chain.
//
// # Usage
//
//	err := errors.New(errors.ErrCodeInvalidPackage, "invalid package name: %s", name)
//	if errors.Is(err, errors.ErrCodeInvalidPackage) {
//	    // Handle validation error
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeInstall, origErr, "install %s", spec)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Script errors (user-actionable)
	ErrCodeInvalidSyntax      Code = "INVALID_SYNTAX"
	ErrCodeInvalidDeclaration Code = "INVALID_DECLARATION"
	ErrCodeNotDeclared        Code = "NOT_DECLARED"

	// Input validation errors
	ErrCodeInvalidInput   Code = "INVALID_INPUT"
	ErrCodeInvalidPackage Code = "INVALID_PACKAGE"
	ErrCodeInvalidVersion Code = "INVALID_VERSION"
	ErrCodeInvalidConfig  Code = "INVALID_CONFIG"

	// Resource not found errors
	ErrCodeNotFound        Code = "NOT_FOUND"
	ErrCodePackageNotFound Code = "PACKAGE_NOT_FOUND"
	ErrCodeFileNotFound    Code = "FILE_NOT_FOUND"

	// Operational errors
	ErrCodeInstall Code = "INSTALL_FAILED"
	ErrCodeCache   Code = "CACHE_ERROR"
	ErrCodeNetwork Code = "NETWORK_ERROR"
	ErrCodeExecute Code = "EXECUTE_FAILED"

	// Internal errors
	ErrCodeInternal Code = "INTERNAL_ERROR"
)

// Coder is implemented by error types that carry their own code without
// being an *Error (for example parser diagnostics with position data).
type Coder interface {
	error
	Code() Code
}

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error or a Coder with a matching code.
// The outermost coded error wins.
func Is(err error, code Code) bool {
	return err != nil && GetCode(err) == code
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if no error in the chain carries a code.
func GetCode(err error) Code {
	for err != nil {
		switch e := err.(type) {
		case *Error:
			return e.Code
		case Coder:
			return e.Code()
		}
		err = errors.Unwrap(err)
	}
	return ""
}

// IsUserError reports whether err is an input error the script author can fix
// (bad syntax, malformed include() call, undeclared include lookup).
func IsUserError(err error) bool {
	switch GetCode(err) {
	case ErrCodeInvalidSyntax, ErrCodeInvalidDeclaration, ErrCodeNotDeclared:
		return true
	}
	return false
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For Coder types, returns their own message.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	var c Coder
	if errors.As(err, &c) {
		return c.Error()
	}
	return err.Error()
}
