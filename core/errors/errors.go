// Package errors provides coded errors for the foundry materialization engine.
//
// Overview:
//   - Responsibility: Classify every engine failure with a stable code
//   - Key Types: Code for classification, E for structured errors carrying the offending path
//   - Concurrency Model: All functions are safe for concurrent use
//   - Error Semantics: Compatible with standard library wrapping (errors.Is/As)
//   - Performance Notes: Errors are only built on failure paths
//
// Usage:
//
//	err := errors.New(errors.CodeInvalidModuleName, "module name must not start with a digit")
//	err = errors.Build(errors.CodeUnresolvedPlaceholder).WithPath("domain/x.py").WithMsgf("token %q", "foo").Err()
//	if errors.IsCode(err, errors.CodeUnresolvedPlaceholder) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Code represents an error classification code.
type Code string

// Validation codes. These are raised before any filesystem mutation.
const (
	CodeInvalidProjectName      Code = "INVALID_PROJECT_NAME"
	CodeInvalidModuleName       Code = "INVALID_MODULE_NAME"
	CodeInvalidContextName      Code = "INVALID_CONTEXT_NAME"
	CodeInvalidAPIPrefix        Code = "INVALID_API_PREFIX"
	CodeUnknownArchitecture     Code = "UNKNOWN_ARCHITECTURE"
	CodeUnknownORM              Code = "UNKNOWN_ORM"
	CodeUnknownDB               Code = "UNKNOWN_DB"
	CodeDuplicateContextName    Code = "DUPLICATE_CONTEXT_NAME"
	CodeEmptyContextList        Code = "EMPTY_CONTEXT_LIST"
	CodeConflictingContextInput Code = "CONFLICTING_CONTEXT_INPUT"
)

// Template and rendering codes.
const (
	CodeTemplateRootNotFound  Code = "TEMPLATE_ROOT_NOT_FOUND"
	CodeUnresolvedPlaceholder Code = "UNRESOLVED_PLACEHOLDER"
	CodeDuplicateDestination  Code = "DUPLICATE_DESTINATION"
)

// Commit codes.
const (
	CodeDestinationAlreadyExists Code = "DESTINATION_ALREADY_EXISTS"
	CodeIOWriteFailure           Code = "IO_WRITE_FAILURE"
	CodeAborted                  Code = "ABORTED"
)

// E represents a structured error with code, operation, path, message, and details.
type E struct {
	Code    Code   // Error classification code
	Op      string // Operation that failed
	Path    string // Offending path (template-relative or destination), may be empty
	Err     error  // Underlying error (may be nil)
	Msg     string // Human-readable message
	Details []any  // Additional structured details (token names, suggestions)
}

// Error implements the error interface.
func (e *E) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Path != "" {
		b.WriteString(": ")
		b.WriteString(e.Path)
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error for error unwrapping.
func (e *E) Unwrap() error {
	return e.Err
}

// New creates a new structured error with the given code and message.
func New(code Code, msg string) error {
	return &E{Code: code, Msg: msg}
}

// Newf creates a new structured error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &E{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Wrap creates a new structured error wrapping an existing error.
// The operation name helps identify where the error occurred.
func Wrap(code Code, op string, err error) error {
	return &E{Code: code, Op: op, Err: err}
}

// Wrapf creates a new structured error wrapping an existing error with formatted message.
func Wrapf(code Code, op string, err error, format string, args ...any) error {
	return &E{
		Code: code,
		Op:   op,
		Err:  err,
		Msg:  fmt.Sprintf(format, args...),
	}
}

// CodeOf extracts the error code from an error.
// Returns empty string if the error doesn't have a code.
func CodeOf(err error) Code {
	var e *E
	if err != nil && errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// PathOf returns the offending path of the outermost coded error, if any.
func PathOf(err error) string {
	var e *E
	if err != nil && errors.As(err, &e) {
		return e.Path
	}
	return ""
}

// IsCode checks if an error has a specific code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// IsValidation reports whether err belongs to the pre-mutation validation phase.
func IsValidation(err error) bool {
	switch CodeOf(err) {
	case CodeInvalidProjectName, CodeInvalidModuleName, CodeInvalidContextName,
		CodeInvalidAPIPrefix, CodeUnknownArchitecture, CodeUnknownORM, CodeUnknownDB,
		CodeDuplicateContextName, CodeEmptyContextList, CodeConflictingContextInput:
		return true
	}
	return false
}

// As is a convenience wrapper around the standard library's errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Is is a convenience wrapper around the standard library's errors.Is.
func Is(err error, target error) bool {
	return errors.Is(err, target)
}

// Join is a convenience wrapper around the standard library's errors.Join.
func Join(errs ...error) error {
	return errors.Join(errs...)
}

// Builder provides a fluent interface for constructing errors.
type Builder struct {
	code    Code
	op      string
	path    string
	err     error
	msg     string
	details []any
}

// Build constructs a new error with the builder's configuration.
func Build(code Code) *Builder {
	return &Builder{code: code}
}

// WithOp sets the operation that failed.
func (b *Builder) WithOp(op string) *Builder {
	b.op = op
	return b
}

// WithPath sets the offending path.
func (b *Builder) WithPath(path string) *Builder {
	b.path = path
	return b
}

// WithErr wraps an underlying error.
func (b *Builder) WithErr(err error) *Builder {
	b.err = err
	return b
}

// WithMsg sets a human-readable message.
func (b *Builder) WithMsg(msg string) *Builder {
	b.msg = msg
	return b
}

// WithMsgf sets a formatted human-readable message.
func (b *Builder) WithMsgf(format string, args ...any) *Builder {
	b.msg = fmt.Sprintf(format, args...)
	return b
}

// WithDetails adds structured details to the error.
func (b *Builder) WithDetails(details ...any) *Builder {
	b.details = append(b.details, details...)
	return b
}

// Err builds and returns the error.
func (b *Builder) Err() error {
	return &E{
		Code:    b.code,
		Op:      b.op,
		Path:    b.path,
		Err:     b.err,
		Msg:     b.msg,
		Details: b.details,
	}
}
