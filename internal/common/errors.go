package common

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorKind classifies a pipeline failure.
type ErrorKind string

const (
	KindUnsupportedFormat    ErrorKind = "UnsupportedFormat"
	KindExtractionFailure    ErrorKind = "ExtractionFailure"
	KindEmptyHeadingList     ErrorKind = "EmptyHeadingList"
	KindMalformedJSON        ErrorKind = "MalformedJson"
	KindInvalidSchema        ErrorKind = "InvalidSchema"
	KindModelResponseNotJSON ErrorKind = "ModelResponseNotJson"
	KindFieldTypeMismatch    ErrorKind = "FieldTypeMismatch"
	KindEmptyDocumentContent ErrorKind = "EmptyDocumentContent"
	KindInvalidRequest       ErrorKind = "InvalidRequest"
	KindInputTooLarge        ErrorKind = "InputTooLarge"
	KindModelCallFailed      ErrorKind = "ModelCallFailed"
	KindConfig               ErrorKind = "CONFIG_ERROR"
	KindInternal             ErrorKind = "Internal"
)

// AppError represents application-specific errors.
// Message is safe to show to callers; Cause is for logs.
type AppError struct {
	Code    ErrorKind
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// FieldTypeMismatchError is raised when a model value has the wrong JSON kind.
type FieldTypeMismatchError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *FieldTypeMismatchError) Error() string {
	return fmt.Sprintf("field %q: expected %s, got %s", e.Field, e.Expected, e.Actual)
}

// Common application errors
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrDatabase     = errors.New("database error")
	ErrValidation   = errors.New("validation failed")
)

// NewAppError builds an AppError.
func NewAppError(code ErrorKind, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Errorf builds an AppError with a formatted message and no cause.
func Errorf(code ErrorKind, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// NewFieldTypeMismatch returns the reconciler's type mismatch failure.
func NewFieldTypeMismatch(field, expected, actual string) *AppError {
	cause := &FieldTypeMismatchError{Field: field, Expected: expected, Actual: actual}
	return &AppError{
		Code:    KindFieldTypeMismatch,
		Message: fmt.Sprintf("Field %q has type %s, expected %s", field, actual, expected),
		Cause:   cause,
	}
}

// KindOf returns the kind carried by err, or KindInternal for foreign errors.
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return KindInternal
}

// MessageOf returns the caller-facing message for err.
func MessageOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// gRPC error helpers
func InvalidArgumentError(message string) error {
	return status.Error(codes.InvalidArgument, message)
}

func InternalError(message string) error {
	return status.Error(codes.Internal, message)
}

func InvalidArgumentErrorf(format string, args ...interface{}) error {
	return InvalidArgumentError(fmt.Sprintf(format, args...))
}
