package types

import (
	"errors"
	"fmt"
)

// ErrorCode is a namespaced code identifying a class of failure.
type ErrorCode string

// Configuration error codes. Configuration errors are fatal at startup.
const (
	CONFIG_LOAD_FAILED        ErrorCode = "CONFIG_LOAD_FAILED"
	CONFIG_PARSE_FAILED       ErrorCode = "CONFIG_PARSE_FAILED"
	CONFIG_VALIDATION_FAILED  ErrorCode = "CONFIG_VALIDATION_FAILED"
	CONFIG_DIMENSION_MISMATCH ErrorCode = "CONFIG_DIMENSION_MISMATCH"
)

// Graph backend error codes.
const (
	GRAPH_CONNECTION_FAILED ErrorCode = "GRAPH_CONNECTION_FAILED"
	GRAPH_QUERY_FAILED      ErrorCode = "GRAPH_QUERY_FAILED"
	GRAPH_NODE_NOT_FOUND    ErrorCode = "GRAPH_NODE_NOT_FOUND"
	GRAPH_UNAVAILABLE       ErrorCode = "GRAPH_UNAVAILABLE"
)

// Vector store error codes.
const (
	VECTOR_STORE_FAILED  ErrorCode = "VECTOR_STORE_FAILED"
	VECTOR_SEARCH_FAILED ErrorCode = "VECTOR_SEARCH_FAILED"
	VECTOR_NOT_FOUND     ErrorCode = "VECTOR_NOT_FOUND"
	VECTOR_UNAVAILABLE   ErrorCode = "VECTOR_UNAVAILABLE"
)

// Embedding and extraction error codes.
const (
	EMBED_FAILED        ErrorCode = "EMBED_FAILED"
	EMBED_UNAVAILABLE   ErrorCode = "EMBED_UNAVAILABLE"
	EXTRACT_FAILED      ErrorCode = "EXTRACT_FAILED"
	EXTRACT_UNAVAILABLE ErrorCode = "EXTRACT_UNAVAILABLE"
)

// Pipeline error codes.
const (
	INGEST_FAILED        ErrorCode = "INGEST_FAILED"
	INGEST_CANCELLED     ErrorCode = "INGEST_CANCELLED"
	SEARCH_FAILED        ErrorCode = "SEARCH_FAILED"
	SEARCH_NO_RESULTS    ErrorCode = "SEARCH_NO_RESULTS"
	SEARCH_NO_ENTITIES   ErrorCode = "SEARCH_NO_ENTITIES"
	SYNTH_UNAVAILABLE    ErrorCode = "SYNTH_UNAVAILABLE"
	CONSISTENCY_VIOLATED ErrorCode = "CONSISTENCY_VIOLATED"
)

// AnansiError is the structured error used across the pipeline. The Retryable
// flag distinguishes transient infrastructure failures (connection reset,
// timeout) from permanent ones; retry loops consult it before backing off.
type AnansiError struct {
	Code      ErrorCode
	Message   string
	Retryable bool
	Cause     error
}

// Error formats as "[CODE] message" or "[CODE] message: cause".
func (e *AnansiError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As chains.
func (e *AnansiError) Unwrap() error {
	return e.Cause
}

// Is matches by error code so callers can compare against sentinel codes.
func (e *AnansiError) Is(target error) bool {
	var ae *AnansiError
	if errors.As(target, &ae) {
		return e.Code == ae.Code
	}
	return false
}

// NewError creates a non-retryable error with the given code and message.
func NewError(code ErrorCode, message string) *AnansiError {
	return &AnansiError{Code: code, Message: message}
}

// NewRetryableError creates a retryable error for transient failures.
func NewRetryableError(code ErrorCode, message string) *AnansiError {
	return &AnansiError{Code: code, Message: message, Retryable: true}
}

// WrapError wraps an existing error as non-retryable.
func WrapError(code ErrorCode, message string, cause error) *AnansiError {
	return &AnansiError{Code: code, Message: message, Cause: cause}
}

// WrapRetryableError wraps an existing error as retryable.
func WrapRetryableError(code ErrorCode, message string, cause error) *AnansiError {
	return &AnansiError{Code: code, Message: message, Retryable: true, Cause: cause}
}

// IsRetryable reports whether err (or anything it wraps) is a retryable
// AnansiError. Unknown error types are treated as permanent.
func IsRetryable(err error) bool {
	var ae *AnansiError
	if errors.As(err, &ae) {
		return ae.Retryable
	}
	return false
}

// CodeOf returns the error code of err, or "" if it is not an AnansiError.
func CodeOf(err error) ErrorCode {
	var ae *AnansiError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}
