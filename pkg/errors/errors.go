// SPDX-License-Identifier: Apache-2.0
// Package errors provides typed error handling with rich context for Agora.
package errors

import (
	"encoding/json"
	"fmt"

	"github.com/jllopis/agora/pkg/protocol"
)

// ErrorCode classifies Agora errors for monitoring and recovery.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeValidation indicates a malformed message or artifact. Validation
	// failures are reported synchronously and never persisted.
	CodeValidation ErrorCode = "VALIDATION_ERROR"

	// CodeRouting indicates a message could not be delivered. The retry
	// policy belongs to the caller, not the router.
	CodeRouting ErrorCode = "ROUTING_ERROR"

	// CodeStorage indicates an I/O or index failure in the artifact store.
	// The operation was aborted; no index row points at a missing blob.
	CodeStorage ErrorCode = "STORAGE_ERROR"

	// CodeNotFound indicates an unknown artifact or agent id, distinct from
	// CodeStorage so callers can branch "doesn't exist" vs "broken".
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodePermission indicates an access grant was missing. Reserved: the
	// current store models permissions but does not enforce them.
	CodePermission ErrorCode = "PERMISSION_ERROR"
)

// AgoraError is a typed error with rich context for observability.
// It implements the error interface and can be unwrapped with errors.As().
type AgoraError struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]interface{}
	Recoverable bool
	StatusCode  protocol.StatusCode
}

// Error implements the error interface.
func (e *AgoraError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *AgoraError) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *AgoraError) MarshalJSON() ([]byte, error) {
	type Alias AgoraError
	return json.Marshal(&struct {
		Message     string `json:"message"`
		Code        string `json:"code"`
		Err         string `json:"error,omitempty"`
		Recoverable bool   `json:"recoverable"`
		*Alias
	}{
		Message:     e.Error(),
		Code:        string(e.Code),
		Err:         fmt.Sprintf("%v", e.Err),
		Recoverable: e.Recoverable,
		Alias:       (*Alias)(e),
	})
}

// New creates a new AgoraError with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *AgoraError {
	return &AgoraError{
		Code:       code,
		Message:    msg,
		Err:        cause,
		Context:    make(map[string]interface{}),
		StatusCode: codeToStatusCode(code),
	}
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *AgoraError) WithContext(key string, value interface{}) *AgoraError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
// Returns the error for method chaining.
func (e *AgoraError) WithRecoverable(recoverable bool) *AgoraError {
	e.Recoverable = recoverable
	return e
}

// AsAgoraError attempts to convert an error to an AgoraError.
// Returns the error as AgoraError if it is one, or wraps it otherwise.
func AsAgoraError(err error) *AgoraError {
	if err == nil {
		return nil
	}
	if ae, ok := err.(*AgoraError); ok {
		return ae
	}
	return New(CodeInternal, "wrapped error", err)
}

// IsNotFound reports whether err is an AgoraError carrying CodeNotFound.
func IsNotFound(err error) bool {
	ae, ok := err.(*AgoraError)
	return ok && ae.Code == CodeNotFound
}

// RecoverableString returns "true" or "false" as a string for observability.
func (e *AgoraError) RecoverableString() string {
	if e.Recoverable {
		return "true"
	}
	return "false"
}

// codeToStatusCode maps error codes to protocol status codes.
func codeToStatusCode(code ErrorCode) protocol.StatusCode {
	switch code {
	case CodeValidation:
		return protocol.StatusMessageFormatError
	case CodeRouting:
		return protocol.StatusRoutingError
	case CodeNotFound:
		return protocol.StatusNotFound
	case CodePermission:
		return protocol.StatusForbidden
	default:
		return protocol.StatusInternalError
	}
}
