// SPDX-License-Identifier: Apache-2.0
// Package errors provides typed error handling with rich context for OpsAgent.
//
// Every failure inside an instruction is classified with an ErrorCode so the
// decision loop can map it to the right recovery: ask the user, refuse,
// relay, retry or abort.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
)

// ErrorCode classifies OpsAgent errors for monitoring and recovery.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeInvalidInput indicates the input was invalid (registration, config).
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeValidation indicates a tool input is missing a required field.
	CodeValidation ErrorCode = "VALIDATION"

	// CodeSecurityRejection indicates the safety gate denied a tool call.
	CodeSecurityRejection ErrorCode = "SECURITY_REJECTION"

	// CodeRemoteFailure indicates a tool's backing operation failed.
	CodeRemoteFailure ErrorCode = "REMOTE_FAILURE"

	// CodeUnknownTool indicates the oracle named an unregistered tool.
	CodeUnknownTool ErrorCode = "UNKNOWN_TOOL"

	// CodeMalformedResponse indicates the oracle response could not be parsed.
	CodeMalformedResponse ErrorCode = "MALFORMED_RESPONSE"

	// CodeOracleUnavailable indicates the oracle could not be reached.
	CodeOracleUnavailable ErrorCode = "ORACLE_UNAVAILABLE"

	// CodeTimeout indicates an operation exceeded its time limit.
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodeCanceled indicates the caller canceled the instruction.
	CodeCanceled ErrorCode = "CANCELED"

	// CodeStepBudget indicates the decision loop ran out of steps.
	CodeStepBudget ErrorCode = "STEP_BUDGET"

	// CodeNotFound indicates a resource was not found.
	CodeNotFound ErrorCode = "NOT_FOUND"
)

// OpsError is a typed error with rich context for observability.
// It implements the error interface and can be unwrapped with errors.As().
type OpsError struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]interface{}
	Attributes  map[string]string
	Recoverable bool
}

// Error implements the error interface.
func (e *OpsError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *OpsError) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *OpsError) MarshalJSON() ([]byte, error) {
	type Alias OpsError
	errText := ""
	if e.Err != nil {
		errText = e.Err.Error()
	}
	return json.Marshal(&struct {
		Message     string `json:"message"`
		Code        string `json:"code"`
		Err         string `json:"error,omitempty"`
		Recoverable bool   `json:"recoverable"`
		*Alias
	}{
		Message:     e.Error(),
		Code:        string(e.Code),
		Err:         errText,
		Recoverable: e.Recoverable,
		Alias:       (*Alias)(e),
	})
}

// New creates a new OpsError with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *OpsError {
	return &OpsError{
		Code:       code,
		Message:    msg,
		Err:        cause,
		Context:    make(map[string]interface{}),
		Attributes: make(map[string]string),
	}
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *OpsError) WithContext(key string, value interface{}) *OpsError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithAttribute adds a string attribute for OTEL traces.
// Returns the error for method chaining.
func (e *OpsError) WithAttribute(key, value string) *OpsError {
	if e.Attributes == nil {
		e.Attributes = make(map[string]string)
	}
	e.Attributes[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
// Returns the error for method chaining.
func (e *OpsError) WithRecoverable(recoverable bool) *OpsError {
	e.Recoverable = recoverable
	return e
}

// AsOpsError attempts to convert an error to an OpsError.
// Returns the error as OpsError if one is in the chain, or wraps it otherwise.
func AsOpsError(err error) *OpsError {
	if err == nil {
		return nil
	}
	var oe *OpsError
	if stderrors.As(err, &oe) {
		return oe
	}
	return New(CodeInternal, "wrapped error", err)
}

// CodeOf returns the code of the first OpsError in the chain, or CodeInternal.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var oe *OpsError
	if stderrors.As(err, &oe) {
		return oe.Code
	}
	return CodeInternal
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// RecoverableString returns "true" or "false" as a string for observability.
func (e *OpsError) RecoverableString() string {
	if e.Recoverable {
		return "true"
	}
	return "false"
}
