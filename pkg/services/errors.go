// Package services provides the flow editing service and its error classification.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/chatflow/pkg/editor"
	"github.com/dukex/chatflow/pkg/flow"
	"github.com/dukex/chatflow/pkg/schema"
)

var ErrEmptyDocument = errors.New("flow document is empty")

// Codes carried by Error. They double as problem types in API responses.
const (
	CodeEmptyDocument     = "empty_document"
	CodeInvalidDocument   = "invalid_document"
	CodeSampleUnavailable = "sample_unavailable"
)

// Error tags a failed whole-flow operation with a stable code.
type Error struct {
	Op   string
	Code string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s flow: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op, code string, err error) *Error {
	return &Error{Op: op, Code: code, Err: err}
}

// Code returns the code of the first Error in err's chain, or fallback.
func Code(err error, fallback string) string {
	var flowErr *Error
	if errors.As(err, &flowErr) && flowErr.Code != "" {
		return flowErr.Code
	}

	return fallback
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrEmptyDocument) ||
		errors.Is(err, schema.ErrInvalidDocument) ||
		errors.Is(err, flow.ErrInvalidConnection) ||
		errors.Is(err, flow.ErrInvalidChange) ||
		errors.Is(err, flow.ErrInvalidMode) ||
		errors.Is(err, flow.ErrUnknownNodeType) ||
		errors.Is(err, editor.ErrNotImage)
}

// IsNotFoundError checks if an error names a node, card or button that does not exist (HTTP 404).
func IsNotFoundError(err error) bool {
	return flow.IsNodeNotFound(err) || editor.IsNotFound(err)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, flow.ErrViewMode) ||
		errors.Is(err, editor.ErrWrongCardType) ||
		errors.Is(err, editor.ErrEditorClosed)
}
