package mcp

import (
	"errors"
	"fmt"

	"github.com/shaharia-lab/f1mcp/fetch"
)

// ToolNotFoundError is returned when tools/call names an unregistered tool.
type ToolNotFoundError struct {
	Name string
}

func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("tool not found: %s", e.Name)
}

// ResourceNotFoundError is returned when resources/read names an unknown URI.
type ResourceNotFoundError struct {
	URI string
}

func (e *ResourceNotFoundError) Error() string {
	return fmt.Sprintf("resource not found: %s", e.URI)
}

// ValidationError is returned when request parameters fail the declared
// input schema. Field names the first offending parameter.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid params: %s (%s)", e.Field, e.Reason)
}

// translateError is the single point converting internal failures into
// JSON-RPC error objects. Upstream provider failures stay -32603 with a
// descriptive message rather than introducing non-standard codes.
func translateError(err error) *Error {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return &Error{
			Code:    ErrorCodeInvalidParams,
			Message: "Invalid params",
			Data: map[string]string{
				"field":  validationErr.Field,
				"reason": validationErr.Reason,
			},
		}
	}

	var toolErr *ToolNotFoundError
	if errors.As(err, &toolErr) {
		return &Error{
			Code:    ErrorCodeMethodNotFound,
			Message: toolErr.Error(),
		}
	}

	var resourceErr *ResourceNotFoundError
	if errors.As(err, &resourceErr) {
		return &Error{
			Code:    ErrorCodeMethodNotFound,
			Message: resourceErr.Error(),
		}
	}

	var fetchErr *fetch.Error
	if errors.As(err, &fetchErr) {
		return &Error{
			Code:    ErrorCodeInternal,
			Message: fmt.Sprintf("Upstream data unavailable: %v", fetchErr),
		}
	}

	return &Error{
		Code:    ErrorCodeInternal,
		Message: fmt.Sprintf("Internal error: %v", err),
	}
}
