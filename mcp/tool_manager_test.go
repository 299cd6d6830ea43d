package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopHandler(ctx context.Context, params CallToolParams) (CallToolResult, error) {
	return CallToolResult{}, nil
}

func schemaWithRequired(field string) json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"` + field + `": {"type": "string"}
		},
		"required": ["` + field + `"]
	}`)
}

func TestRegisterToolsRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		tool Tool
	}{
		{
			name: "empty name",
			tool: Tool{Name: "", Handler: noopHandler},
		},
		{
			name: "nil handler",
			tool: Tool{Name: "no_handler"},
		},
		{
			name: "invalid schema",
			tool: Tool{
				Name:        "bad_schema",
				InputSchema: json.RawMessage(`{"type": 42}`),
				Handler:     noopHandler,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tm := NewToolManager()
			assert.Error(t, tm.RegisterTools(tt.tool))
		})
	}
}

func TestRegisterToolsRejectsDuplicates(t *testing.T) {
	tm := NewToolManager()
	require.NoError(t, tm.RegisterTools(Tool{Name: "dup", Handler: noopHandler}))

	err := tm.RegisterTools(Tool{Name: "dup", Handler: noopHandler})
	assert.ErrorContains(t, err, "duplicate tool")
}

func TestListToolsPreservesRegistrationOrder(t *testing.T) {
	tm := NewToolManager()
	names := []string{"zulu", "alpha", "mike", "bravo"}
	for _, name := range names {
		require.NoError(t, tm.RegisterTools(Tool{Name: name, Handler: noopHandler}))
	}

	listed := tm.ListTools()
	require.Len(t, listed, len(names))
	for i, name := range names {
		assert.Equal(t, name, listed[i].Name)
	}

	// A second call must return the same order.
	again := tm.ListTools()
	for i := range listed {
		assert.Equal(t, listed[i].Name, again[i].Name)
	}
}

func TestCallToolUnknownTool(t *testing.T) {
	tm := NewToolManager()

	_, err := tm.CallTool(context.Background(), CallToolParams{Name: "nope"})

	var notFound *ToolNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "nope", notFound.Name)
}

func TestCallToolValidatesArguments(t *testing.T) {
	tm := NewToolManager()
	called := false
	require.NoError(t, tm.RegisterTools(Tool{
		Name:        "greet",
		InputSchema: schemaWithRequired("who"),
		Handler: func(ctx context.Context, params CallToolParams) (CallToolResult, error) {
			called = true
			return CallToolResult{}, nil
		},
	}))

	_, err := tm.CallTool(context.Background(), CallToolParams{
		Name:      "greet",
		Arguments: json.RawMessage(`{}`),
	})

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "who", validationErr.Field)
	assert.False(t, called, "handler must not run on invalid arguments")

	_, err = tm.CallTool(context.Background(), CallToolParams{
		Name:      "greet",
		Arguments: json.RawMessage(`{"who": "world"}`),
	})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestCallToolMissingArgumentsValidatedAsEmptyObject(t *testing.T) {
	tm := NewToolManager()
	require.NoError(t, tm.RegisterTools(Tool{
		Name:        "strict",
		InputSchema: schemaWithRequired("field"),
		Handler:     noopHandler,
	}))

	_, err := tm.CallTool(context.Background(), CallToolParams{Name: "strict"})

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "field", validationErr.Field)
}

func TestCallToolPropagatesHandlerError(t *testing.T) {
	tm := NewToolManager()
	handlerErr := errors.New("boom")
	require.NoError(t, tm.RegisterTools(Tool{
		Name: "failing",
		Handler: func(ctx context.Context, params CallToolParams) (CallToolResult, error) {
			return CallToolResult{}, handlerErr
		},
	}))

	_, err := tm.CallTool(context.Background(), CallToolParams{Name: "failing"})
	assert.ErrorIs(t, err, handlerErr)
}

func TestTranslateError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{
			name:     "validation error",
			err:      &ValidationError{Field: "year", Reason: "year is required"},
			wantCode: ErrorCodeInvalidParams,
		},
		{
			name:     "unknown tool",
			err:      &ToolNotFoundError{Name: "missing"},
			wantCode: ErrorCodeMethodNotFound,
		},
		{
			name:     "unknown resource",
			err:      &ResourceNotFoundError{URI: "f1://nope"},
			wantCode: ErrorCodeMethodNotFound,
		},
		{
			name:     "plain error",
			err:      errors.New("something broke"),
			wantCode: ErrorCodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			protoErr := translateError(tt.err)
			assert.Equal(t, tt.wantCode, protoErr.Code)
		})
	}
}

func TestTranslateValidationErrorNamesField(t *testing.T) {
	protoErr := translateError(&ValidationError{Field: "driver", Reason: "driver is required"})

	require.Equal(t, ErrorCodeInvalidParams, protoErr.Code)
	data, ok := protoErr.Data.(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "driver", data["field"])
}
