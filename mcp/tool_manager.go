package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// Tool represents a callable tool exposed to the client.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
	Handler     ToolHandler     `json:"-"`
}

// ToolHandler executes a tool call with schema-validated arguments.
type ToolHandler func(ctx context.Context, params CallToolParams) (CallToolResult, error)

// ToolResultContent represents one content item returned by a tool.
type ToolResultContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// CallToolParams represents parameters for calling a tool.
type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// CallToolResult represents the result of calling a tool.
type CallToolResult struct {
	Content []ToolResultContent `json:"content"`
	IsError bool                `json:"isError,omitempty"`
}

// ListToolsResult represents the result of listing available tools.
type ListToolsResult struct {
	Tools []Tool `json:"tools"`
}

// ToolManager holds the registered tools. Registration happens once before
// the server starts serving; lookups after that are read-only and safe for
// concurrent use without locking.
type ToolManager struct {
	tools map[string]Tool
	order []string
}

// NewToolManager creates an empty ToolManager.
func NewToolManager() *ToolManager {
	return &ToolManager{
		tools: make(map[string]Tool),
	}
}

// RegisterTools adds tools to the registry, preserving registration order.
func (tm *ToolManager) RegisterTools(tools ...Tool) error {
	for _, tool := range tools {
		if tool.Name == "" {
			return fmt.Errorf("tool name cannot be empty")
		}
		if tool.Handler == nil {
			return fmt.Errorf("tool %s has no handler", tool.Name)
		}
		if _, exists := tm.tools[tool.Name]; exists {
			return fmt.Errorf("duplicate tool: %s", tool.Name)
		}
		if len(tool.InputSchema) > 0 {
			if _, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(tool.InputSchema)); err != nil {
				return fmt.Errorf("tool %s has an invalid input schema: %w", tool.Name, err)
			}
		}

		tm.tools[tool.Name] = tool
		tm.order = append(tm.order, tool.Name)
	}

	return nil
}

// GetTool retrieves a tool by name.
func (tm *ToolManager) GetTool(name string) (Tool, bool) {
	tool, exists := tm.tools[name]
	return tool, exists
}

// ListTools returns every registered tool in registration order. The order
// is stable across calls.
func (tm *ToolManager) ListTools() []Tool {
	tools := make([]Tool, 0, len(tm.order))
	for _, name := range tm.order {
		tools = append(tools, tm.tools[name])
	}
	return tools
}

// CallTool validates params against the tool's input schema and invokes its
// handler. Unknown tools yield a ToolNotFoundError, schema mismatches a
// ValidationError naming the offending field.
func (tm *ToolManager) CallTool(ctx context.Context, params CallToolParams) (CallToolResult, error) {
	tool, exists := tm.tools[params.Name]
	if !exists {
		return CallToolResult{}, &ToolNotFoundError{Name: params.Name}
	}

	if len(tool.InputSchema) > 0 {
		if err := validateArguments(tool.InputSchema, params.Arguments); err != nil {
			return CallToolResult{}, err
		}
	}

	return tool.Handler(ctx, params)
}

func validateArguments(schema, arguments json.RawMessage) error {
	if len(arguments) == 0 {
		arguments = json.RawMessage(`{}`)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schema),
		gojsonschema.NewBytesLoader(arguments),
	)
	if err != nil {
		return &ValidationError{Field: "arguments", Reason: err.Error()}
	}
	if result.Valid() {
		return nil
	}

	desc := result.Errors()[0]
	field := desc.Field()
	if property, ok := desc.Details()["property"].(string); ok && field == "(root)" {
		field = property
	}

	return &ValidationError{Field: field, Reason: desc.Description()}
}
