package mcp

import (
	"context"
	"fmt"
)

// Resource represents a URI-addressed readable payload exposed to the client.
type Resource struct {
	URI         string          `json:"uri"`
	Name        string          `json:"name,omitempty"`
	Description string          `json:"description,omitempty"`
	MimeType    string          `json:"mimeType"`
	Handler     ResourceHandler `json:"-"`
}

// ResourceHandler produces the current payload text for a resource.
type ResourceHandler func(ctx context.Context) (string, error)

// ReadResourceParams represents parameters for reading a resource.
type ReadResourceParams struct {
	URI string `json:"uri"`
}

// ResourceContent represents the content of one resource read.
type ResourceContent struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType"`
	Text     string `json:"text"`
}

// ReadResourceResult represents the result of reading a resource.
type ReadResourceResult struct {
	Contents []ResourceContent `json:"contents"`
}

// ListResourcesResult represents the result of listing resources.
type ListResourcesResult struct {
	Resources []Resource `json:"resources"`
}

// ResourceManager holds the registered resources. Like the ToolManager it is
// populated once at startup and read-only afterwards.
type ResourceManager struct {
	resources map[string]Resource
	order     []string
}

// NewResourceManager creates an empty ResourceManager.
func NewResourceManager() *ResourceManager {
	return &ResourceManager{
		resources: make(map[string]Resource),
	}
}

// RegisterResources adds resources to the registry, preserving registration order.
func (rm *ResourceManager) RegisterResources(resources ...Resource) error {
	for _, resource := range resources {
		if resource.URI == "" {
			return fmt.Errorf("resource URI cannot be empty")
		}
		if resource.Handler == nil {
			return fmt.Errorf("resource %s has no handler", resource.URI)
		}
		if _, exists := rm.resources[resource.URI]; exists {
			return fmt.Errorf("duplicate resource: %s", resource.URI)
		}

		rm.resources[resource.URI] = resource
		rm.order = append(rm.order, resource.URI)
	}

	return nil
}

// ListResources returns every registered resource in registration order.
func (rm *ResourceManager) ListResources() []Resource {
	resources := make([]Resource, 0, len(rm.order))
	for _, uri := range rm.order {
		resources = append(resources, rm.resources[uri])
	}
	return resources
}

// ReadResource invokes the handler for uri and wraps its payload with the
// declared mime type. Unknown URIs yield a ResourceNotFoundError.
func (rm *ResourceManager) ReadResource(ctx context.Context, uri string) (ReadResourceResult, error) {
	resource, exists := rm.resources[uri]
	if !exists {
		return ReadResourceResult{}, &ResourceNotFoundError{URI: uri}
	}

	text, err := resource.Handler(ctx)
	if err != nil {
		return ReadResourceResult{}, err
	}

	return ReadResourceResult{
		Contents: []ResourceContent{{
			URI:      resource.URI,
			MimeType: resource.MimeType,
			Text:     text,
		}},
	}, nil
}
