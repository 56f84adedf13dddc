package engine

import (
	"context"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

type ToolFunc func(ctx context.Context, args map[string]any) (string, error)

// ToolMetadata categorizes a tool for the registry and the approval gate.
type ToolMetadata struct {
	Category string   // e.g. "filesystem", "execution", "meta"
	Tags     []string // e.g. ["read-only", "idempotent"]
}

type Tool struct {
	Name        string
	Description string
	SchemaJSON  string
	Fn          ToolFunc
	Retryable   bool // set for idempotent operations only
	Metadata    ToolMetadata
}

// ValidateArgs validates the provided arguments against the tool's JSON schema.
func (t Tool) ValidateArgs(args map[string]any) error {
	schemaLoader := gojsonschema.NewStringLoader(t.SchemaJSON)
	documentLoader := gojsonschema.NewGoLoader(args)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	if !result.Valid() {
		var errorMsgs []string
		for _, err := range result.Errors() {
			errorMsgs = append(errorMsgs, err.String())
		}
		return &ToolValidationError{
			ToolName: t.Name,
			Errors:   errorMsgs,
		}
	}

	return nil
}

// IsReadOnly reports whether the tool is tagged read-only. Read-only tools
// may be auto-approved without a confirmation prompt.
func (t Tool) IsReadOnly() bool {
	for _, tag := range t.Metadata.Tags {
		if tag == "read-only" {
			return true
		}
	}
	return false
}

func (t Tool) GetCategory() string {
	if t.Metadata.Category == "" {
		return "general"
	}
	return t.Metadata.Category
}

type ToolRegistry map[string]Tool

func (r ToolRegistry) Schemas() []ToolSchema {
	s := make([]ToolSchema, 0, len(r))
	for _, t := range r {
		s = append(s, ToolSchema{
			Name:        t.Name,
			Description: t.Description,
			JSONSchema:  t.SchemaJSON,
			Retryable:   t.Retryable,
		})
	}
	return s
}

// FilterByCategory returns a new registry containing only tools of the
// given category.
func (r ToolRegistry) FilterByCategory(category string) ToolRegistry {
	filtered := make(ToolRegistry)
	for name, tool := range r {
		if tool.GetCategory() == category {
			filtered[name] = tool
		}
	}
	return filtered
}
