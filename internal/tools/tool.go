// Package tools defines the capability model exposed to the model and the
// executor that runs requested invocations, including the human confirmation
// protocol for gated tools.
package tools

import "context"

// Handler runs a tool with its decoded argument mapping and returns a
// JSON-serializable result.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// StreamHandler runs a tool that produces incremental output. Each chunk is
// delivered through emit as it becomes available; the return value is the
// final result summarizing the full stream.
type StreamHandler func(ctx context.Context, args map[string]any, emit func(chunk string)) (any, error)

// Tool is a named, schema-typed capability. Tools are immutable after
// registration. Exactly one of Handler and StreamHandler is set.
type Tool struct {
	Name        string
	Description string
	// Parameters is a JSON Schema object describing the argument mapping.
	Parameters map[string]any
	// RequireConfirm gates execution behind explicit human approval.
	RequireConfirm bool

	Handler       Handler
	StreamHandler StreamHandler
}

// Streaming reports whether the tool produces incremental output.
func (t *Tool) Streaming() bool { return t.StreamHandler != nil }

// Definition is the schema view of a tool handed to the model.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Definition returns the model-facing schema for the tool.
func (t *Tool) Definition() Definition {
	params := t.Parameters
	if params == nil {
		params = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return Definition{Name: t.Name, Description: t.Description, Parameters: params}
}

// ObjectSchema builds a JSON Schema object from property definitions and the
// list of required property names.
func ObjectSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// StringProperty describes a string-typed schema property.
func StringProperty(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

// NumberProperty describes a number-typed schema property.
func NumberProperty(description string) map[string]any {
	return map[string]any{"type": "number", "description": description}
}

// IntegerProperty describes an integer-typed schema property.
func IntegerProperty(description string) map[string]any {
	return map[string]any{"type": "integer", "description": description}
}
