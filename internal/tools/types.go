package tools

import "context"

// Arguments represents the input parameters for a tool call.
// It is the decoded JSON object the model supplied.
type Arguments map[string]any

// Handler is the function signature that all tool implementations must follow.
// The result should be plain text (not JSON) for simplicity; it is shown to
// the model and may end up being spoken.
type Handler func(ctx context.Context, args Arguments) (string, error)

// ParamType is the JSON Schema type of a tool parameter.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeBoolean ParamType = "boolean"
)

// Parameter describes one named input of a tool.
type Parameter struct {
	Name        string    `json:"name"`
	Type        ParamType `json:"type"`
	Required    bool      `json:"required,omitempty"`
	Description string    `json:"description"`
	Default     any       `json:"default,omitempty"`
}

// Definition describes a callable tool. Params keeps declaration order so
// prompts and listings are stable.
type Definition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Params      []Parameter `json:"parameters"`

	// RequiredHint replaces the generic message when required params are missing.
	RequiredHint string `json:"-"`

	// Handler is nil for definitions received over the wire.
	Handler Handler `json:"-"`
}
