package toolbox

import (
	"context"
	"encoding/json"
)

// Handler executes a tool with the given JSON arguments and returns a text
// result. Returned errors and panics are contained by ToolBox.Call.
type Handler func(ctx context.Context, input json.RawMessage) (string, error)

// Tool declares a single capability: a unique name, a description for the
// model, the JSON Schema of its arguments, and the handler that runs it.
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Handler     Handler
}

// Schema is the declaration of a tool as the model endpoint expects it.
type Schema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// emptyObjectSchema is advertised for tools that declare no schema.
var emptyObjectSchema = json.RawMessage(`{"type":"object"}`)

// Schema returns the declaration of t.
func (t Tool) Schema() Schema {
	schema := t.InputSchema
	if len(schema) == 0 {
		schema = emptyObjectSchema
	}

	return Schema{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: schema,
	}
}
