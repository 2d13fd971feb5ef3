package generator

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
)

// definitionSchema is the JSON schema every raw definition is checked against
// before it touches the store.
var definitionSchema = &jsonschema.Schema{
	Type:     "object",
	Required: []string{"name", "type", "description", "prompt"},
	Properties: map[string]*jsonschema.Schema{
		"name":        {Type: "string", MinLength: ptr(1)},
		"type":        {Type: "string", Enum: []any{"Utility", "Specialized", "Supervisor"}},
		"description": {Type: "string"},
		"prompt":      {Type: "string"},
		"icon":        {Type: "string"},
		"capabilities": {
			Type:  "array",
			Items: &jsonschema.Schema{Type: "string"},
		},
		"metadata": {
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"supervisor": {Type: "string"},
				"subAgents": {
					Type:  "array",
					Items: &jsonschema.Schema{Type: "string"},
				},
			},
		},
	},
}

var (
	resolveOnce    sync.Once
	resolvedSchema *jsonschema.Resolved
	resolveErr     error
)

func resolved() (*jsonschema.Resolved, error) {
	resolveOnce.Do(func() {
		resolvedSchema, resolveErr = definitionSchema.Resolve(nil)
	})
	if resolveErr != nil {
		return nil, fmt.Errorf("resolve definition schema: %w", resolveErr)
	}
	return resolvedSchema, nil
}

// SchemaDocument returns the definition schema as a JSON value, for the
// GET /schema endpoint.
func SchemaDocument() (map[string]any, error) {
	raw, err := json.Marshal(definitionSchema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	return doc, nil
}

func ptr[T any](v T) *T { return &v }
