// Package generator orchestrates the agent definition pipeline: schema
// validation, persistence, code generation, and live registration.
package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kilnworks/kiln/internal/definition"
	"github.com/kilnworks/kiln/internal/registry"
	"github.com/kilnworks/kiln/internal/store"
	"go.uber.org/zap"
)

// Engine is the template engine contract the generator consumes. The
// concrete renderer lives behind this interface; the generator never
// inspects template text itself.
type Engine interface {
	Render(def definition.Definition) (definition.Template, error)
	AppendTool(tpl definition.Template, tool definition.ToolSpec) (definition.Template, error)
	Validate(tpl definition.Template) []string
	Generate(tpl definition.Template) (string, error)
}

// SchemaError reports a raw definition that failed schema validation.
type SchemaError struct {
	Detail string
}

func (e *SchemaError) Error() string {
	return "invalid agent definition: " + e.Detail
}

// ErrGeneration marks a template-to-code rendering failure.
var ErrGeneration = errors.New("code generation failed")

// ErrConfiguration marks invalid relationship metadata, such as an agent
// supervising itself.
var ErrConfiguration = errors.New("invalid agent configuration")

// Generator drives the definition pipeline against a store and an engine.
type Generator struct {
	store  *store.Store
	engine Engine
	logger *zap.Logger
}

// New creates a Generator.
func New(st *store.Store, engine Engine, logger *zap.Logger) *Generator {
	return &Generator{store: st, engine: engine, logger: logger}
}

// Store exposes the backing definition store.
func (g *Generator) Store() *store.Store { return g.store }

// ValidateDefinition checks a raw definition against the expected schema.
// It is side-effect-free and fails with a *SchemaError.
func (g *Generator) ValidateDefinition(raw map[string]any) error {
	schema, err := resolved()
	if err != nil {
		return err
	}
	if err := schema.Validate(raw); err != nil {
		return &SchemaError{Detail: err.Error()}
	}
	return nil
}

// decodeDefinition converts a validated raw document into a typed template.
func decodeDefinition(raw map[string]any) (definition.Template, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return definition.Template{}, fmt.Errorf("encode definition: %w", err)
	}

	// Raw documents come in either bare ({name, type, ...}) or wrapped
	// ({agent: {...}, tools: [...]}) form.
	if _, wrapped := raw["agent"]; wrapped {
		var tpl definition.Template
		if err := json.Unmarshal(data, &tpl); err != nil {
			return definition.Template{}, fmt.Errorf("decode template: %w", err)
		}
		return tpl, nil
	}

	var def definition.Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return definition.Template{}, fmt.Errorf("decode definition: %w", err)
	}
	return definition.Template{Agent: def}, nil
}

// checkRelationships rejects self-referential supervisor metadata. A cyclic
// supervisor chain cannot be expressed through one record alone, but an
// agent naming itself in either direction is always wrong.
func checkRelationships(def definition.Definition) error {
	if def.Metadata.Supervisor == def.Name && def.Metadata.Supervisor != "" {
		return fmt.Errorf("agent %q cannot supervise itself: %w", def.Name, ErrConfiguration)
	}
	for _, sub := range def.Metadata.SubAgents {
		if sub == def.Name {
			return fmt.Errorf("agent %q cannot be its own sub-agent: %w", def.Name, ErrConfiguration)
		}
	}
	return nil
}

// SaveDefinition validates the raw definition and atomically persists the
// agent row with its tool and capability associations. Name collisions
// surface as store.ErrDuplicate; the store enforces uniqueness.
func (g *Generator) SaveDefinition(ctx context.Context, raw map[string]any) (definition.Definition, []definition.ToolSpec, []definition.Capability, error) {
	payload := raw
	if agent, ok := raw["agent"].(map[string]any); ok {
		payload = agent
	}
	if err := g.ValidateDefinition(payload); err != nil {
		return definition.Definition{}, nil, nil, err
	}

	tpl, err := decodeDefinition(raw)
	if err != nil {
		return definition.Definition{}, nil, nil, err
	}
	if err := checkRelationships(tpl.Agent); err != nil {
		return definition.Definition{}, nil, nil, err
	}

	def, tools, caps, err := g.store.SaveDefinition(ctx, tpl)
	if err != nil {
		return definition.Definition{}, nil, nil, err
	}
	g.logger.Info("definition saved",
		zap.Int64("id", def.ID),
		zap.String("name", def.Name),
		zap.Int("tools", len(tools)),
		zap.Int("capabilities", len(caps)))
	return def, tools, caps, nil
}

// LoadDefinition loads a stored definition as a full template document.
// A missing id surfaces as store.ErrNotFound.
func (g *Generator) LoadDefinition(ctx context.Context, id int64) (definition.Template, error) {
	return g.store.GetTemplate(ctx, id)
}

// GenerateFromStore loads a definition and renders it into source text.
// store.ErrNotFound propagates unchanged; rendering failures are wrapped
// as ErrGeneration.
func (g *Generator) GenerateFromStore(ctx context.Context, id int64) (string, error) {
	tpl, err := g.LoadDefinition(ctx, id)
	if err != nil {
		return "", err
	}
	source, err := g.engine.Generate(tpl)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	return source, nil
}

// Deploy loads a stored definition, renders it, instantiates a running
// agent, and registers it under its name. An existing registry entry with
// the same name is overwritten: last writer wins.
func (g *Generator) Deploy(ctx context.Context, id int64, reg *registry.Registry, sandbox bool) (*registry.Instance, error) {
	tpl, err := g.LoadDefinition(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := g.engine.Generate(tpl); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	inst := Instantiate(tpl, sandbox)
	reg.Register(inst)
	return inst, nil
}

// Instantiate builds a running instance from a template. Each tool's func
// echoes its declared spec; the implementation body travels with the
// generated source, not the in-process instance.
func Instantiate(tpl definition.Template, sandbox bool) *registry.Instance {
	tools := make([]registry.Tool, 0, len(tpl.Tools))
	for _, spec := range tpl.Tools {
		spec := spec
		tools = append(tools, registry.Tool{
			Name:        spec.Name,
			Description: spec.Description,
			Func: func(ctx context.Context, args map[string]any) (any, error) {
				return map[string]any{
					"tool":   spec.Name,
					"args":   args,
					"result": spec.Returns.Description,
				}, nil
			},
		})
	}
	return registry.NewInstance(tpl.Agent.Name, string(tpl.Agent.Type), sandbox, tools)
}
