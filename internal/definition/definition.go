package definition

import (
	"fmt"
	"time"
)

// AgentType classifies an agent definition.
type AgentType string

const (
	TypeUtility     AgentType = "Utility"
	TypeSpecialized AgentType = "Specialized"
	TypeSupervisor  AgentType = "Supervisor"
)

// KnownTypes lists every recognized agent type.
var KnownTypes = []AgentType{TypeUtility, TypeSpecialized, TypeSupervisor}

// Definition describes an agent: its identity, capabilities, and system prompt.
// Name is the stable key for registry and store lookups.
type Definition struct {
	ID           int64     `json:"id,omitempty"`
	Name         string    `json:"name"`
	Type         AgentType `json:"type"`
	Description  string    `json:"description"`
	Capabilities []string  `json:"capabilities"`
	Icon         string    `json:"icon,omitempty"`
	Prompt       string    `json:"prompt"`
	Metadata     Metadata  `json:"metadata,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

// Metadata carries free-form relationship data attached to a stored definition.
type Metadata struct {
	Supervisor string   `json:"supervisor,omitempty"`
	SubAgents  []string `json:"subAgents,omitempty"`
}

// Relationships is the shape returned by the relationship query.
// Absent metadata yields a zero Supervisor and an empty SubAgents slice.
type Relationships struct {
	Supervisor *string  `json:"supervisor"`
	SubAgents  []string `json:"subAgents"`
}

// Param is a single tool parameter.
type Param struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Returns describes a tool's return value.
type Returns struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// ToolSpec specifies a tool attached to a template. Names are unique within
// the owning template; parameter names are unique within the tool.
type ToolSpec struct {
	ID             int64   `json:"id,omitempty"`
	Name           string  `json:"name"`
	Description    string  `json:"description"`
	Parameters     []Param `json:"parameters"`
	Returns        Returns `json:"returns"`
	Implementation string  `json:"implementation"`
}

// Validate checks the ToolSpec's internal invariants.
func (t ToolSpec) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	seen := make(map[string]struct{}, len(t.Parameters))
	for _, p := range t.Parameters {
		if p.Name == "" {
			return fmt.Errorf("tool %s: parameter name is required", t.Name)
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("tool %s: duplicate parameter %q", t.Name, p.Name)
		}
		seen[p.Name] = struct{}{}
	}
	return nil
}

// Capability names a reusable agent ability.
type Capability struct {
	ID          int64  `json:"id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Template bundles a definition with its tool specifications. Templates are
// values: WithTool returns a new Template and never mutates the receiver.
type Template struct {
	Agent Definition `json:"agent"`
	Tools []ToolSpec `json:"tools"`
}

// WithTool returns a copy of the template with the tool appended.
// A tool whose name already exists in the template is rejected.
func (t Template) WithTool(tool ToolSpec) (Template, error) {
	if err := tool.Validate(); err != nil {
		return Template{}, err
	}
	for _, existing := range t.Tools {
		if existing.Name == tool.Name {
			return Template{}, fmt.Errorf("tool %q already exists in template", tool.Name)
		}
	}
	out := Template{Agent: t.Agent}
	out.Tools = make([]ToolSpec, 0, len(t.Tools)+1)
	out.Tools = append(out.Tools, t.Tools...)
	out.Tools = append(out.Tools, tool)
	return out, nil
}

// ValidType reports whether s is a recognized agent type.
func ValidType(s string) bool {
	for _, t := range KnownTypes {
		if string(t) == s {
			return true
		}
	}
	return false
}
