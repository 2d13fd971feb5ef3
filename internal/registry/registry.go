package registry

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ToolFunc executes a tool with keyword arguments and returns its result.
type ToolFunc func(ctx context.Context, args map[string]any) (any, error)

// Tool is an invocable capability exposed by a running agent instance.
type Tool struct {
	Name        string
	Description string
	Func        ToolFunc
}

// Instance is a live agent held by the registry. Tools is keyed by tool name
// so dispatch-time lookup is a single map access.
type Instance struct {
	Name       string
	Type       string
	Sandbox    bool
	Tools      map[string]Tool
	DeployedAt time.Time
}

// NewInstance builds an Instance with its tool map populated from the slice.
func NewInstance(name, agentType string, sandbox bool, tools []Tool) *Instance {
	inst := &Instance{
		Name:       name,
		Type:       agentType,
		Sandbox:    sandbox,
		Tools:      make(map[string]Tool, len(tools)),
		DeployedAt: time.Now(),
	}
	for _, t := range tools {
		inst.Tools[t.Name] = t
	}
	return inst
}

// Tool returns the named tool. Absence is a normal outcome.
func (i *Instance) Tool(name string) (Tool, bool) {
	t, ok := i.Tools[name]
	return t, ok
}

// Registry is the process directory of running agent instances, keyed by
// agent name, plus the set of UI component ids bound to each agent. It is
// constructed once and injected; there is no package-level instance.
type Registry struct {
	mu         sync.RWMutex
	agents     map[string]*Instance
	components map[string]map[string]struct{}
	logger     *zap.Logger
}

// New creates an empty registry.
func New(logger *zap.Logger) *Registry {
	return &Registry{
		agents:     make(map[string]*Instance),
		components: make(map[string]map[string]struct{}),
		logger:     logger,
	}
}

// Register inserts an instance under its name. Last writer wins: an existing
// entry with the same name is replaced as a single atomic slot swap.
func (r *Registry) Register(inst *Instance) {
	r.mu.Lock()
	_, replaced := r.agents[inst.Name]
	r.agents[inst.Name] = inst
	r.mu.Unlock()
	r.logger.Info("registered agent instance",
		zap.String("name", inst.Name),
		zap.Bool("sandbox", inst.Sandbox),
		zap.Bool("replaced", replaced))
}

// Lookup returns the instance registered under name. A missing entry is a
// valid result, not an error.
func (r *Registry) Lookup(name string) (*Instance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.agents[name]
	return inst, ok
}

// Remove drops an instance. Entries are never evicted automatically.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.agents, name)
}

// List returns the names of all registered agents.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.agents))
	for n := range r.agents {
		names = append(names, n)
	}
	return names
}

// BindComponent associates a UI component id with an agent name.
func (r *Registry) BindComponent(agentName, componentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.components[agentName]
	if !ok {
		set = make(map[string]struct{})
		r.components[agentName] = set
	}
	set[componentID] = struct{}{}
}

// ComponentsFor returns the UI component ids bound to an agent.
func (r *Registry) ComponentsFor(agentName string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.components[agentName]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}
