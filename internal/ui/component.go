// Package ui hosts the live UI components: named event handlers bound to a
// shared connection gateway, dispatching inbound events to running agents.
package ui

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrTargetNotFound is returned when a component's target agent is not
// registered.
var ErrTargetNotFound = errors.New("target agent not found")

// ErrToolNotFound is returned when a resolved agent has no matching tool.
var ErrToolNotFound = errors.New("tool not found")

// Handler services one action on a component. The returned body is merged
// into the response envelope; an error becomes a success=false reply.
type Handler func(ctx context.Context, params map[string]any) (map[string]any, error)

// Component is one logical UI surface: identity, required platform
// features, default presentation configuration, and a map from action name
// to handler.
type Component struct {
	ID               string
	Name             string
	Description      string
	RequiredFeatures []string
	ModalConfig      map[string]any

	handlers map[string]Handler
}

// NewComponent creates a component with no handlers registered.
func NewComponent(id, name, description string, features []string, modal map[string]any) *Component {
	return &Component{
		ID:               id,
		Name:             name,
		Description:      description,
		RequiredFeatures: features,
		ModalConfig:      modal,
		handlers:         make(map[string]Handler),
	}
}

// RegisterHandler binds an action name to a handler.
func (c *Component) RegisterHandler(action string, h Handler) {
	c.handlers[action] = h
}

// Handler returns the handler bound to action.
func (c *Component) Handler(action string) (Handler, bool) {
	h, ok := c.handlers[action]
	return h, ok
}

// Actions returns the sorted action names the component handles.
func (c *Component) Actions() []string {
	out := make([]string, 0, len(c.handlers))
	for a := range c.handlers {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Directory is the injectable registry of UI components, populated at
// process start.
type Directory struct {
	mu         sync.RWMutex
	components map[string]*Component
}

// NewDirectory creates an empty component directory.
func NewDirectory() *Directory {
	return &Directory{components: make(map[string]*Component)}
}

// Register adds a component under its id.
func (d *Directory) Register(c *Component) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.components[c.ID] = c
}

// Get returns the component registered under id.
func (d *Directory) Get(id string) (*Component, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.components[id]
	return c, ok
}

// List returns all registered components.
func (d *Directory) List() []*Component {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*Component, 0, len(d.components))
	for _, c := range d.components {
		out = append(out, c)
	}
	return out
}
