// Package tools exposes gateway operations as named, JSON-argument tools so
// agent runtimes can drive the facade without knowing its REST layout.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownTool marks invocations of names nobody registered.
var ErrUnknownTool = errors.New("unknown tool")

// Tool is one invocable operation with a self-describing argument schema.
type Tool interface {
	Name() string
	Description() string
	Schema() map[string]interface{}
	Execute(ctx context.Context, args json.RawMessage) (interface{}, error)
}

// Descriptor is the listing shape for one tool.
type Descriptor struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Schema      map[string]interface{} `json:"schema"`
}

// Registry manages the available tools.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

func (r *Registry) RegisterAll(tools ...Tool) {
	for _, tool := range tools {
		r.Register(tool)
	}
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns descriptors for every registered tool, sorted by name.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descriptors := make([]Descriptor, 0, len(r.tools))
	for _, tool := range r.tools {
		descriptors = append(descriptors, Descriptor{
			Name:        tool.Name(),
			Description: tool.Description(),
			Schema:      tool.Schema(),
		})
	}
	sort.Slice(descriptors, func(i, j int) bool {
		return descriptors[i].Name < descriptors[j].Name
	})
	return descriptors
}

// Execute runs the named tool.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	tool, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	return tool.Execute(ctx, args)
}

// funcTool adapts a closure into a Tool.
type funcTool struct {
	name        string
	description string
	schema      map[string]interface{}
	run         func(ctx context.Context, args json.RawMessage) (interface{}, error)
}

func (t *funcTool) Name() string                   { return t.name }
func (t *funcTool) Description() string            { return t.description }
func (t *funcTool) Schema() map[string]interface{} { return t.schema }

func (t *funcTool) Execute(ctx context.Context, args json.RawMessage) (interface{}, error) {
	return t.run(ctx, args)
}
