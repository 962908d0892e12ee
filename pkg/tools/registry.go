package tools

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/himanalot/auteur-sub004/pkg/claude/api"
)

// ToolRegistry maps tool names to their definitions. Implementations must
// be safe for concurrent use; sessions share a registry but never mutate
// it mid-run.
type ToolRegistry interface {
	RegisterTool(name string, def ToolDefinition) error
	GetTool(name string) (*ToolDefinition, error)
	ListTools() []ToolDefinition
	UnregisterTool(name string) error

	Clone() ToolRegistry
}

// InMemoryToolRegistry is a thread-safe in-memory ToolRegistry.
type InMemoryToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]ToolDefinition
	order []string
}

func NewInMemoryToolRegistry() *InMemoryToolRegistry {
	return &InMemoryToolRegistry{
		tools: make(map[string]ToolDefinition),
	}
}

func (r *InMemoryToolRegistry) RegisterTool(name string, def ToolDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "" {
		return errors.New("tool name cannot be empty")
	}
	if def.Name != "" && def.Name != name {
		return errors.Errorf("tool definition name (%s) does not match registry name (%s)", def.Name, name)
	}

	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	def.Name = name
	r.tools[name] = def
	return nil
}

func (r *InMemoryToolRegistry) GetTool(name string) (*ToolDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, exists := r.tools[name]
	if !exists {
		return nil, errors.Errorf("tool not found: %s", name)
	}

	toolCopy := tool
	return &toolCopy, nil
}

// ListTools returns all registered tools in registration order.
func (r *InMemoryToolRegistry) ListTools() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]ToolDefinition, 0, len(r.tools))
	for _, name := range r.order {
		tools = append(tools, r.tools[name])
	}
	return tools
}

func (r *InMemoryToolRegistry) UnregisterTool(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; !exists {
		return errors.Errorf("tool not found: %s", name)
	}
	delete(r.tools, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

func (r *InMemoryToolRegistry) Clone() ToolRegistry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cloned := NewInMemoryToolRegistry()
	for name, tool := range r.tools {
		cloned.tools[name] = tool
	}
	cloned.order = append([]string(nil), r.order...)
	return cloned
}

func (r *InMemoryToolRegistry) HasTool(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.tools[name]
	return exists
}

func (r *InMemoryToolRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.tools)
}

// APITools converts every registered tool into its wire representation,
// in registration order.
func APITools(registry ToolRegistry) ([]api.Tool, error) {
	defs := registry.ListTools()
	apiTools := make([]api.Tool, 0, len(defs))
	for _, def := range defs {
		tool, err := def.APITool()
		if err != nil {
			return nil, err
		}
		apiTools = append(apiTools, tool)
	}
	return apiTools, nil
}
