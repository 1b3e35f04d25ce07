package tools

import (
	"fmt"
	"sync"
)

// DefaultEnv is the environment tag used when a session carries no
// environment context.
const DefaultEnv = "default"

// Registry holds process-wide tool definitions and the named environment
// tool sets that scope which tools a session can see.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]*Tool
	envTools map[string][]string
}

func NewRegistry() *Registry {
	return &Registry{
		tools:    make(map[string]*Tool),
		envTools: map[string][]string{DefaultEnv: nil},
	}
}

// Register adds a tool. Registering a duplicate name is an error.
func (r *Registry) Register(tool *Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tool.Name == "" {
		return fmt.Errorf("tool has no name")
	}
	if tool.Handler == nil && tool.StreamHandler == nil {
		return fmt.Errorf("tool %s has no handler", tool.Name)
	}
	if tool.Handler != nil && tool.StreamHandler != nil {
		return fmt.Errorf("tool %s has both handler kinds", tool.Name)
	}
	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("tool already exists: %s", tool.Name)
	}
	r.tools[tool.Name] = tool
	return nil
}

// MustRegister registers a tool and panics on conflict. Used for static
// registration at startup.
func (r *Registry) MustRegister(tool *Tool) {
	if err := r.Register(tool); err != nil {
		panic(err)
	}
}

// Get resolves a tool by name.
func (r *Registry) Get(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// SetEnvTools binds an environment tag to a list of tool names. Names must
// already be registered.
func (r *Registry) SetEnvTools(env string, names []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range names {
		if _, ok := r.tools[name]; !ok {
			return fmt.Errorf("unknown tool %s for env %s", name, env)
		}
	}
	r.envTools[env] = append([]string(nil), names...)
	return nil
}

// EnvTools returns the tools visible under an environment tag, falling back
// to the default set for unknown tags.
func (r *Registry) EnvTools(env string) []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names, ok := r.envTools[env]
	if !ok {
		names = r.envTools[DefaultEnv]
	}
	out := make([]*Tool, 0, len(names))
	for _, name := range names {
		if tool, ok := r.tools[name]; ok {
			out = append(out, tool)
		}
	}
	return out
}

// Definitions returns the model-facing schemas for a tool list.
func Definitions(list []*Tool) []Definition {
	out := make([]Definition, 0, len(list))
	for _, tool := range list {
		out = append(out, tool.Definition())
	}
	return out
}
