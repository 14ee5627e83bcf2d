package toolcall

import (
	"fmt"
	"regexp"
	"sort"
	"sync"

	"aictl/internal/lmstudio"
)

var commandNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// Registry holds the set of commands exposed to the model.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]ExposedCommand
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]ExposedCommand)}
}

// Expose registers a command. Names must be valid function-calling
// identifiers and unique within the registry.
func (r *Registry) Expose(cmd ExposedCommand) error {
	if !commandNamePattern.MatchString(cmd.Name) {
		return fmt.Errorf("invalid command name %q", cmd.Name)
	}
	if cmd.Handler == nil {
		return fmt.Errorf("command %q has no handler", cmd.Name)
	}
	seen := make(map[string]struct{}, len(cmd.Parameters))
	for _, param := range cmd.Parameters {
		if param.Name == "" {
			return fmt.Errorf("command %q has an unnamed parameter", cmd.Name)
		}
		if _, dup := seen[param.Name]; dup {
			return fmt.Errorf("command %q declares parameter %q twice", cmd.Name, param.Name)
		}
		seen[param.Name] = struct{}{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.commands[cmd.Name]; exists {
		return fmt.Errorf("command %q already exposed", cmd.Name)
	}
	r.commands[cmd.Name] = cmd
	return nil
}

// Get looks up an exposed command by name.
func (r *Registry) Get(name string) (ExposedCommand, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[name]
	return cmd, ok
}

// Names returns the exposed command names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FunctionDefinitions converts the exposed commands to function-calling
// tool definitions, in name order.
func (r *Registry) FunctionDefinitions() []lmstudio.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)

	defs := make([]lmstudio.ToolDefinition, 0, len(names))
	for _, name := range names {
		cmd := r.commands[name]
		defs = append(defs, lmstudio.ToolDefinition{
			Name:        cmd.Name,
			Description: cmd.Description,
			Parameters:  buildParameterSchema(cmd.Parameters),
		})
	}
	return defs
}

func buildParameterSchema(params []Param) map[string]any {
	properties := make(map[string]any, len(params))
	var required []string
	for _, param := range params {
		prop := map[string]any{"type": string(param.Type)}
		if param.Description != "" {
			prop["description"] = param.Description
		}
		if len(param.Enum) > 0 {
			prop["enum"] = param.Enum
		}
		properties[param.Name] = prop
		if param.Required {
			required = append(required, param.Name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		sort.Strings(required)
		schema["required"] = required
	}
	return schema
}
