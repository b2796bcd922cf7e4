package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// ExecuteFunc is a tool's capability. It receives the call (with validated,
// default-applied arguments), a cancellation signal via ctx, and a progress
// callback for incremental output. Implementations are expected to honor ctx
// promptly.
type ExecuteFunc func(ctx context.Context, call ToolCall, progress func(text string)) (ToolResult, error)

// Tool is an invocable capability registered with the runtime. Definitions
// are immutable once registered for the duration of a turn.
type Tool struct {
	Name        string
	Label       string
	Description string
	SchemaJSON  string // JSON Schema for the argument payload
	Execute     ExecuteFunc
}

// Schema returns the tool's backend-facing declaration.
func (t Tool) Schema() ToolSchema {
	return ToolSchema{
		Name:        t.Name,
		Label:       t.Label,
		Description: t.Description,
		SchemaJSON:  t.SchemaJSON,
	}
}

type registration struct {
	tool  Tool
	owner string
}

// Registry maps tool names to capabilities. It is an explicit object owned by
// the runtime instance (no ambient globals); registrations carry an owner key
// so a source of tools can be torn down as a unit.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]registration
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]registration)}
}

// Register adds a tool under the given owner key. Names are unique within a
// registry; registering a duplicate name fails.
func (r *Registry) Register(owner string, t Tool) error {
	if t.Name == "" {
		return fmt.Errorf("tool must have a name")
	}
	if t.Execute == nil {
		return fmt.Errorf("tool %s must have an execute function", t.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.tools[t.Name]; ok {
		return fmt.Errorf("tool %s already registered by %s", t.Name, existing.owner)
	}
	r.tools[t.Name] = registration{tool: t, owner: owner}
	return nil
}

// Deregister removes every tool registered under the owner key.
func (r *Registry) Deregister(owner string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, reg := range r.tools {
		if reg.owner == owner {
			delete(r.tools, name)
		}
	}
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.tools[name]
	return reg.tool, ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Schemas returns the declarations of all registered tools in name order.
func (r *Registry) Schemas() []ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	schemas := make([]ToolSchema, 0, len(r.tools))
	for _, reg := range r.tools {
		schemas = append(schemas, reg.tool.Schema())
	}
	sort.Slice(schemas, func(i, j int) bool { return schemas[i].Name < schemas[j].Name })
	return schemas
}

// PrepareArgs applies the schema's declared defaults for missing optional
// properties, then validates the result. It returns the prepared arguments
// and the field-level violations; a non-empty violation list means the
// arguments must not reach the tool's capability.
func PrepareArgs(schemaJSON string, args map[string]any) (map[string]any, []FieldError) {
	prepared := copyMap(args)
	if prepared == nil {
		prepared = make(map[string]any)
	}

	if err := applyDefaults(schemaJSON, prepared); err != nil {
		return prepared, []FieldError{{Message: fmt.Sprintf("invalid tool schema: %v", err)}}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schemaJSON),
		gojsonschema.NewGoLoader(prepared),
	)
	if err != nil {
		return prepared, []FieldError{{Message: fmt.Sprintf("schema validation failed: %v", err)}}
	}
	if result.Valid() {
		return prepared, nil
	}

	fields := make([]FieldError, 0, len(result.Errors()))
	for _, verr := range result.Errors() {
		fields = append(fields, FieldError{
			Field:   verr.Field(),
			Message: verr.Description(),
		})
	}
	return prepared, fields
}

// applyDefaults fills in top-level properties that declare a default and are
// absent from args. gojsonschema validates but does not inject defaults, so
// this runs before validation.
func applyDefaults(schemaJSON string, args map[string]any) error {
	var schema struct {
		Properties map[string]struct {
			Default any `json:"default"`
		} `json:"properties"`
	}
	if err := json.Unmarshal([]byte(schemaJSON), &schema); err != nil {
		return err
	}
	for name, prop := range schema.Properties {
		if prop.Default == nil {
			continue
		}
		if _, present := args[name]; !present {
			args[name] = prop.Default
		}
	}
	return nil
}
