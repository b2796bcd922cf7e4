package prompts

import (
	"fmt"
	"strings"
)

// Builder composes a system prompt from a registered base plus fragments and
// {{key}} variable substitution.
type Builder struct {
	fragments []string
	variables map[string]string
}

// NewBuilder creates a builder seeded with a registered prompt.
func NewBuilder(registry *Registry, id string, version Version) (*Builder, error) {
	base, err := registry.Get(id, version)
	if err != nil {
		return nil, fmt.Errorf("failed to get base prompt: %w", err)
	}
	return &Builder{
		fragments: []string{base.Content},
		variables: make(map[string]string),
	}, nil
}

// AddFragment appends a fragment to the prompt.
func (b *Builder) AddFragment(text string) *Builder {
	b.fragments = append(b.fragments, text)
	return b
}

// SetVariable sets a variable for template substitution.
func (b *Builder) SetVariable(key, value string) *Builder {
	b.variables[key] = value
	return b
}

// Build joins the fragments and substitutes {{key}} placeholders.
func (b *Builder) Build() string {
	result := strings.Join(b.fragments, "\n\n")
	for key, value := range b.variables {
		result = strings.ReplaceAll(result, "{{"+key+"}}", value)
	}
	return result
}
