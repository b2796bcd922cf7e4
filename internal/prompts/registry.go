package prompts

import (
	"fmt"
	"sync"
)

// Registry manages versioned prompts.
type Registry struct {
	mu      sync.RWMutex
	prompts map[string]map[Version]*Prompt
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the process-wide prompt registry.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates an empty prompt registry.
func NewRegistry() *Registry {
	return &Registry{prompts: make(map[string]map[Version]*Prompt)}
}

// Register adds a prompt revision to the registry.
func (r *Registry) Register(p *Prompt) {
	if p == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.prompts[p.ID] == nil {
		r.prompts[p.ID] = make(map[Version]*Prompt)
	}
	r.prompts[p.ID][p.Version] = p
}

// Get retrieves a specific revision of a prompt.
func (r *Registry) Get(id string, version Version) (*Prompt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions, ok := r.prompts[id]
	if !ok {
		return nil, fmt.Errorf("prompt not found: %s", id)
	}
	p, ok := versions[version]
	if !ok {
		return nil, fmt.Errorf("prompt %s version %s not found", id, version)
	}
	return p, nil
}

// Latest retrieves the newest non-deprecated revision of a prompt. If every
// revision is deprecated, the newest one is returned anyway.
func (r *Registry) Latest(id string) (*Prompt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions, ok := r.prompts[id]
	if !ok {
		return nil, fmt.Errorf("prompt not found: %s", id)
	}

	pick := func(includeDeprecated bool) *Prompt {
		var latest *Prompt
		for _, p := range versions {
			if p.Deprecated && !includeDeprecated {
				continue
			}
			if latest == nil || p.Version > latest.Version {
				latest = p
			}
		}
		return latest
	}

	if p := pick(false); p != nil {
		return p, nil
	}
	if p := pick(true); p != nil {
		return p, nil
	}
	return nil, fmt.Errorf("no versions found for prompt: %s", id)
}

// List returns all prompt IDs in the registry.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.prompts))
	for id := range r.prompts {
		ids = append(ids, id)
	}
	return ids
}
