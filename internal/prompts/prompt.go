// Package prompts holds the versioned system prompts the agent runs with.
package prompts

// Version identifies a prompt revision.
type Version string

const (
	// V1 is the first prompt revision.
	V1 Version = "1.0.0"
)

// Prompt is a versioned prompt with metadata.
type Prompt struct {
	ID          string   // Unique identifier, e.g. "interactive"
	Version     Version  // Revision of this prompt
	Content     string   // The actual prompt text
	Description string   // Human-readable description
	Tags        []string // Categorization tags
	Deprecated  bool     // True if this revision should no longer be used
}
