package session

import (
	"time"

	"github.com/mkaddoura/drover/internal/agent"
)

// Session is a persisted conversation, scoped to the workspace it ran in.
type Session struct {
	ID        string          `json:"id"`
	RepoPath  string          `json:"repo_path"`
	RepoHash  string          `json:"repo_hash"` // Used for workspace scoping
	Title     string          `json:"title"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	History   []agent.Message `json:"history"`
	Summary   string          `json:"summary,omitempty"` // Context injection for next session
}

// SessionMeta is a lightweight representation for listing.
type SessionMeta struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Summary   string    `json:"summary,omitempty"`
}
