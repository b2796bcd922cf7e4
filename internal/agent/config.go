package agent

import (
	"log/slog"
	"time"
)

// Config holds the runtime knobs for one Agent.
type Config struct {
	Model        string
	SystemPrompt string

	// MaxRounds caps backend rounds per turn as a runaway guard. 0 means
	// unlimited.
	MaxRounds int

	// ToolTimeout bounds each tool call. 0 disables the deadline; the loop
	// then waits indefinitely for the tool to honor cancellation.
	ToolTimeout time.Duration

	Retry   RetryPolicy
	Options StreamOptions

	Logger *slog.Logger
}

// DefaultConfig returns the default runtime configuration.
func DefaultConfig() Config {
	return Config{
		MaxRounds: 0,
		Retry:     DefaultRetryPolicy(),
		Options: StreamOptions{
			MaxOutputTokens: 8192,
		},
	}
}
