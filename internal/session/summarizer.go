package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/mkaddoura/drover/internal/agent"
)

// Summarizer derives titles and resume summaries from conversation history
// using the same backend the agent talks to.
type Summarizer struct {
	backend agent.Backend
	model   string
}

// NewSummarizer creates a new session summarizer.
func NewSummarizer(backend agent.Backend, model string) *Summarizer {
	return &Summarizer{
		backend: backend,
		model:   model,
	}
}

// GenerateTitle generates a short 3-5 word title for the session.
func (s *Summarizer) GenerateTitle(ctx context.Context, history []agent.Message) (string, error) {
	if len(history) == 0 {
		return "New Session", nil
	}

	system := "You are a helpful assistant. Generate a short, concise title (3-5 words) for this session based on the user's intent and work done. Do not use quotes or punctuation."

	// The first few messages are enough to determine intent.
	limit := 10
	if len(history) < limit {
		limit = len(history)
	}
	prompt := fmt.Sprintf("History:\n%s\n\nGenerate Title:", renderHistory(history[:limit]))

	title, err := s.complete(ctx, system, prompt, agent.StreamOptions{
		MaxOutputTokens: 20,
		Temperature:     0.3,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate title: %w", err)
	}
	return title, nil
}

// GenerateSummary generates a context summary for the next session.
func (s *Summarizer) GenerateSummary(ctx context.Context, history []agent.Message) (string, error) {
	if len(history) == 0 {
		return "", nil
	}

	system := "You represent the memory of an AI coding assistant. Summarize the following session history to preserve context for a future session. Focus on: decisions made, files modified, unresolved errors, and next steps. Be concise."
	prompt := fmt.Sprintf("Summarize this session:\n\n%s", renderHistory(history))

	summary, err := s.complete(ctx, system, prompt, agent.StreamOptions{
		MaxOutputTokens: 500,
		Temperature:     0.1,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate summary: %w", err)
	}
	return summary, nil
}

// complete runs a single non-tool generation and collects the streamed text.
func (s *Summarizer) complete(ctx context.Context, system, prompt string, opts agent.StreamOptions) (string, error) {
	events, err := s.backend.Stream(ctx, s.model, agent.Request{
		System:   system,
		Messages: []agent.Message{agent.UserMessage(prompt)},
		Options:  opts,
	})
	if err != nil {
		return "", err
	}

	var text strings.Builder
	for ev := range events {
		switch ev.Type {
		case agent.GenTextDelta:
			text.WriteString(ev.Text)
		case agent.GenError:
			return "", ev.Err
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return strings.TrimSpace(text.String()), nil
}

// renderHistory flattens conversation messages into a plain-text transcript
// suitable for a summarization prompt.
func renderHistory(history []agent.Message) string {
	var b strings.Builder
	for _, msg := range history {
		switch msg.Role {
		case agent.RoleUser:
			fmt.Fprintf(&b, "User: %s\n", msg.Text())
		case agent.RoleAssistant:
			if text := msg.Text(); text != "" {
				fmt.Fprintf(&b, "Assistant: %s\n", text)
			}
			for _, call := range msg.ToolCalls() {
				fmt.Fprintf(&b, "Assistant called tool %s\n", call.Name)
			}
		case agent.RoleToolResult:
			text := msg.Text()
			if len(text) > 200 {
				text = text[:200] + "..."
			}
			status := "ok"
			if msg.IsError {
				status = "error"
			}
			fmt.Fprintf(&b, "Tool %s (%s): %s\n", msg.ToolName, status, text)
		}
	}
	return b.String()
}
