package agent

import "sort"

// Phase is the turn state machine's current state.
type Phase string

const (
	PhaseIdle          Phase = "idle"
	PhaseStreaming     Phase = "streaming"
	PhaseAwaitingTools Phase = "awaiting_tools"
	PhaseAborted       Phase = "aborted"
	PhaseErrored       Phase = "errored"
)

// active reports whether a turn is in flight.
func (p Phase) active() bool {
	return p == PhaseStreaming || p == PhaseAwaitingTools
}

// State is the single source of truth for one conversation. It is owned
// exclusively by the turn-owner goroutine; external readers get copies via
// Snapshot.
type State struct {
	SystemPrompt string
	Model        string
	Streaming    bool
	Messages     []Message

	// InProgress is the assistant message currently being streamed, nil
	// outside of a backend round.
	InProgress *Message

	// PendingCalls tracks tool-call ids dispatched in the current round that
	// have not yet produced a tool-result.
	PendingCalls map[string]struct{}

	Totals Usage
}

// NewState creates a conversation state.
func NewState(systemPrompt, model string) *State {
	return &State{
		SystemPrompt: systemPrompt,
		Model:        model,
		PendingCalls: make(map[string]struct{}),
	}
}

// Append adds a message to the conversation history.
func (s *State) Append(m Message) { s.Messages = append(s.Messages, m) }

// Snapshot is an immutable copy of the conversation state at one instant.
// Two snapshots taken with no intervening mutation compare equal.
type Snapshot struct {
	SystemPrompt string
	Model        string
	Phase        Phase
	Messages     []Message
	PendingCalls []string
	Totals       Usage
}

func (s *State) snapshot(phase Phase) Snapshot {
	snap := Snapshot{
		SystemPrompt: s.SystemPrompt,
		Model:        s.Model,
		Phase:        phase,
		Totals:       s.Totals,
	}
	snap.Messages = make([]Message, 0, len(s.Messages))
	for _, m := range s.Messages {
		snap.Messages = append(snap.Messages, copyMessage(m))
	}
	if len(s.PendingCalls) > 0 {
		snap.PendingCalls = make([]string, 0, len(s.PendingCalls))
		for id := range s.PendingCalls {
			snap.PendingCalls = append(snap.PendingCalls, id)
		}
		sort.Strings(snap.PendingCalls)
	}
	return snap
}

func copyMessage(m Message) Message {
	out := m
	out.Blocks = make([]ContentBlock, len(m.Blocks))
	for i, blk := range m.Blocks {
		out.Blocks[i] = copyBlock(blk)
	}
	if m.Details != nil {
		out.Details = copyMap(m.Details)
	}
	if m.Usage != nil {
		u := *m.Usage
		out.Usage = &u
	}
	return out
}

func copyBlock(b ContentBlock) ContentBlock {
	out := b
	if b.Call != nil {
		call := *b.Call
		if call.Args != nil {
			call.Args = copyMap(call.Args)
		}
		out.Call = &call
	}
	return out
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
