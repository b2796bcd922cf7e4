package agent

import (
	"context"
	"fmt"
	"strings"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleToolResult Role = "tool_result"
)

// BlockType discriminates the content block variants.
type BlockType string

const (
	BlockText     BlockType = "text"
	BlockToolCall BlockType = "tool_call"
)

// ContentBlock is one ordered piece of message content: either text or a
// tool-call request emitted by the model.
type ContentBlock struct {
	Type BlockType `json:"type"`
	Text string    `json:"text,omitempty"`
	Call *ToolCall `json:"call,omitempty"`
}

// ToolCall is a tool invocation requested by the assistant. ID correlates the
// request with its eventual tool-result message.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
	Raw  string         `json:"raw,omitempty"` // raw argument payload as received, possibly malformed
}

// Usage holds token accounting reported by the backend. The runtime carries
// it opaquely; it never computes costs from it.
type Usage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

// Message is the tagged union over user, assistant and tool-result messages.
// Assistant messages carry ordered content blocks; tool-result messages carry
// the outcome of exactly one tool call.
type Message struct {
	Role   Role           `json:"role"`
	Blocks []ContentBlock `json:"blocks"`

	// Tool-result fields, set only when Role == RoleToolResult.
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolName   string         `json:"tool_name,omitempty"`
	IsError    bool           `json:"is_error,omitempty"`
	Details    map[string]any `json:"details,omitempty"`

	// Assistant accounting, set only when Role == RoleAssistant.
	Usage *Usage `json:"usage,omitempty"`
}

// UserMessage builds a plain-text user message.
func UserMessage(text string) Message {
	return Message{
		Role:   RoleUser,
		Blocks: []ContentBlock{{Type: BlockText, Text: text}},
	}
}

// Text concatenates the message's text blocks.
func (m Message) Text() string {
	var b strings.Builder
	for _, blk := range m.Blocks {
		if blk.Type == BlockText {
			b.WriteString(blk.Text)
		}
	}
	return b.String()
}

// ToolCalls returns the tool-call requests contained in the message, in block
// order.
func (m Message) ToolCalls() []ToolCall {
	var calls []ToolCall
	for _, blk := range m.Blocks {
		if blk.Type == BlockToolCall && blk.Call != nil {
			calls = append(calls, *blk.Call)
		}
	}
	return calls
}

// Validate checks basic message well-formedness.
func (m Message) Validate() error {
	switch m.Role {
	case RoleUser, RoleAssistant, RoleToolResult:
	default:
		return fmt.Errorf("invalid message role: %s", m.Role)
	}
	if m.Role == RoleToolResult && m.ToolCallID == "" {
		return fmt.Errorf("tool-result messages must carry a tool call id")
	}
	return nil
}

// ToolResult is what a tool execution produces: content blocks plus an
// optional structured details map.
type ToolResult struct {
	Content []ContentBlock
	Details map[string]any
	IsError bool
}

// TextResult builds a plain-text tool result.
func TextResult(text string) ToolResult {
	return ToolResult{Content: []ContentBlock{{Type: BlockText, Text: text}}}
}

// ErrorResult builds an error tool result with the given explanation.
func ErrorResult(text string) ToolResult {
	return ToolResult{
		Content: []ContentBlock{{Type: BlockText, Text: text}},
		IsError: true,
	}
}

// Text concatenates the result's text blocks.
func (r ToolResult) Text() string {
	var b strings.Builder
	for _, blk := range r.Content {
		if blk.Type == BlockText {
			b.WriteString(blk.Text)
		}
	}
	return b.String()
}

// ToolSchema is the declaration of a tool as presented to the backend.
type ToolSchema struct {
	Name        string
	Label       string
	Description string
	SchemaJSON  string // JSON Schema for the tool's arguments
}

// GenerationEventType discriminates backend stream events.
type GenerationEventType string

const (
	GenStart         GenerationEventType = "start"
	GenTextDelta     GenerationEventType = "text_delta"
	GenToolCallStart GenerationEventType = "tool_call_start"
	GenToolCallDelta GenerationEventType = "tool_call_delta"
	GenToolCallEnd   GenerationEventType = "tool_call_end"
	GenDone          GenerationEventType = "done"
	GenError         GenerationEventType = "error"
)

// GenerationEvent is one element of the backend's lazy event sequence.
type GenerationEvent struct {
	Type GenerationEventType

	Text string // text_delta

	ToolCallID  string         // tool_call_start, tool_call_delta, tool_call_end
	ToolName    string         // tool_call_start
	PartialArgs string         // tool_call_delta: raw argument fragment
	Args        map[string]any // tool_call_end: parsed arguments
	RawArgs     string         // tool_call_end: raw argument payload

	Usage Usage // done
	Err   error // error
}

// StreamOptions carries the generation knobs forwarded to the backend.
type StreamOptions struct {
	Temperature     float32
	MaxOutputTokens int
}

// Request is the full conversation context handed to the backend for one
// round.
type Request struct {
	System   string
	Messages []Message
	Tools    []ToolSchema
	Options  StreamOptions
}

// Backend turns a conversation context into a lazy sequence of generation
// events. Each call must return a fresh sequence (the retry policy restarts
// failed calls) and must stop promptly when ctx is cancelled. The returned
// channel is closed after a terminal done or error event.
type Backend interface {
	Stream(ctx context.Context, model string, req Request) (<-chan GenerationEvent, error)
}
