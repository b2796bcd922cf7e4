package agent

// EventKind identifies the type of event delivered to subscribers.
type EventKind string

const (
	EventStart         EventKind = "start"
	EventTextDelta     EventKind = "text_delta"
	EventToolCallStart EventKind = "tool_call_start"
	EventToolCallDelta EventKind = "tool_call_delta"
	EventToolCallEnd   EventKind = "tool_call_end"
	EventError         EventKind = "error"
	EventAborted       EventKind = "aborted"
	EventDone          EventKind = "done"
)

// Event is one element of the ordered stream observers receive. Fields are
// populated per kind; unrelated fields are zero.
type Event struct {
	Kind EventKind

	Text string // text_delta

	ToolCallID string      // tool_call_start, tool_call_delta, tool_call_end
	ToolName   string      // tool_call_start, tool_call_end
	Partial    string      // tool_call_delta: argument fragment or tool progress
	Result     *ToolResult // tool_call_end

	Err   error  // error
	Usage *Usage // done: accumulated turn usage
}
