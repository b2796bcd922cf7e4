// Package reasoning provides the think tool, a scratchpad that lets the
// model record its reasoning as visible progress without side effects.
package reasoning

import (
	"context"
	"fmt"

	"github.com/mkaddoura/drover/internal/agent"
)

// NewThinkTool returns the think tool.
func NewThinkTool() agent.Tool {
	return agent.Tool{
		Name:        "think",
		Label:       "Think",
		Description: "Records your reasoning or plan before acting. Use it to note the task, likely files and approach for non-trivial work. Has no effect on the workspace.",
		SchemaJSON: `{"type":"object","properties":{
			"thought":{"type":"string","description":"The reasoning or plan to record"}
		},"required":["thought"]}`,
		Execute: func(ctx context.Context, call agent.ToolCall, progress func(string)) (agent.ToolResult, error) {
			thought, ok := call.Args["thought"].(string)
			if !ok {
				return agent.ToolResult{}, fmt.Errorf("thought must be a string")
			}
			progress(thought)
			return agent.TextResult(`{"status":"noted"}`), nil
		},
	}
}
