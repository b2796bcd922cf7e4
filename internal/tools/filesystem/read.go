package filesystem

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mkaddoura/drover/internal/agent"
)

const maxReadLines = 2000

// NewReadFileTool returns the read_file tool. Large files are windowed with
// offset/limit so a single read cannot flood the conversation.
func NewReadFileTool(fs FileSystem, root string) agent.Tool {
	return agent.Tool{
		Name:        "read_file",
		Label:       "Read File",
		Description: "Reads a file from the workspace. Provide the path relative to the workspace root. Use offset and limit to window large files.",
		SchemaJSON: `{"type":"object","properties":{
			"path":{"type":"string","description":"Path relative to the workspace root"},
			"offset":{"type":"integer","description":"1-based line to start reading from","default":1},
			"limit":{"type":"integer","description":"Maximum number of lines to return","default":2000}
		},"required":["path"]}`,
		Execute: func(ctx context.Context, call agent.ToolCall, progress func(string)) (agent.ToolResult, error) {
			path, ok := call.Args["path"].(string)
			if !ok {
				return agent.ToolResult{}, fmt.Errorf("path must be a string")
			}
			offset := intArg(call.Args, "offset", 1)
			limit := intArg(call.Args, "limit", maxReadLines)
			if offset < 1 {
				offset = 1
			}
			if limit < 1 || limit > maxReadLines {
				limit = maxReadLines
			}

			full, err := resolve(root, path)
			if err != nil {
				return agent.ToolResult{}, err
			}
			data, err := fs.ReadFile(full)
			if err != nil {
				return agent.ToolResult{}, err
			}

			lines := strings.Split(string(data), "\n")
			total := len(lines)
			if offset > total {
				return agent.ToolResult{}, fmt.Errorf("offset %d is past the end of %s (%d lines)", offset, path, total)
			}
			end := offset - 1 + limit
			if end > total {
				end = total
			}
			window := lines[offset-1 : end]

			payload := map[string]any{
				"path":       path,
				"content":    strings.Join(window, "\n"),
				"line_count": total,
				"offset":     offset,
				"truncated":  end < total,
			}
			out, err := json.Marshal(payload)
			if err != nil {
				return agent.ToolResult{}, err
			}
			return agent.TextResult(string(out)), nil
		},
	}
}

func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return fallback
	}
}
