package filesystem

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/mkaddoura/drover/internal/agent"
)

// NewWriteFileTool returns the write_file tool. Parent directories are
// created as needed; an existing file is overwritten.
func NewWriteFileTool(fs FileSystem, root string) agent.Tool {
	return agent.Tool{
		Name:        "write_file",
		Label:       "Write File",
		Description: "Writes content to a file in the workspace, creating it (and parent directories) if needed and overwriting it otherwise.",
		SchemaJSON: `{"type":"object","properties":{
			"path":{"type":"string","description":"Path relative to the workspace root"},
			"content":{"type":"string","description":"Full file content to write"}
		},"required":["path","content"]}`,
		Execute: func(ctx context.Context, call agent.ToolCall, progress func(string)) (agent.ToolResult, error) {
			path, ok := call.Args["path"].(string)
			if !ok {
				return agent.ToolResult{}, fmt.Errorf("path must be a string")
			}
			content, ok := call.Args["content"].(string)
			if !ok {
				return agent.ToolResult{}, fmt.Errorf("content must be a string")
			}

			full, err := resolve(root, path)
			if err != nil {
				return agent.ToolResult{}, err
			}
			if err := fs.MkdirAll(filepath.Dir(full), 0o755); err != nil {
				return agent.ToolResult{}, fmt.Errorf("create directory: %w", err)
			}
			if err := fs.WriteFile(full, []byte(content), 0o644); err != nil {
				return agent.ToolResult{}, fmt.Errorf("write file: %w", err)
			}

			out, err := json.Marshal(map[string]any{
				"path":    path,
				"bytes":   len(content),
				"success": true,
			})
			if err != nil {
				return agent.ToolResult{}, err
			}
			return agent.TextResult(string(out)), nil
		},
	}
}
