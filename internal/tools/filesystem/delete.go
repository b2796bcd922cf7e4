package filesystem

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mkaddoura/drover/internal/agent"
)

// NewDeleteFileTool returns the delete_file tool. Directories are refused;
// deleting a file that is already gone succeeds.
func NewDeleteFileTool(fs FileSystem, root string) agent.Tool {
	return agent.Tool{
		Name:        "delete_file",
		Label:       "Delete File",
		Description: "Deletes a single file from the workspace. Cannot delete directories.",
		SchemaJSON: `{"type":"object","properties":{
			"path":{"type":"string","description":"Path relative to the workspace root"}
		},"required":["path"]}`,
		Execute: func(ctx context.Context, call agent.ToolCall, progress func(string)) (agent.ToolResult, error) {
			path, ok := call.Args["path"].(string)
			if !ok || path == "" {
				return agent.ToolResult{}, fmt.Errorf("path must be a non-empty string")
			}
			full, err := resolve(root, path)
			if err != nil {
				return agent.ToolResult{}, err
			}

			info, err := fs.Stat(full)
			if err != nil {
				if os.IsNotExist(err) {
					out, _ := json.Marshal(map[string]any{
						"path":    path,
						"success": true,
						"message": "file does not exist",
					})
					return agent.TextResult(string(out)), nil
				}
				return agent.ToolResult{}, err
			}
			if info.IsDir() {
				return agent.ToolResult{}, fmt.Errorf("%s is a directory, delete_file only removes files", path)
			}
			if err := fs.Remove(full); err != nil {
				return agent.ToolResult{}, fmt.Errorf("delete file: %w", err)
			}

			out, err := json.Marshal(map[string]any{"path": path, "success": true})
			if err != nil {
				return agent.ToolResult{}, err
			}
			return agent.TextResult(string(out)), nil
		},
	}
}
