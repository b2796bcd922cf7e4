// Package editing provides the search_replace tool, the primary file editing
// capability exposed to the model.
package editing

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mkaddoura/drover/internal/agent"
)

// NewSearchReplaceTool returns the search_replace tool. Edits are exact
// string replacements; a non-unique old_string is refused unless replace_all
// is set so the model cannot silently edit the wrong occurrence.
func NewSearchReplaceTool(root string) agent.Tool {
	return agent.Tool{
		Name:        "search_replace",
		Label:       "Search Replace",
		Description: "Performs exact string search and replace in a file. This is the primary editing tool. Always read the file first so old_string matches the exact current content.",
		SchemaJSON: `{"type":"object","properties":{
			"file_path":{"type":"string","description":"File path relative to the workspace root"},
			"old_string":{"type":"string","description":"Exact string to find"},
			"new_string":{"type":"string","description":"Replacement string"},
			"replace_all":{"type":"boolean","description":"Replace every occurrence","default":false}
		},"required":["file_path","old_string","new_string"]}`,
		Execute: func(ctx context.Context, call agent.ToolCall, progress func(string)) (agent.ToolResult, error) {
			filePath, ok := call.Args["file_path"].(string)
			if !ok {
				return agent.ToolResult{}, fmt.Errorf("file_path must be a string")
			}
			oldString, ok := call.Args["old_string"].(string)
			if !ok {
				return agent.ToolResult{}, fmt.Errorf("old_string must be a string")
			}
			newString, ok := call.Args["new_string"].(string)
			if !ok {
				return agent.ToolResult{}, fmt.Errorf("new_string must be a string")
			}
			replaceAll, _ := call.Args["replace_all"].(bool)

			return searchReplace(root, filePath, oldString, newString, replaceAll)
		},
	}
}

func searchReplace(root, filePath, oldString, newString string, replaceAll bool) (agent.ToolResult, error) {
	full := filepath.Clean(filepath.Join(root, filePath))
	if !strings.HasPrefix(full, filepath.Clean(root)) {
		return agent.ToolResult{}, fmt.Errorf("path %s is outside the workspace root", filePath)
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return failure(filePath, fmt.Sprintf("failed to read file: %v", err)), nil
	}
	content := string(data)

	if marker, generated := generatedMarker(content); generated {
		return failure(filePath, fmt.Sprintf("file appears to be generated (found %q), edit the generator instead", marker)), nil
	}
	if oldString == newString {
		return failure(filePath, "old_string and new_string are identical, nothing to change"), nil
	}

	count := strings.Count(content, oldString)
	if count == 0 {
		hint := ""
		normContent := strings.Join(strings.Fields(content), " ")
		normOld := strings.Join(strings.Fields(oldString), " ")
		if strings.Contains(normContent, normOld) {
			hint = " The text exists with different whitespace or indentation; read the file again and copy it exactly."
		}
		return failure(filePath, "old_string not found in file."+hint), nil
	}
	if count > 1 && !replaceAll {
		return failure(filePath, fmt.Sprintf(
			"old_string appears %d times. Add more surrounding context to make it unique, or set replace_all=true.", count)), nil
	}

	var updated string
	replacements := 1
	if replaceAll {
		updated = strings.ReplaceAll(content, oldString, newString)
		replacements = count
	} else {
		updated = strings.Replace(content, oldString, newString, 1)
	}

	if err := os.WriteFile(full, []byte(updated), 0o644); err != nil {
		return failure(filePath, fmt.Sprintf("failed to write file: %v", err)), nil
	}

	out, err := json.Marshal(map[string]any{
		"path":         filePath,
		"status":       "success",
		"replacements": replacements,
	})
	if err != nil {
		return agent.ToolResult{}, err
	}
	return agent.TextResult(string(out)), nil
}

func failure(path, reason string) agent.ToolResult {
	out, _ := json.Marshal(map[string]any{
		"path":   path,
		"status": "failed",
		"error":  reason,
	})
	res := agent.ErrorResult(string(out))
	return res
}

func generatedMarker(content string) (string, bool) {
	preview := content
	if len(preview) > 500 {
		preview = preview[:500]
	}
	for _, marker := range []string{"Code generated", "DO NOT EDIT", "Auto-generated", "automatically generated"} {
		if strings.Contains(preview, marker) {
			return marker, true
		}
	}
	return "", false
}
