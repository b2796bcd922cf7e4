package filesystem

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/mkaddoura/drover/internal/agent"
	gitignore "github.com/sabhiram/go-gitignore"
)

// NewListFilesTool returns the list_files tool. Ignore patterns use
// gitignore syntax; .git is always excluded.
func NewListFilesTool(fileSys FileSystem, root string) agent.Tool {
	return agent.Tool{
		Name:        "list_files",
		Label:       "List Files",
		Description: "Lists files in the workspace. Use this to discover which files exist before reading them. Supports recursive listing and gitignore-style ignore patterns.",
		SchemaJSON: `{"type":"object","properties":{
			"path":{"type":"string","description":"Subdirectory relative to the workspace root (empty for the root)","default":""},
			"recursive":{"type":"boolean","description":"List files recursively","default":false},
			"max_depth":{"type":"integer","description":"Maximum depth for recursive listing, -1 for unlimited","default":-1},
			"limit":{"type":"integer","description":"Maximum number of entries to return","default":1000},
			"ignore_patterns":{"type":"array","items":{"type":"string"},"description":"gitignore-style patterns to exclude"}
		},"required":[]}`,
		Execute: func(ctx context.Context, call agent.ToolCall, progress func(string)) (agent.ToolResult, error) {
			path, _ := call.Args["path"].(string)
			recursive, _ := call.Args["recursive"].(bool)
			maxDepth := intArg(call.Args, "max_depth", -1)
			limit := intArg(call.Args, "limit", 1000)

			patterns := []string{"node_modules"}
			if raw, ok := call.Args["ignore_patterns"].([]any); ok && len(raw) > 0 {
				patterns = patterns[:0]
				for _, p := range raw {
					if s, ok := p.(string); ok {
						patterns = append(patterns, s)
					}
				}
			}

			files, truncated, err := listFiles(fileSys, root, path, recursive, maxDepth, limit, patterns)
			if err != nil {
				return agent.ToolResult{}, err
			}

			out, err := json.Marshal(map[string]any{
				"path":      path,
				"files":     files,
				"count":     len(files),
				"truncated": truncated,
			})
			if err != nil {
				return agent.ToolResult{}, err
			}
			return agent.TextResult(string(out)), nil
		},
	}
}

func listFiles(fileSys FileSystem, root, path string, recursive bool, maxDepth, limit int, patterns []string) ([]string, bool, error) {
	dir, err := resolve(root, path)
	if err != nil {
		return nil, false, err
	}

	var matcher *gitignore.GitIgnore
	if len(patterns) > 0 {
		matcher = gitignore.CompileIgnoreLines(patterns...)
	}
	ignored := func(rel string) bool {
		if rel == ".git" || strings.HasPrefix(rel, ".git"+string(filepath.Separator)) {
			return true
		}
		return matcher != nil && matcher.MatchesPath(rel)
	}

	files := make([]string, 0)
	truncated := false

	if !recursive {
		entries, err := fileSys.ReadDir(dir)
		if err != nil {
			return nil, false, err
		}
		for _, entry := range entries {
			rel := entry.Name()
			if path != "" {
				rel = filepath.Join(path, entry.Name())
			}
			if ignored(rel) {
				continue
			}
			files = append(files, rel)
			if len(files) >= limit {
				truncated = true
				break
			}
		}
		return files, truncated, nil
	}

	err = fileSys.WalkDir(dir, func(walkPath string, d fs.DirEntry, err error) error {
		if err != nil || walkPath == dir {
			return nil
		}
		rel, err := filepath.Rel(root, walkPath)
		if err != nil {
			return nil
		}
		if ignored(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if maxDepth >= 0 {
			relFromStart, err := filepath.Rel(dir, walkPath)
			if err == nil && strings.Count(relFromStart, string(filepath.Separator)) > maxDepth {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
		}
		files = append(files, rel)
		if len(files) >= limit {
			truncated = true
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("walk %s: %w", path, err)
	}
	return files, truncated, nil
}
