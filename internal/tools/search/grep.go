// Package search provides the grep tool, a ripgrep-backed regex search over
// the workspace.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mkaddoura/drover/internal/agent"
	"github.com/mkaddoura/drover/internal/tools/execution"
)

const maxGrepResults = 100

// rgMessage is the subset of ripgrep's --json output the tool consumes.
type rgMessage struct {
	Type string `json:"type"`
	Data struct {
		Path struct {
			Text string `json:"text"`
		} `json:"path"`
		Lines struct {
			Text string `json:"text"`
		} `json:"lines"`
		LineNumber int `json:"line_number"`
	} `json:"data"`
}

type grepMatch struct {
	Path    string `json:"path"`
	Line    int    `json:"line"`
	Content string `json:"content"`
}

// NewGrepTool returns the grep tool backed by ripgrep.
func NewGrepTool(runner execution.Runner, root string) agent.Tool {
	return agent.Tool{
		Name:        "grep",
		Label:       "Grep",
		Description: "Fast regex-based code search using ripgrep. Use this to find code patterns, definitions or references. Supports case-insensitive search and comma-separated glob filters.",
		SchemaJSON: `{"type":"object","properties":{
			"pattern":{"type":"string","description":"Regex pattern to search for"},
			"path":{"type":"string","description":"File or directory to search, relative to the workspace root"},
			"globs":{"type":"string","description":"Comma-separated file glob filters, e.g. *.go,*.md"},
			"case_insensitive":{"type":"boolean","description":"Case-insensitive search","default":false}
		},"required":["pattern"]}`,
		Execute: func(ctx context.Context, call agent.ToolCall, progress func(string)) (agent.ToolResult, error) {
			pattern, ok := call.Args["pattern"].(string)
			if !ok {
				return agent.ToolResult{}, fmt.Errorf("pattern must be a string")
			}
			path, _ := call.Args["path"].(string)
			globs, _ := call.Args["globs"].(string)
			caseInsensitive, _ := call.Args["case_insensitive"].(bool)

			return grep(ctx, runner, root, pattern, path, globs, caseInsensitive)
		},
	}
}

func grep(ctx context.Context, runner execution.Runner, root, pattern, path, globs string, caseInsensitive bool) (agent.ToolResult, error) {
	args := []string{"--json"}
	if caseInsensitive {
		args = append(args, "-i")
	}
	for _, g := range strings.Split(globs, ",") {
		if g = strings.TrimSpace(g); g != "" {
			args = append(args, "-g", g)
		}
	}
	args = append(args, "-e", pattern)
	if path != "" {
		args = append(args, path)
	} else {
		args = append(args, ".")
	}

	res, err := runner.RunCmd(ctx, root, "rg", args, 10*time.Second)
	if err != nil {
		return agent.ToolResult{}, fmt.Errorf("grep failed: %w (stderr: %s)", err, res.Stderr)
	}
	// ripgrep exits 1 when nothing matched, 2 on real errors.
	if res.Code > 1 {
		return agent.ToolResult{}, fmt.Errorf("ripgrep error: %s", strings.TrimSpace(res.Stderr))
	}

	matches := make([]grepMatch, 0)
	for _, line := range strings.Split(res.Stdout, "\n") {
		if line == "" {
			continue
		}
		var msg rgMessage
		if err := json.Unmarshal([]byte(line), &msg); err != nil || msg.Type != "match" {
			continue
		}
		matches = append(matches, grepMatch{
			Path:    msg.Data.Path.Text,
			Line:    msg.Data.LineNumber,
			Content: strings.TrimSpace(msg.Data.Lines.Text),
		})
	}

	truncated := false
	if len(matches) > maxGrepResults {
		matches = matches[:maxGrepResults]
		truncated = true
	}

	out, err := json.Marshal(map[string]any{
		"pattern":   pattern,
		"results":   matches,
		"count":     len(matches),
		"truncated": truncated,
	})
	if err != nil {
		return agent.ToolResult{}, err
	}
	return agent.TextResult(string(out)), nil
}
