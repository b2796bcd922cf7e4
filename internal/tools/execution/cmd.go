package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mkaddoura/drover/internal/agent"
)

const (
	defaultCmdTimeout  = 60 * time.Second
	maxCmdTimeout      = 5 * time.Minute
	minCmdTimeout      = 5 * time.Second
	defaultOutputLines = 40
	minOutputLines     = 5
	maxOutputLines     = 200
	maxOutputChars     = 4000
)

var allowedCommands = []string{
	// Build tools
	"go", "gofmt", "goimports",
	"npm", "npx", "yarn", "pnpm", "bun",
	"python", "python3", "pip", "pip3", "pytest", "uv",
	"cargo", "rustc", "rustfmt",
	"make", "cmake",

	// Linters and formatters
	"eslint", "prettier", "ruff", "black", "mypy",
	"tsc", "node", "golangci-lint", "shellcheck",

	// File operations
	"mkdir", "touch", "rm", "cp", "mv",
	"cat", "head", "tail",
	"ls", "find", "tree",
	"wc", "grep", "rg", "awk", "sed", "sort", "uniq", "diff",

	// Version control
	"git",

	// Network
	"curl", "wget",

	// Shell and utilities
	"sh", "bash",
	"echo", "printf", "date", "which", "env",
	"tar", "zip", "unzip", "gzip", "gunzip",
	"jq", "yq",
}

// commandResult is the JSON payload returned to the model.
type commandResult struct {
	Cmd             string `json:"cmd"`
	ExitCode        int    `json:"exit_code"`
	Stdout          string `json:"stdout"`
	Stderr          string `json:"stderr"`
	StdoutTruncated bool   `json:"stdout_truncated,omitempty"`
	StderrTruncated bool   `json:"stderr_truncated,omitempty"`
	TimedOut        bool   `json:"timed_out,omitempty"`
	Status          string `json:"status"`
}

// NewRunCmdTool returns the run_cmd tool. Only allowlisted commands run;
// output is truncated to keep tool results bounded.
func NewRunCmdTool(runner Runner, root string) agent.Tool {
	return agent.Tool{
		Name:        "run_cmd",
		Label:       "Run Command",
		Description: "Runs a command in the workspace with strict allowlist enforcement. Allowed: build tools (go, npm, python, cargo, make), linters, file operations (ls, cat, grep, find, mkdir, rm, cp), git, curl/wget, shells (sh, bash) and common utilities.",
		SchemaJSON: `{"type":"object","properties":{
			"cmd":{"type":"string","description":"Command name, must be in the allowlist"},
			"args":{"type":"string","description":"Arguments as a space-separated string"},
			"timeout_seconds":{"type":"integer","minimum":5,"maximum":300,"description":"Maximum seconds to let the command run","default":60},
			"max_output_lines":{"type":"integer","minimum":5,"maximum":200,"description":"Maximum stdout/stderr lines to return","default":40}
		},"required":["cmd"]}`,
		Execute: func(ctx context.Context, call agent.ToolCall, progress func(string)) (agent.ToolResult, error) {
			name, ok := call.Args["cmd"].(string)
			if !ok {
				return agent.ToolResult{}, fmt.Errorf("cmd must be a string")
			}
			argsStr, _ := call.Args["args"].(string)
			timeout := clampTimeout(call.Args["timeout_seconds"])
			maxLines := clampLines(call.Args["max_output_lines"])

			if !allowed(name) {
				return marshalResult(commandResult{
					Cmd:      name,
					ExitCode: 1,
					Stderr:   fmt.Sprintf("command %q is not in the allowlist", name),
					Status:   "failed",
				})
			}

			args := splitArgs(argsStr)
			display := name
			if argsStr != "" {
				display += " " + argsStr
			}
			progress("$ " + display)

			res, err := runner.RunCmd(ctx, root, name, args, timeout)
			if err != nil && !res.TimedOut {
				return agent.ToolResult{}, fmt.Errorf("run %s: %w", name, err)
			}

			stdout, stdoutTrunc := truncateOutput(res.Stdout, maxLines)
			stderr, stderrTrunc := truncateOutput(res.Stderr, maxLines)

			out := commandResult{
				Cmd:             display,
				ExitCode:        res.Code,
				Stdout:          stdout,
				Stderr:          stderr,
				StdoutTruncated: stdoutTrunc,
				StderrTruncated: stderrTrunc,
				TimedOut:        res.TimedOut,
				Status:          "ok",
			}
			if res.TimedOut || res.Code != 0 {
				out.Status = "failed"
			}
			return marshalResult(out)
		},
	}
}

func marshalResult(res commandResult) (agent.ToolResult, error) {
	out, err := json.Marshal(res)
	if err != nil {
		return agent.ToolResult{}, err
	}
	tr := agent.TextResult(string(out))
	tr.IsError = res.Status == "failed"
	return tr, nil
}

func allowed(name string) bool {
	for _, a := range allowedCommands {
		if name == a {
			return true
		}
	}
	return false
}

func clampTimeout(value any) time.Duration {
	seconds := 0.0
	switch v := value.(type) {
	case float64:
		seconds = v
	case int:
		seconds = float64(v)
	}
	if seconds <= 0 {
		return defaultCmdTimeout
	}
	d := time.Duration(seconds) * time.Second
	if d < minCmdTimeout {
		return minCmdTimeout
	}
	if d > maxCmdTimeout {
		return maxCmdTimeout
	}
	return d
}

func clampLines(value any) int {
	lines := 0
	switch v := value.(type) {
	case float64:
		lines = int(v)
	case int:
		lines = v
	}
	if lines <= 0 {
		return defaultOutputLines
	}
	if lines < minOutputLines {
		return minOutputLines
	}
	if lines > maxOutputLines {
		return maxOutputLines
	}
	return lines
}

// splitArgs splits a space-separated argument string, honoring single and
// double quotes.
func splitArgs(s string) []string {
	var args []string
	var current strings.Builder
	inQuotes := false
	quote := byte(0)

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' || c == '\'':
			if !inQuotes {
				inQuotes = true
				quote = c
			} else if c == quote {
				inQuotes = false
				quote = 0
			} else {
				current.WriteByte(c)
			}
		case c == ' ' && !inQuotes:
			if current.Len() > 0 {
				args = append(args, current.String())
				current.Reset()
			}
		default:
			current.WriteByte(c)
		}
	}
	if current.Len() > 0 {
		args = append(args, current.String())
	}
	return args
}

func truncateOutput(output string, maxLines int) (string, bool) {
	if output == "" {
		return "", false
	}
	truncated := false
	lines := strings.Split(output, "\n")
	if len(lines) > maxLines {
		lines = lines[:maxLines]
		truncated = true
	}
	joined := strings.Join(lines, "\n")
	if len(joined) > maxOutputChars {
		joined = joined[:maxOutputChars]
		truncated = true
	}
	return joined, truncated
}
