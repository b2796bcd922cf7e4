package execution

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mkaddoura/drover/internal/agent"
	"github.com/mkaddoura/drover/internal/workspace"
)

const buildTimeout = 3 * time.Minute

// NewRunBuildTool returns the run_build tool, which detects the project type
// and runs its canonical build command.
func NewRunBuildTool(runner Runner, root string) agent.Tool {
	return agent.Tool{
		Name:        "run_build",
		Label:       "Build",
		Description: "Builds the project. Detects the project type (Go, Node, Rust) and runs its build command. Use run_cmd for custom build invocations.",
		SchemaJSON: `{"type":"object","properties":{
			"max_output_lines":{"type":"integer","minimum":5,"maximum":200,"description":"Maximum stdout/stderr lines to return","default":40}
		}}`,
		Execute: func(ctx context.Context, call agent.ToolCall, progress func(string)) (agent.ToolResult, error) {
			maxLines := clampLines(call.Args["max_output_lines"])

			typ := workspace.DetectProjectType(root)
			name, args := workspace.BuildCommand(typ)
			if name == "" {
				if typ == workspace.ProjectTypePython {
					return marshalResult(commandResult{
						Stdout: "Python projects typically have no build step",
						Status: "ok",
					})
				}
				return marshalResult(commandResult{
					ExitCode: 1,
					Stderr:   fmt.Sprintf("no build command for project type %q", typ),
					Status:   "failed",
				})
			}

			return runProjectCommand(ctx, runner, root, name, args, maxLines, progress)
		},
	}
}

// NewRunTestsTool returns the run_tests tool, the test counterpart of
// run_build.
func NewRunTestsTool(runner Runner, root string) agent.Tool {
	return agent.Tool{
		Name:        "run_tests",
		Label:       "Test",
		Description: "Runs the project's test suite. Detects the project type (Go, Node, Python, Rust) and runs its test command. Use run_cmd to run a subset of tests.",
		SchemaJSON: `{"type":"object","properties":{
			"max_output_lines":{"type":"integer","minimum":5,"maximum":200,"description":"Maximum stdout/stderr lines to return","default":40}
		}}`,
		Execute: func(ctx context.Context, call agent.ToolCall, progress func(string)) (agent.ToolResult, error) {
			maxLines := clampLines(call.Args["max_output_lines"])

			typ := workspace.DetectProjectType(root)
			name, args := workspace.TestCommand(typ)
			if name == "" {
				return marshalResult(commandResult{
					ExitCode: 1,
					Stderr:   fmt.Sprintf("no test command for project type %q", typ),
					Status:   "failed",
				})
			}

			return runProjectCommand(ctx, runner, root, name, args, maxLines, progress)
		},
	}
}

func runProjectCommand(ctx context.Context, runner Runner, root, name string, args []string, maxLines int, progress func(string)) (agent.ToolResult, error) {
	display := name
	if len(args) > 0 {
		display += " " + strings.Join(args, " ")
	}
	progress("$ " + display)

	res, err := runner.RunCmd(ctx, root, name, args, buildTimeout)
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
}
