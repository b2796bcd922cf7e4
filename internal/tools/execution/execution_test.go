package execution

import (
	"context"
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/mkaddoura/drover/internal/agent"
)

// fakeRunner records the invocation and replays a canned result.
type fakeRunner struct {
	result Result
	err    error

	dir     string
	name    string
	args    []string
	timeout time.Duration
}

func (f *fakeRunner) RunCmd(ctx context.Context, dir, name string, args []string, timeout time.Duration) (Result, error) {
	f.dir, f.name, f.args, f.timeout = dir, name, args, timeout
	return f.result, f.err
}

func runCmd(t *testing.T, runner Runner, args map[string]any) commandResult {
	t.Helper()
	tool := NewRunCmdTool(runner, "/workspace")
	res, err := tool.Execute(context.Background(), agent.ToolCall{Name: tool.Name, Args: args}, func(string) {})
	if err != nil {
		t.Fatalf("run_cmd failed: %v", err)
	}
	var out commandResult
	if err := json.Unmarshal([]byte(res.Text()), &out); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	return out
}

func TestRunCmdSuccess(t *testing.T) {
	runner := &fakeRunner{result: Result{Code: 0, Stdout: "ok\n"}}
	out := runCmd(t, runner, map[string]any{"cmd": "go", "args": "version"})

	if out.Status != "ok" || out.ExitCode != 0 {
		t.Errorf("result = %+v", out)
	}
	if runner.name != "go" || !reflect.DeepEqual(runner.args, []string{"version"}) {
		t.Errorf("runner invoked with %s %v", runner.name, runner.args)
	}
	if runner.dir != "/workspace" {
		t.Errorf("dir = %s", runner.dir)
	}
	if runner.timeout != defaultCmdTimeout {
		t.Errorf("timeout = %v, want default", runner.timeout)
	}
}

func TestRunCmdAllowlist(t *testing.T) {
	runner := &fakeRunner{}
	out := runCmd(t, runner, map[string]any{"cmd": "dd"})

	if out.Status != "failed" {
		t.Error("disallowed command did not fail")
	}
	if !strings.Contains(out.Stderr, "allowlist") {
		t.Errorf("stderr = %q", out.Stderr)
	}
	if runner.name != "" {
		t.Error("runner invoked despite allowlist rejection")
	}
}

func TestRunCmdNonZeroExit(t *testing.T) {
	runner := &fakeRunner{result: Result{Code: 2, Stderr: "build failed"}}
	out := runCmd(t, runner, map[string]any{"cmd": "go", "args": "build ./..."})

	if out.Status != "failed" || out.ExitCode != 2 {
		t.Errorf("result = %+v", out)
	}
}

func TestRunCmdTimeoutClamped(t *testing.T) {
	runner := &fakeRunner{result: Result{}}
	runCmd(t, runner, map[string]any{"cmd": "go", "timeout_seconds": float64(10000)})
	if runner.timeout != maxCmdTimeout {
		t.Errorf("timeout = %v, want clamped to %v", runner.timeout, maxCmdTimeout)
	}

	runCmd(t, runner, map[string]any{"cmd": "go", "timeout_seconds": float64(1)})
	if runner.timeout != minCmdTimeout {
		t.Errorf("timeout = %v, want clamped to %v", runner.timeout, minCmdTimeout)
	}
}

func TestRunCmdOutputTruncation(t *testing.T) {
	long := strings.Repeat("line\n", 100)
	runner := &fakeRunner{result: Result{Stdout: long}}
	out := runCmd(t, runner, map[string]any{"cmd": "cat", "max_output_lines": float64(5)})

	if !out.StdoutTruncated {
		t.Error("long output not reported as truncated")
	}
	if n := len(strings.Split(out.Stdout, "\n")); n > 5 {
		t.Errorf("stdout has %d lines, want at most 5", n)
	}
}

func TestRunCmdReportsCommandProgress(t *testing.T) {
	runner := &fakeRunner{result: Result{}}
	tool := NewRunCmdTool(runner, "/workspace")

	var notes []string
	_, err := tool.Execute(context.Background(), agent.ToolCall{
		Name: tool.Name,
		Args: map[string]any{"cmd": "go", "args": "test ./..."},
	}, func(s string) { notes = append(notes, s) })
	if err != nil {
		t.Fatal(err)
	}
	if len(notes) != 1 || notes[0] != "$ go test ./..." {
		t.Errorf("progress = %v", notes)
	}
}

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"build ./...", []string{"build", "./..."}},
		{`-m "two words"`, []string{"-m", "two words"}},
		{`'single quoted' plain`, []string{"single quoted", "plain"}},
		{"a  b", []string{"a", "b"}},
	}
	for _, tt := range tests {
		if got := splitArgs(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitArgs(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestHostRunnerEcho(t *testing.T) {
	runner := NewHostRunner()
	res, err := runner.RunCmd(context.Background(), t.TempDir(), "echo", []string{"hello"}, 10*time.Second)
	if err != nil {
		t.Fatalf("echo failed: %v", err)
	}
	if res.Code != 0 || strings.TrimSpace(res.Stdout) != "hello" {
		t.Errorf("result = %+v", res)
	}
}

func TestHostRunnerExitCode(t *testing.T) {
	runner := NewHostRunner()
	res, err := runner.RunCmd(context.Background(), t.TempDir(), "sh", []string{"-c", "exit 3"}, 10*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Code != 3 {
		t.Errorf("exit code = %d, want 3", res.Code)
	}
}
