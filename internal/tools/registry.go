// Package tools assembles the builtin tool set and registers it with an
// agent registry.
package tools

import (
	"github.com/mkaddoura/drover/internal/agent"
	"github.com/mkaddoura/drover/internal/tools/editing"
	"github.com/mkaddoura/drover/internal/tools/execution"
	"github.com/mkaddoura/drover/internal/tools/filesystem"
	"github.com/mkaddoura/drover/internal/tools/reasoning"
	"github.com/mkaddoura/drover/internal/tools/search"
)

// BuiltinOwner is the owner key the builtin set is registered under.
const BuiltinOwner = "builtin"

// Builtin returns the builtin tools rooted at the given workspace directory.
// The runner decides how commands execute (host or sandboxed); nil selects
// direct host execution.
func Builtin(root string, runner execution.Runner) []agent.Tool {
	fs := filesystem.NewOSFileSystem()
	if runner == nil {
		runner = execution.NewHostRunner()
	}

	return []agent.Tool{
		filesystem.NewReadFileTool(fs, root),
		filesystem.NewWriteFileTool(fs, root),
		filesystem.NewListFilesTool(fs, root),
		filesystem.NewDeleteFileTool(fs, root),
		editing.NewSearchReplaceTool(root),
		search.NewGrepTool(runner, root),
		execution.NewRunCmdTool(runner, root),
		execution.NewRunBuildTool(runner, root),
		execution.NewRunTestsTool(runner, root),
		reasoning.NewThinkTool(),
	}
}

// RegisterBuiltin registers the builtin tool set on reg.
func RegisterBuiltin(reg *agent.Registry, root string, runner execution.Runner) error {
	for _, t := range Builtin(root, runner) {
		if err := reg.Register(BuiltinOwner, t); err != nil {
			return err
		}
	}
	return nil
}
