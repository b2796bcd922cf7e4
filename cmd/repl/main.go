// Command repl is an interactive coding agent for a single workspace.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/mkaddoura/drover/internal/agent"
	"github.com/mkaddoura/drover/internal/project"
	"github.com/mkaddoura/drover/internal/prompts"
	"github.com/mkaddoura/drover/internal/sandbox"
	"github.com/mkaddoura/drover/internal/session"
	"github.com/mkaddoura/drover/internal/tools"
)

func main() {
	// Pick up keys from a local .env file if present.
	_ = godotenv.Load()

	if err := run(context.Background(), os.Args[1:]); err != nil {
		log.Fatalf("command failed: %v", err)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("drover", flag.ExitOnError)
	repoFlag := fs.String("repo", "", "Path to workspace root (default: current directory)")
	resumeFlag := fs.String("resume", "", "Session id to resume")
	listFlag := fs.Bool("sessions", false, "List saved sessions for the workspace and exit")
	maxRounds := fs.Int("max-rounds", 0, "Backend rounds per turn, 0 = use config or default")
	toolTimeout := fs.Int("tool-timeout", -1, "Per-tool deadline in seconds, 0 disables")

	if err := fs.Parse(args); err != nil {
		return err
	}

	env, err := prepareRuntimeEnv(ctx, *repoFlag)
	if err != nil {
		return err
	}
	defer env.Close()

	if *listFlag {
		return printSessions(ctx, env)
	}

	rules, err := project.LoadRules(env.RepoRoot)
	if err != nil {
		log.Printf("warning: %v", err)
	}
	system, err := prompts.InteractiveWithRules(env.RepoRoot, rules)
	if err != nil {
		return err
	}

	cfg := agent.DefaultConfig()
	cfg.Model = env.Model
	cfg.SystemPrompt = system
	cfg.MaxRounds = pickInt(*maxRounds, env.UserCfg.MaxRounds, envInt("DROVER_MAX_ROUNDS", 40))
	cfg.ToolTimeout = pickTimeout(*toolTimeout, env.UserCfg.ToolTimeoutSeconds)

	registry := agent.NewRegistry()
	runner := sandbox.NewDefaultRunner(ctx)
	if err := tools.RegisterBuiltin(registry, env.RepoRoot, runner); err != nil {
		return fmt.Errorf("failed to register tools: %w", err)
	}

	a := agent.New(env.Backend, registry, cfg)
	defer a.Close()

	rend := newRenderer()
	unsubscribe := a.Subscribe(rend.observe)
	defer unsubscribe()

	sess := &session.Session{ID: uuid.NewString(), RepoPath: env.RepoRoot}
	if *resumeFlag != "" {
		restored, err := resumeSession(ctx, env, a, *resumeFlag)
		if err != nil {
			return err
		}
		sess = restored
	}

	fmt.Printf("drover ready (model: %s, workspace: %s)\n", env.Model, env.RepoRoot)
	fmt.Println("Commands: :abort  :continue  :sessions  :quit. Input during a turn steers it.")

	repl(ctx, a, env, rend)

	saveSession(env, a, sess)
	return nil
}

// repl multiplexes stdin against turn completion so input typed mid-turn
// becomes steering instead of blocking.
func repl(ctx context.Context, a *agent.Agent, env *runtimeEnv, rend *renderer) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		s := bufio.NewScanner(os.Stdin)
		for s.Scan() {
			lines <- s.Text()
		}
	}()

	fmt.Print("you> ")
	for {
		select {
		case <-rend.turnDone:
			fmt.Print("you> ")

		case line, ok := <-lines:
			if !ok {
				a.Abort()
				fmt.Println()
				return
			}
			line = strings.TrimSpace(line)
			switch {
			case line == "":
				if !active(a) {
					fmt.Print("you> ")
				}

			case line == ":quit" || line == ":q" || line == "exit":
				a.Abort()
				return

			case line == ":abort":
				a.Abort()

			case line == ":continue":
				if err := a.Continue(ctx); err != nil {
					fmt.Fprintf(os.Stderr, "error: %v\n", err)
					fmt.Print("you> ")
				}

			case line == ":sessions":
				if err := printSessions(ctx, env); err != nil {
					fmt.Fprintf(os.Stderr, "error: %v\n", err)
				}
				if !active(a) {
					fmt.Print("you> ")
				}

			default:
				if active(a) {
					a.Steer(line)
					continue
				}
				if err := a.Prompt(ctx, line); err != nil {
					fmt.Fprintf(os.Stderr, "error: %v\n", err)
					fmt.Print("you> ")
				}
			}
		}
	}
}

func active(a *agent.Agent) bool {
	p := a.Phase()
	return p == agent.PhaseStreaming || p == agent.PhaseAwaitingTools
}

func resumeSession(ctx context.Context, env *runtimeEnv, a *agent.Agent, id string) (*session.Session, error) {
	if env.Store == nil {
		return nil, fmt.Errorf("session persistence is unavailable")
	}
	sess, err := env.Store.Load(ctx, id, env.RepoRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resume session %s: %w", id, err)
	}
	if err := a.LoadHistory(sess.History); err != nil {
		return nil, err
	}
	fmt.Printf("resumed session %s (%d messages)\n", sess.ID, len(sess.History))
	if sess.Summary != "" {
		fmt.Printf("previously: %s\n", sess.Summary)
	}
	return sess, nil
}

func saveSession(env *runtimeEnv, a *agent.Agent, sess *session.Session) {
	if env.Store == nil {
		return
	}
	snap := a.Snapshot()
	if len(snap.Messages) == 0 {
		return
	}
	sess.History = snap.Messages

	if sess.Title == "" {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		title, err := session.NewSummarizer(env.Backend, env.Model).GenerateTitle(ctx, snap.Messages)
		if err == nil {
			sess.Title = title
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := env.Store.Save(ctx, sess); err != nil {
		log.Printf("warning: failed to save session: %v", err)
		return
	}
	fmt.Printf("session saved: %s\n", sess.ID)
}

func printSessions(ctx context.Context, env *runtimeEnv) error {
	if env.Store == nil {
		return fmt.Errorf("session persistence is unavailable")
	}
	list, err := env.Store.List(ctx, env.RepoRoot)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("no saved sessions for this workspace")
		return nil
	}
	for _, meta := range list {
		title := meta.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Printf("%s  %s  %s\n", meta.ID, meta.UpdatedAt.Format("2006-01-02 15:04"), title)
	}
	return nil
}

// pickInt returns the first positive value.
func pickInt(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

func pickTimeout(flagSeconds, cfgSeconds int) time.Duration {
	switch {
	case flagSeconds == 0:
		return 0
	case flagSeconds > 0:
		return time.Duration(flagSeconds) * time.Second
	case cfgSeconds > 0:
		return time.Duration(cfgSeconds) * time.Second
	}
	return time.Duration(envInt("DROVER_TOOL_TIMEOUT", 120)) * time.Second
}
