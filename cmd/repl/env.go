package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/mkaddoura/drover/internal/agent"
	"github.com/mkaddoura/drover/internal/config"
	"github.com/mkaddoura/drover/internal/providers"
	"github.com/mkaddoura/drover/internal/session"
)

type runtimeEnv struct {
	RepoRoot string
	Backend  agent.Backend
	Model    string
	Store    *session.Store
	UserCfg  *config.Config
}

func (r *runtimeEnv) Close() {
	if r.Store != nil {
		r.Store.Close()
	}
}

func prepareRuntimeEnv(ctx context.Context, repoFlag string) (*runtimeEnv, error) {
	repoRoot := repoFlag
	if repoRoot == "" {
		var err error
		repoRoot, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
	}

	absRepoRoot, err := filepath.Abs(repoRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace path: %w", err)
	}
	if info, err := os.Stat(absRepoRoot); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("workspace path is not a valid directory: %s", absRepoRoot)
	}

	userCfg := loadUserConfig()
	applyUserConfig(userCfg)

	backend, model, err := providers.FromEnv()
	if err != nil {
		return nil, err
	}

	// Session persistence is best effort; the REPL still works without it.
	var store *session.Store
	if manager, err := config.NewManager(); err == nil {
		if err := os.MkdirAll(filepath.Dir(manager.DataPath("sessions.db")), 0755); err == nil {
			store, err = session.NewStore(ctx, manager.DataPath("sessions.db"))
			if err != nil {
				log.Printf("warning: session persistence disabled: %v", err)
				store = nil
			}
		}
	}

	return &runtimeEnv{
		RepoRoot: absRepoRoot,
		Backend:  backend,
		Model:    model,
		Store:    store,
		UserCfg:  userCfg,
	}, nil
}

func loadUserConfig() *config.Config {
	manager, err := config.NewManager()
	if err != nil {
		log.Printf("warning: failed to initialize config manager: %v", err)
		return &config.Config{}
	}
	cfg, err := manager.Load()
	if err != nil {
		log.Printf("warning: failed to load user config: %v", err)
		return &config.Config{}
	}
	return cfg
}

// applyUserConfig projects the saved configuration into the environment so
// the provider factory sees one consistent source. Values already set in the
// environment win.
func applyUserConfig(cfg *config.Config) {
	setIfEmpty := func(key, value string) {
		if value != "" && os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}

	setIfEmpty("LLM_PROVIDER", cfg.Provider)

	switch cfg.Provider {
	case "openai":
		setIfEmpty("OPENAI_API_KEY", cfg.APIKey)
		setIfEmpty("OPENAI_MODEL", cfg.Model)
		setIfEmpty("OPENAI_BASE_URL", cfg.BaseURL)
	case "anthropic":
		setIfEmpty("ANTHROPIC_API_KEY", cfg.APIKey)
		setIfEmpty("ANTHROPIC_MODEL", cfg.Model)
	case "deepseek":
		setIfEmpty("DEEPSEEK_API_KEY", cfg.APIKey)
		setIfEmpty("DEEPSEEK_MODEL", cfg.Model)
	case "groq":
		setIfEmpty("GROQ_API_KEY", cfg.APIKey)
		setIfEmpty("GROQ_MODEL", cfg.Model)
	case "ollama":
		setIfEmpty("OLLAMA_BASE_URL", cfg.BaseURL)
		setIfEmpty("OLLAMA_MODEL", cfg.Model)
	}
}

// envInt reads an integer environment variable, falling back when unset or
// malformed.
func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("warning: invalid %s value %q, using %d", key, v, fallback)
		return fallback
	}
	return n
}
