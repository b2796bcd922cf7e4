// Package sandbox provides Docker-isolated command execution for the run_cmd
// tool. When Docker is unavailable it falls back to direct host execution.
package sandbox

import (
	"context"
	"log"
	"os"
	"os/exec"
	"strings"

	"github.com/mkaddoura/drover/internal/tools/execution"
)

// Mode selects the isolation strategy.
type Mode string

const (
	// ModeDocker uses Docker containers for isolation.
	ModeDocker Mode = "docker"
	// ModeHost runs commands directly on the host (no isolation).
	ModeHost Mode = "host"
	// ModeAuto selects Docker if available, otherwise the host.
	ModeAuto Mode = "auto"
)

// Config holds sandbox settings.
type Config struct {
	Mode   Mode
	Image  string // Custom Docker image override
	CPU    string // CPU limit, e.g. "2"
	Memory string // Memory limit, e.g. "1g"
}

// ConfigFromEnv builds a Config from environment variables.
func ConfigFromEnv() Config {
	mode := Mode(strings.ToLower(os.Getenv("DROVER_SANDBOX_MODE")))
	switch mode {
	case ModeDocker, ModeHost, ModeAuto:
	case "":
		mode = ModeAuto
	default:
		log.Printf("warning: unknown DROVER_SANDBOX_MODE %q, using auto", mode)
		mode = ModeAuto
	}

	return Config{
		Mode:   mode,
		Image:  os.Getenv("DROVER_DOCKER_IMAGE"),
		CPU:    envOr("DROVER_DOCKER_CPU", "2"),
		Memory: envOr("DROVER_DOCKER_MEMORY", "1g"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// IsDockerAvailable reports whether a Docker daemon answers.
func IsDockerAvailable(ctx context.Context) bool {
	cmd := exec.CommandContext(ctx, "docker", "ps")
	cmd.Stdout = nil
	cmd.Stderr = nil
	return cmd.Run() == nil
}

// NewDefaultRunner picks a runner per the configured mode. Docker failures
// degrade to host execution with a warning rather than refusing to start.
func NewDefaultRunner(ctx context.Context) execution.Runner {
	cfg := ConfigFromEnv()

	switch cfg.Mode {
	case ModeHost:
		log.Printf("warning: sandbox disabled, commands run directly on the host")
		return execution.NewHostRunner()

	case ModeDocker, ModeAuto:
		if !IsDockerAvailable(ctx) {
			if cfg.Mode == ModeDocker {
				log.Printf("warning: Docker mode requested but the daemon is unreachable, falling back to host execution")
			} else {
				log.Printf("warning: Docker not available, commands run directly on the host")
			}
			return execution.NewHostRunner()
		}
		runner, err := NewDockerRunner(cfg)
		if err != nil {
			log.Printf("warning: failed to create Docker runner: %v, falling back to host execution", err)
			return execution.NewHostRunner()
		}
		return runner
	}
	return execution.NewHostRunner()
}
