package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	units "github.com/docker/go-units"

	"github.com/mkaddoura/drover/internal/tools/execution"
	"github.com/mkaddoura/drover/internal/workspace"
)

// DockerRunner executes commands in throwaway containers. Each command gets a
// fresh container with the workspace bind-mounted at /workspace, no network,
// and dropped capabilities.
type DockerRunner struct {
	client *client.Client
	cfg    Config
}

// NewDockerRunner creates a Docker-backed runner, verifying the daemon is
// reachable.
func NewDockerRunner(cfg Config) (*DockerRunner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		return nil, fmt.Errorf("Docker daemon not accessible: %w", err)
	}

	return &DockerRunner{client: cli, cfg: cfg}, nil
}

// RunCmd implements execution.Runner.
func (r *DockerRunner) RunCmd(ctx context.Context, dir, name string, args []string, timeout time.Duration) (execution.Result, error) {
	img := r.imageFor(dir)
	if err := r.ensureImage(ctx, img); err != nil {
		return execution.Result{}, fmt.Errorf("failed to ensure image %s: %w", img, err)
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return execution.Result{}, fmt.Errorf("failed to resolve workspace path: %w", err)
	}

	containerConfig := &container.Config{
		Image:           img,
		Cmd:             append([]string{name}, args...),
		WorkingDir:      "/workspace",
		User:            "1000:1000",
		Env:             []string{"HOME=/tmp"},
		NetworkDisabled: true,
	}
	hostConfig := &container.HostConfig{
		Mounts: []mount.Mount{{
			Type:   mount.TypeBind,
			Source: absDir,
			Target: "/workspace",
		}},
		Resources: container.Resources{
			Memory:   memoryBytes(r.cfg.Memory),
			NanoCPUs: cpuNanos(r.cfg.CPU),
			Ulimits:  []*units.Ulimit{{Name: "nofile", Soft: 1024, Hard: 1024}},
		},
		SecurityOpt:    []string{"no-new-privileges"},
		CapDrop:        []string{"ALL"},
		ReadonlyRootfs: true,
		Tmpfs:          map[string]string{"/tmp": "rw,noexec,nosuid,size=100m"},
	}

	created, err := r.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, "")
	if err != nil {
		return execution.Result{}, fmt.Errorf("failed to create container: %w", err)
	}
	containerID := created.ID
	defer func() {
		// Removal must survive the caller's context being cancelled.
		removeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = r.client.ContainerRemove(removeCtx, containerID, container.RemoveOptions{Force: true})
	}()

	execCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		execCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := r.client.ContainerStart(execCtx, containerID, container.StartOptions{}); err != nil {
		return execution.Result{}, fmt.Errorf("failed to start container: %w", err)
	}

	statusCh, errCh := r.client.ContainerWait(execCtx, containerID, container.WaitConditionNotRunning)

	var exitCode int64
	select {
	case <-execCtx.Done():
		killCtx, killCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer killCancel()
		_ = r.client.ContainerKill(killCtx, containerID, "SIGKILL")
		return execution.Result{
			Code:     1,
			Stderr:   "command execution timed out",
			TimedOut: errors.Is(execCtx.Err(), context.DeadlineExceeded),
		}, nil
	case err := <-errCh:
		if err != nil {
			return execution.Result{}, fmt.Errorf("container wait error: %w", err)
		}
	case status := <-statusCh:
		exitCode = status.StatusCode
	}

	stdout, stderr, err := r.readLogs(ctx, containerID)
	if err != nil {
		return execution.Result{}, err
	}

	return execution.Result{
		Code:   int(exitCode),
		Stdout: stdout,
		Stderr: stderr,
	}, nil
}

func (r *DockerRunner) readLogs(ctx context.Context, containerID string) (string, string, error) {
	logs, err := r.client.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       "all",
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to read container logs: %w", err)
	}
	defer logs.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, logs); err != nil && err != io.EOF {
		return "", "", fmt.Errorf("failed to demultiplex container logs: %w", err)
	}
	return stdout.String(), stderr.String(), nil
}

// ensureImage pulls the image unless it is already present locally.
func (r *DockerRunner) ensureImage(ctx context.Context, imageName string) error {
	if _, _, err := r.client.ImageInspectWithRaw(ctx, imageName); err == nil {
		return nil
	}

	reader, err := r.client.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close()

	// The pull only completes once its progress stream is drained.
	_, _ = io.Copy(io.Discard, reader)
	return nil
}

// imageFor picks a container image for the workspace, preferring the
// configured override.
func (r *DockerRunner) imageFor(dir string) string {
	if r.cfg.Image != "" {
		return r.cfg.Image
	}
	switch workspace.DetectProjectType(dir) {
	case workspace.ProjectTypeGo:
		return "golang:alpine"
	case workspace.ProjectTypeNode:
		return "node:alpine"
	case workspace.ProjectTypePython:
		return "python:alpine"
	case workspace.ProjectTypeRust:
		return "rust:alpine"
	default:
		return "alpine:latest"
	}
}

func memoryBytes(s string) int64 {
	n, err := units.RAMInBytes(s)
	if err != nil || n <= 0 {
		return 1 * 1024 * 1024 * 1024
	}
	return n
}

func cpuNanos(s string) int64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		v = 2
	}
	return int64(v * 1e9)
}
