// internal/sandbox/docker.go

// Package sandbox executes untrusted code artifacts in isolated,
// resource-bounded containers and classifies their failures.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opsmedic/codemedic/api/schemas"
	"github.com/opsmedic/codemedic/internal/config"
)

const scriptName = "script.py"

// killGrace bounds the forced-termination call issued after a wall-clock
// timeout. It is independent of the caller's (already expired) context.
const killGrace = 10 * time.Second

// DockerRunner runs one code artifact per container via the docker CLI.
// Every call builds a fresh workspace and container; nothing persists
// between runs.
type DockerRunner struct {
	logger *zap.Logger
	cfg    config.SandboxConfig
}

// Statically assert the runner satisfies the sandbox contract.
var _ schemas.SandboxRunner = (*DockerRunner)(nil)

// NewDockerRunner initializes a runner for the configured image.
func NewDockerRunner(cfg config.SandboxConfig, logger *zap.Logger) *DockerRunner {
	return &DockerRunner{
		logger: logger.Named("sandbox"),
		cfg:    cfg,
	}
}

// Run executes the code under the given limits and returns a classified
// result. Program failures (non-zero exit, timeout, OOM kill) are folded
// into the ExecutionResult; a non-nil error additionally signals a
// substrate fault such as a missing container runtime, and the returned
// result is still usable by the repair loop.
func (r *DockerRunner) Run(ctx context.Context, code string, limits schemas.ResourceLimits) (schemas.ExecutionResult, error) {
	start := time.Now()

	workdir, err := os.MkdirTemp("", "codemedic-run-*")
	if err != nil {
		res := schemas.Failed(schemas.ErrUnknown, "", fmt.Sprintf("failed to create sandbox workspace: %v", err), time.Since(start))
		return res, fmt.Errorf("failed to create sandbox workspace: %w", err)
	}
	if !r.cfg.KeepWorkspace {
		defer os.RemoveAll(workdir)
	}

	scriptPath := filepath.Join(workdir, scriptName)
	if err := os.WriteFile(scriptPath, []byte(code), 0o644); err != nil {
		res := schemas.Failed(schemas.ErrUnknown, "", fmt.Sprintf("failed to write script: %v", err), time.Since(start))
		return res, fmt.Errorf("failed to write script: %w", err)
	}

	containerName := "codemedic-" + uuid.NewString()

	// The hard wall-clock cap is enforced here, not trusted to the
	// container: the docker client is killed on expiry and the container
	// itself is force-terminated right after.
	runCtx, cancel := context.WithTimeout(ctx, limits.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.cfg.Binary, r.runArgs(containerName, workdir, limits)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Debug("Starting sandboxed execution",
		zap.String("container", containerName),
		zap.Int64("memory_bytes", limits.MemoryBytes),
		zap.Float64("cpu_share", limits.CPUShare),
		zap.Bool("network_enabled", limits.NetworkEnabled),
		zap.Duration("timeout", limits.Timeout),
	)

	runErr := cmd.Run()
	duration := time.Since(start)

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		r.forceKill(containerName)
		trace := fmt.Sprintf("execution exceeded the %s wall-clock limit; container force-terminated", limits.Timeout)
		return schemas.Failed(schemas.ErrTimeout, stdout.String(), trace, duration), nil
	}

	if runErr == nil {
		return schemas.Succeeded(stdout.String(), duration), nil
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		errType, trace := Classify(stderr.String(), exitErr.ExitCode())
		return schemas.Failed(errType, stdout.String(), trace, duration), nil
	}

	// The docker client itself failed to start: binary missing, daemon
	// unreachable. Still hand the loop a classified result.
	r.logger.Error("Sandbox substrate failure", zap.Error(runErr))
	res := schemas.Failed(schemas.ErrUnknown, stdout.String(), fmt.Sprintf("sandbox substrate failure: %v", runErr), duration)
	return res, fmt.Errorf("sandbox substrate failure: %w", runErr)
}

// Ping reports whether the container runtime is reachable.
func (r *DockerRunner) Ping(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, r.cfg.Binary, "info", "--format", "{{.ServerVersion}}")
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("container runtime unreachable: %w (output: %s)", err, bytes.TrimSpace(output))
	}
	return nil
}

// runArgs assembles the docker CLI invocation for one bounded run. The
// workspace is mounted read-only and the network is detached unless the
// limits explicitly enable it for a diagnostic run.
func (r *DockerRunner) runArgs(containerName, workdir string, limits schemas.ResourceLimits) []string {
	network := "none"
	if limits.NetworkEnabled {
		network = "bridge"
	}
	return []string{
		"run", "--rm",
		"--name", containerName,
		"--memory", strconv.FormatInt(limits.MemoryBytes, 10) + "b",
		"--cpus", strconv.FormatFloat(limits.CPUShare, 'f', -1, 64),
		"--network", network,
		"-v", workdir + ":/app:ro",
		r.cfg.Image,
		r.cfg.Interpreter, "/app/" + scriptName,
	}
}

// forceKill terminates a container that outlived its deadline. Errors are
// logged, not returned: the run already has its timeout classification.
func (r *DockerRunner) forceKill(containerName string) {
	ctx, cancel := context.WithTimeout(context.Background(), killGrace)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.cfg.Binary, "kill", containerName)
	if output, err := cmd.CombinedOutput(); err != nil {
		// A kill race with --rm cleanup is expected; anything else is worth a log line.
		r.logger.Debug("Container kill returned error",
			zap.String("container", containerName),
			zap.Error(err),
			zap.ByteString("output", bytes.TrimSpace(output)),
		)
	}
}
