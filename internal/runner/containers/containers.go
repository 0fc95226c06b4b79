// Package containers manages the per-workspace docker container
// lifecycle: create, start, stop, exec, status, and the start-lock
// coalescing that guarantees at most one `docker run` per workspace
// under concurrent demand. Grounded on the teacher's
// internal/docker/docker.go (Exists/IsRunning via docker inspect,
// idempotent Create/Start/Stop/Remove, ExecPrefix) for the lifecycle
// shape, and internal/tmux/tmux.go's Session.captureSf
// (singleflight.Group, "deduplicate concurrent calls") for the
// start-lock coalescing itself.
package containers

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/cloudide/cloudide/internal/runner/policy"
)

// State is one of the container lifecycle states.
type State string

const (
	StateAbsent  State = "absent"
	StateCreated State = "created"
	StateRunning State = "running"
	StateStopped State = "stopped"
)

// DockerBin is the docker CLI binary name or path, overridable via the
// runner's DOCKER_BIN environment variable.
var DockerBin = "docker"

// ExecResult is the outcome of a non-streaming exec call.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Manager owns docker container lifecycle for all workspaces on this
// runner, coalescing concurrent starts per workspace id via singleflight
// so that a second caller for the same id joins the pending `docker run`
// instead of issuing its own.
type Manager struct {
	startSf singleflight.Group
}

// NewManager builds an empty Manager.
func NewManager() *Manager {
	return &Manager{}
}

// Status reports the docker-observed state of a workspace's container.
func Status(ctx context.Context, workspaceID string) (State, error) {
	name := policy.ContainerName(workspaceID)
	out, err := exec.CommandContext(ctx, DockerBin, "inspect", "--format", "{{.State.Running}}", name).CombinedOutput()
	if err != nil {
		if isExitError(err) {
			return StateAbsent, nil
		}
		return "", fmt.Errorf("containers: inspect %s: %s: %w", name, strings.TrimSpace(string(out)), err)
	}
	if strings.TrimSpace(string(out)) == "true" {
		return StateRunning, nil
	}
	return StateStopped, nil
}

// EnsureRunning creates (if absent) and starts the container for
// workspaceID, coalescing concurrent callers for the same id so that at
// most one `docker run` is issued: a caller that arrives while another's
// EnsureRunning(spec.WorkspaceID) is still in flight blocks on the same
// singleflight call and shares its result instead of racing it.
func (m *Manager) EnsureRunning(ctx context.Context, spec policy.LaunchSpec) (string, error) {
	name, err, _ := m.startSf.Do(spec.WorkspaceID, func() (any, error) {
		state, err := Status(ctx, spec.WorkspaceID)
		if err != nil {
			return "", err
		}
		if state == StateRunning {
			return spec.Name, nil
		}

		if state == StateAbsent {
			if err := create(ctx, spec); err != nil {
				return "", err
			}
		}

		if err := start(ctx, spec.Name); err != nil {
			return "", err
		}
		return spec.Name, nil
	})
	if err != nil {
		return "", err
	}
	return name.(string), nil
}

func create(ctx context.Context, spec policy.LaunchSpec) error {
	out, err := exec.CommandContext(ctx, DockerBin, policy.BuildCreateArgs(spec)...).CombinedOutput()
	if err == nil {
		return nil
	}

	if spec.Seccomp.Profile != "" && spec.Seccomp.Fallback && looksLikeSeccompFailure(out) {
		out, err = exec.CommandContext(ctx, DockerBin, policy.BuildCreateArgsNoSeccomp(spec)...).CombinedOutput()
		if err == nil {
			return nil
		}
	}

	// Idempotent: a name conflict means another caller already created it.
	state, statusErr := Status(ctx, spec.WorkspaceID)
	if statusErr == nil && state != StateAbsent {
		return nil
	}
	return fmt.Errorf("containers: create %s: %s: %w", spec.Name, strings.TrimSpace(string(out)), err)
}

func looksLikeSeccompFailure(out []byte) bool {
	return bytes.Contains(bytes.ToLower(out), []byte("seccomp"))
}

func start(ctx context.Context, name string) error {
	out, err := exec.CommandContext(ctx, DockerBin, "start", name).CombinedOutput()
	if err != nil {
		running, inspectErr := exec.CommandContext(ctx, DockerBin, "inspect", "--format", "{{.State.Running}}", name).CombinedOutput()
		if inspectErr == nil && strings.TrimSpace(string(running)) == "true" {
			return nil
		}
		return fmt.Errorf("containers: start %s: %s: %w", name, strings.TrimSpace(string(out)), err)
	}
	return nil
}

// Stop force-removes the container for workspaceID. Removal terminates
// every PTY/exec/LSP child process attached to it. A missing container
// is treated as success.
func Stop(ctx context.Context, workspaceID string) error {
	name := policy.ContainerName(workspaceID)
	out, err := exec.CommandContext(ctx, DockerBin, "rm", "-f", "-v", name).CombinedOutput()
	if err != nil {
		outStr := strings.ToLower(strings.TrimSpace(string(out)))
		if isExitError(err) && strings.Contains(outStr, "no such container") {
			return nil
		}
		return fmt.Errorf("containers: stop %s: %s: %w", name, strings.TrimSpace(string(out)), err)
	}
	return nil
}

// ContainerIP resolves the private network IP the preview proxy dials
// into, preferring the configured egress network's address when the
// container is attached to more than one.
func ContainerIP(ctx context.Context, workspaceID string) (string, error) {
	name := policy.ContainerName(workspaceID)
	out, err := exec.CommandContext(ctx, DockerBin, "inspect",
		"--format", "{{range .NetworkSettings.Networks}}{{.IPAddress}}{{\"\\n\"}}{{end}}", name).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("containers: inspect ip %s: %s: %w", name, strings.TrimSpace(string(out)), err)
	}
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		ip := strings.TrimSpace(line)
		if ip != "" {
			return ip, nil
		}
	}
	return "", fmt.Errorf("containers: %s has no attached network IP", name)
}

// PortOpen reports whether a TCP dial to the workspace container's private
// IP on port succeeds, used as a readiness probe before a preview link is
// surfaced as live.
func PortOpen(ctx context.Context, workspaceID string, port int) (bool, error) {
	ip, err := ContainerIP(ctx, workspaceID)
	if err != nil {
		return false, err
	}
	d := net.Dialer{Timeout: 2 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(ip, strconv.Itoa(port)))
	if err != nil {
		return false, nil
	}
	_ = conn.Close()
	return true, nil
}

// Exec runs command inside the workspace's container via `docker exec -i`,
// wrapped as `sh -lc 'cd <workDir> && <command>'`, forwarding env.
func Exec(ctx context.Context, workspaceID, workDir, command string, env map[string]string) (ExecResult, error) {
	name := policy.ContainerName(workspaceID)
	args := []string{"exec", "-i"}
	for k, v := range env {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, v))
	}
	args = append(args, name, "sh", "-lc", fmt.Sprintf("cd %s && %s", shellQuote(workDir), command))

	cmd := exec.CommandContext(ctx, DockerBin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()

	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return ExecResult{}, fmt.Errorf("containers: exec in %s: %w", name, err)
		}
	}
	return ExecResult{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: exitCode}, nil
}

// ExecPrefix returns the `docker exec -it <name>` argv prefix for
// interactive sessions (PTY/LSP bridges build on top of this).
func ExecPrefix(workspaceID string) []string {
	return []string{DockerBin, "exec", "-it", policy.ContainerName(workspaceID)}
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

func isExitError(err error) bool {
	_, ok := err.(*exec.ExitError)
	return ok
}
