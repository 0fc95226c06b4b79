// Package policy assembles the docker CLI argument set for a hardened
// workspace container launch. Grounded on the security-hardening argument
// list in the teacher's internal/docker/docker.go Create (cap-drop,
// no-new-privileges, pids-limit, read-only root + tmpfs), generalized
// with the non-root user, seccomp, and network-mode requirements this
// system's launch policy adds on top.
package policy

import (
	"fmt"
	"maps"
	"slices"
)

// Limits bounds a container's resource consumption.
type Limits struct {
	CPU       string // e.g. "1"
	Memory    string // e.g. "1024m"
	PIDs      int    // e.g. 256
	TmpSizeMB int    // size cap for the /tmp tmpfs, in MB
}

// Seccomp selects the seccomp profile strategy.
type Seccomp struct {
	Profile  string // "default", an explicit path, or "" for none
	Fallback bool   // retry once with no profile if Profile is unavailable
}

// LaunchSpec is everything needed to assemble a `docker create` argv for
// one workspace container.
type LaunchSpec struct {
	Name        string
	Image       string
	WorkspaceID string
	VolumeName  string // shared named volume mounted at /workspaces
	WorkDir     string // e.g. /workspaces/<id>
	Env         map[string]string
	Limits      Limits
	Seccomp     Seccomp
	AllowEgress bool
	NetworkName string // bridge network name used when AllowEgress is true
}

// BuildCreateArgs renders the `docker create ...` argv for spec, applying
// the seccomp profile if set. Call BuildCreateArgsNoSeccomp for the
// fallback retry.
func BuildCreateArgs(spec LaunchSpec) []string {
	return buildCreateArgs(spec, spec.Seccomp.Profile)
}

// BuildCreateArgsNoSeccomp renders the same argv with no seccomp profile
// applied, for the one-shot fallback retry when the configured profile
// is unavailable.
func BuildCreateArgsNoSeccomp(spec LaunchSpec) []string {
	return buildCreateArgs(spec, "")
}

func buildCreateArgs(spec LaunchSpec, seccompProfile string) []string {
	args := []string{
		"create",
		"--name", spec.Name,
		"--label", "managed-by=cloudide",
		"--label", "workspace-id=" + spec.WorkspaceID,
		"--user", "1000:1000",
		"--cap-drop=ALL",
		"--security-opt=no-new-privileges",
	}

	if seccompProfile != "" {
		args = append(args, "--security-opt", "seccomp="+seccompProfile)
	}

	pidsLimit := spec.Limits.PIDs
	if pidsLimit <= 0 {
		pidsLimit = 256
	}
	args = append(args, "--pids-limit", fmt.Sprintf("%d", pidsLimit))

	tmpSize := spec.Limits.TmpSizeMB
	if tmpSize <= 0 {
		tmpSize = 256
	}
	args = append(args,
		"--read-only",
		"--tmpfs", fmt.Sprintf("/tmp:rw,noexec,nosuid,size=%dm", tmpSize),
	)

	if spec.AllowEgress {
		args = append(args, "--network", spec.NetworkName)
	} else {
		args = append(args, "--network", "none")
	}

	if spec.VolumeName != "" {
		args = append(args, "-v", spec.VolumeName+":/workspaces")
	}
	if spec.WorkDir != "" {
		args = append(args, "--workdir", spec.WorkDir)
	}

	for _, k := range slices.Sorted(maps.Keys(spec.Env)) {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, spec.Env[k]))
	}

	if spec.Limits.CPU != "" {
		args = append(args, "--cpus", spec.Limits.CPU)
	}
	if spec.Limits.Memory != "" {
		args = append(args, "--memory", spec.Limits.Memory)
	}

	args = append(args, spec.Image, "sleep", "infinity")
	return args
}

// ContainerName derives the canonical container name for a workspace id,
// replacing any character outside [A-Za-z0-9_.-] with a hyphen.
func ContainerName(workspaceID string) string {
	return "cloudide-ws-" + sanitize(workspaceID)
}

func sanitize(s string) string {
	out := make([]rune, 0, len(s))
	for _, c := range s {
		switch {
		case (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' || c == '.' || c == '-':
			out = append(out, c)
		default:
			out = append(out, '-')
		}
	}
	return string(out)
}
