// Package config reads the runner's process configuration from the
// environment, applying the documented defaults. Grounded on the
// teacher's os.Getenv-with-defaults style seen throughout
// cmd/agent-deck/main.go and internal/session/config.go; no config file
// format is introduced, matching spec.md §6's env-var-only surface.
package config

import (
	"os"
	"strconv"

	"github.com/cloudide/cloudide/internal/runner/policy"
)

// Config holds every environment variable spec.md §6 recognises for the
// runner process.
type Config struct {
	Port      string
	DockerBin string

	WorkspaceImage   string
	WorkspaceVolume  string
	WorkspaceNetwork string
	WorkspacesRoot   string

	DefaultCPULimit      string
	DefaultMemLimit      string
	DefaultPIDsLimit     int
	DefaultAllowEgress   bool
	SeccompProfile       string
	SeccompAllowFallback bool
	SharedSecret         string
	Production           bool
}

// FromEnv builds a Config from the process environment, applying
// spec.md §6's documented defaults for anything unset.
func FromEnv() Config {
	return Config{
		Port:      getenv("PORT", "8081"),
		DockerBin: getenv("DOCKER_BIN", "docker"),

		WorkspaceImage:   getenv("WORKSPACE_IMAGE", "cloudide/workspace:latest"),
		WorkspaceVolume:  getenv("WORKSPACE_VOLUME", "cloudide-workspaces"),
		WorkspaceNetwork: getenv("WORKSPACE_NETWORK", "cloudide-bridge"),
		WorkspacesRoot:   getenv("WORKSPACES_ROOT", "/var/lib/cloudide/workspaces"),

		DefaultCPULimit:      getenv("DEFAULT_CPU_LIMIT", "1"),
		DefaultMemLimit:      getenv("DEFAULT_MEM_LIMIT", "1024m"),
		DefaultPIDsLimit:     getenvInt("DEFAULT_PIDS_LIMIT", 256),
		DefaultAllowEgress:   getenvBool("DEFAULT_ALLOW_EGRESS", true),
		SeccompProfile:       getenv("RUNNER_SECCOMP_PROFILE", ""),
		SeccompAllowFallback: getenvBool("RUNNER_ALLOW_SECCOMP_FALLBACK", true),
		SharedSecret:         getenv("RUNNER_SHARED_SECRET", "dev-shared-secret-change-me"),
		Production:           getenv("ENVIRONMENT", "development") == "production",
	}
}

// LaunchSpecFor assembles the policy.LaunchSpec for workspaceID, merging
// the runner's defaults with a workspace's own settings.
func (c Config) LaunchSpecFor(workspaceID string, env map[string]string, allowEgress bool, seccompDir string) (policy.LaunchSpec, error) {
	profile, err := policy.ResolveSeccompProfile(c.SeccompProfile, seccompDir)
	if err != nil {
		return policy.LaunchSpec{}, err
	}

	workDir := c.WorkspacesRoot + "/" + workspaceID
	return policy.LaunchSpec{
		Name:        policy.ContainerName(workspaceID),
		Image:       c.WorkspaceImage,
		WorkspaceID: workspaceID,
		VolumeName:  c.WorkspaceVolume,
		WorkDir:     workDir,
		Env:         env,
		Limits: policy.Limits{
			CPU:       c.DefaultCPULimit,
			Memory:    c.DefaultMemLimit,
			PIDs:      c.DefaultPIDsLimit,
			TmpSizeMB: 256,
		},
		Seccomp:     policy.Seccomp{Profile: profile, Fallback: c.SeccompAllowFallback},
		AllowEgress: allowEgress,
		NetworkName: c.WorkspaceNetwork,
	}, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
