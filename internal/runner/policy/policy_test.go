package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContainerNameSanitizesWorkspaceID(t *testing.T) {
	assert.Equal(t, "cloudide-ws-550e8400-e29b-41d4-a716-446655440000",
		ContainerName("550e8400-e29b-41d4-a716-446655440000"))
	assert.Equal(t, "cloudide-ws-rm--rf--", ContainerName("rm -rf /"))
}

func TestBuildCreateArgsAppliesHardening(t *testing.T) {
	spec := LaunchSpec{
		Name:        "cloudide-ws-abc",
		Image:       "cloudide/workspace:latest",
		WorkspaceID: "abc",
		VolumeName:  "cloudide-workspaces",
		WorkDir:     "/workspaces/abc",
		Env:         map[string]string{"B": "2", "A": "1"},
		Limits:      Limits{CPU: "1", Memory: "1024m", PIDs: 256, TmpSizeMB: 256},
		Seccomp:     Seccomp{Profile: "default", Fallback: true},
		AllowEgress: true,
		NetworkName: "cloudide-bridge",
	}

	args := BuildCreateArgs(spec)
	joined := argsToString(args)

	assert.Contains(t, joined, "--user 1000:1000")
	assert.Contains(t, joined, "--cap-drop=ALL")
	assert.Contains(t, joined, "--security-opt=no-new-privileges")
	assert.Contains(t, joined, "--security-opt seccomp=default")
	assert.Contains(t, joined, "--read-only")
	assert.Contains(t, joined, "--tmpfs /tmp:rw,noexec,nosuid,size=256m")
	assert.Contains(t, joined, "--network cloudide-bridge")
	assert.Contains(t, joined, "-e A=1")

	// env vars must be sorted, A before B
	aIdx := indexOf(args, "A=1")
	bIdx := indexOf(args, "B=2")
	assert.Less(t, aIdx, bIdx)
}

func TestBuildCreateArgsNoEgressUsesNoneNetwork(t *testing.T) {
	spec := LaunchSpec{Name: "x", Image: "img", AllowEgress: false}
	args := BuildCreateArgs(spec)
	assert.Contains(t, argsToString(args), "--network none")
}

func TestBuildCreateArgsNoSeccompOmitsProfile(t *testing.T) {
	spec := LaunchSpec{Name: "x", Image: "img", Seccomp: Seccomp{Profile: "default"}}
	args := BuildCreateArgsNoSeccomp(spec)
	assert.NotContains(t, argsToString(args), "seccomp=")
}

func argsToString(args []string) string {
	out := ""
	for _, a := range args {
		out += a + " "
	}
	return out
}

func indexOf(args []string, target string) int {
	for i, a := range args {
		if a == target {
			return i
		}
	}
	return -1
}
