package gitwrap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildArgsSimpleCommands(t *testing.T) {
	cases := []struct {
		req  Request
		want []string
	}{
		{Request{Op: OpInit}, []string{"init"}},
		{Request{Op: OpStatus}, []string{"status", "-b"}},
		{Request{Op: OpDiff}, []string{"diff"}},
		{Request{Op: OpDiff, Path: "src/main.go"}, []string{"diff", "--", "src/main.go"}},
		{Request{Op: OpAdd, Path: "foo.txt"}, []string{"add", "foo.txt"}},
		{Request{Op: OpReset}, []string{"reset", "HEAD", "--"}},
		{Request{Op: OpCommit, Message: "fix bug"}, []string{"commit", "-m", "fix bug"}},
		{Request{Op: OpBranch}, []string{"branch", "-av"}},
		{Request{Op: OpCheckout, Branch: "main"}, []string{"checkout", "main"}},
		{Request{Op: OpCheckout, Branch: "feature", CreateFlag: true}, []string{"checkout", "-b", "feature"}},
		{Request{Op: OpPull}, []string{"pull"}},
		{Request{Op: OpPush}, []string{"push"}},
	}
	for _, tc := range cases {
		got, err := BuildArgs(tc.req, nil)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}
}

func TestBuildArgsRejectsMissingRequiredFields(t *testing.T) {
	_, err := BuildArgs(Request{Op: OpClone}, nil)
	assert.Error(t, err)
	_, err = BuildArgs(Request{Op: OpCommit}, nil)
	assert.Error(t, err)
	_, err = BuildArgs(Request{Op: OpAdd}, nil)
	assert.Error(t, err)
	_, err = BuildArgs(Request{Op: OpCheckout}, nil)
	assert.Error(t, err)
}

func TestCloneInjectsCredentialIntoURL(t *testing.T) {
	req := Request{Op: OpClone, RemoteURL: "https://github.com/acme/widgets.git"}
	cred := &Credential{Username: "alice", Token: "ghp_secret"}

	args, err := BuildArgs(req, cred)
	require.NoError(t, err)
	require.Len(t, args, 3)
	assert.Contains(t, args[1], "alice:ghp_secret@github.com")
}

func TestCloneWithoutCredentialLeavesURLUnchanged(t *testing.T) {
	req := Request{Op: OpClone, RemoteURL: "https://github.com/acme/widgets.git"}
	args, err := BuildArgs(req, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/acme/widgets.git", args[1])
}

func TestShellCommandEscapesCommitMessage(t *testing.T) {
	req := Request{Op: OpCommit, Message: "fix: it's broken"}
	cmd, err := ShellCommand(req, nil)
	require.NoError(t, err)
	assert.Equal(t, `git commit -m 'fix: it'"'"'s broken'`, cmd)
}

func TestHostOf(t *testing.T) {
	host, err := HostOf("https://github.com/acme/widgets.git")
	require.NoError(t, err)
	assert.Equal(t, "github.com", host)

	_, err = HostOf("not a url")
	assert.Error(t, err)
}

func TestUnsupportedOpRejected(t *testing.T) {
	_, err := BuildArgs(Request{Op: "fetch-all-the-things"}, nil)
	assert.Error(t, err)
}
