package wsterm

import (
	"reflect"
	"testing"
)

func TestShellCommandBuildsDockerExecInvocation(t *testing.T) {
	cmd := shellCommand("abc-123", "/workspaces/abc-123")

	want := []string{
		"docker", "exec", "-it", "cloudide-ws-abc-123",
		"bash", "-lc", "cd /workspaces/abc-123 && exec bash",
	}
	if !reflect.DeepEqual(cmd.Args, want) {
		t.Fatalf("unexpected args: got %v want %v", cmd.Args, want)
	}
}

func TestShellCommandQuotesWorkDirWithSpaces(t *testing.T) {
	cmd := shellCommand("abc", "/workspaces/my workspace")
	want := "cd '/workspaces/my workspace' && exec bash"
	if cmd.Args[len(cmd.Args)-1] != want {
		t.Fatalf("unexpected shell command: got %q want %q", cmd.Args[len(cmd.Args)-1], want)
	}
}

func TestResizeRejectsNonPositiveDimensions(t *testing.T) {
	b := &Bridge{}
	if err := b.Resize(0, 10); err == nil {
		t.Fatal("expected error for zero cols")
	}
	if err := b.Resize(10, -1); err == nil {
		t.Fatal("expected error for negative rows")
	}
}

func TestWriteInputRequiresInitializedBridge(t *testing.T) {
	b := &Bridge{}
	if err := b.WriteInput("echo hi"); err == nil {
		t.Fatal("expected error on uninitialized bridge")
	}
}
