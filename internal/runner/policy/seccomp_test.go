package policy

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveSeccompProfileEmptyPassesThrough(t *testing.T) {
	got, err := ResolveSeccompProfile("", t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "" {
		t.Fatalf("expected empty profile, got %q", got)
	}
}

func TestResolveSeccompProfileExplicitPathPassesThrough(t *testing.T) {
	got, err := ResolveSeccompProfile("/etc/docker/custom.json", t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "/etc/docker/custom.json" {
		t.Fatalf("expected explicit path unchanged, got %q", got)
	}
}

func TestResolveSeccompProfileDefaultMaterializesFile(t *testing.T) {
	dir := t.TempDir()
	got, err := ResolveSeccompProfile("default", dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filepath.Dir(got) != dir {
		t.Fatalf("expected profile under %q, got %q", dir, got)
	}
	data, err := os.ReadFile(got)
	if err != nil {
		t.Fatalf("profile file not written: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty profile contents")
	}
}
