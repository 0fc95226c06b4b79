package search

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, files ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, f := range files {
		full := filepath.Join(root, f)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte("content"), 0o644))
	}
	return root
}

func TestFilesExactSubstringRanksByPosition(t *testing.T) {
	root := writeTree(t, "main.go", "pkg/main_test.go", "pkg/other.go")
	fs := NewFileSearcher()

	matches, truncated, err := fs.Files(context.Background(), root, "main", 10)
	require.NoError(t, err)
	assert.False(t, truncated)
	require.NotEmpty(t, matches)
	assert.Equal(t, "main.go", matches[0].Path)
}

func TestFilesExcludesVendorDirectories(t *testing.T) {
	root := writeTree(t, "app.go", "node_modules/leftpad/index.js", ".git/HEAD")
	fs := NewFileSearcher()

	matches, _, err := fs.Files(context.Background(), root, "", 100)
	require.NoError(t, err)
	for _, m := range matches {
		assert.NotContains(t, m.Path, "node_modules")
		assert.NotContains(t, m.Path, ".git")
	}
}

func TestFilesCapsResultsAndFlagsTruncated(t *testing.T) {
	var files []string
	for i := 0; i < 10; i++ {
		files = append(files, filepath.Join("src", string(rune('a'+i))+".go"))
	}
	root := writeTree(t, files...)
	fs := NewFileSearcher()

	matches, truncated, err := fs.Files(context.Background(), root, "", 3)
	require.NoError(t, err)
	assert.True(t, truncated)
	assert.Len(t, matches, 3)
}

func TestFilesFuzzyFallback(t *testing.T) {
	root := writeTree(t, "src/controller.go", "src/unrelated.go")
	fs := NewFileSearcher()

	matches, _, err := fs.Files(context.Background(), root, "cntl", 10)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, "src/controller.go", matches[0].Path)
}
