package search

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTreeWithContent(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		full := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	return root
}

func TestTextViaScanFindsSubstring(t *testing.T) {
	root := writeTreeWithContent(t, map[string]string{
		"main.go": "package main\n\nfunc main() {\n\tfmt.Println(\"hello world\")\n}\n",
	})

	matches, err := textViaScan(root, TextQuery{Query: "hello world"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "main.go", matches[0].Path)
	assert.Equal(t, 4, matches[0].Line)
}

func TestTextViaScanCaseInsensitiveByDefault(t *testing.T) {
	root := writeTreeWithContent(t, map[string]string{
		"a.txt": "Hello World\n",
	})

	matches, err := textViaScan(root, TextQuery{Query: "hello world", CaseSens: false})
	require.NoError(t, err)
	require.Len(t, matches, 1)
}

func TestTextViaScanRegex(t *testing.T) {
	root := writeTreeWithContent(t, map[string]string{
		"a.txt": "version = 1.2.3\n",
	})

	matches, err := textViaScan(root, TextQuery{Query: `\d+\.\d+\.\d+`, IsRegex: true})
	require.NoError(t, err)
	require.Len(t, matches, 1)
}

func TestTextViaScanSkipsBinaryFiles(t *testing.T) {
	root := writeTreeWithContent(t, map[string]string{
		"binary.dat": "hello\x00world",
	})

	matches, err := textViaScan(root, TextQuery{Query: "hello"})
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestTextRejectsInvalidRegex(t *testing.T) {
	root := writeTreeWithContent(t, map[string]string{"a.txt": "x"})
	_, _, err := Text(context.Background(), root, TextQuery{Query: "(", IsRegex: true})
	assert.Error(t, err)
}
