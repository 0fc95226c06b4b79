package idsafety

import (
	"testing"

	"github.com/cloudide/cloudide/internal/apierr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssertWorkspaceID(t *testing.T) {
	require.NoError(t, AssertWorkspaceID("550e8400-e29b-41d4-a716-446655440000"))

	for _, bad := range []string{
		"",
		"not-a-uuid",
		"550e8400e29b41d4a716446655440000",
		"550e8400-e29b-41d4-a716-44665544000",
		"../../etc/passwd",
		"550e8400-e29b-41d4-a716-446655440000; rm -rf /",
	} {
		err := AssertWorkspaceID(bad)
		require.Error(t, err)
		var apiErr *apierr.Error
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, apierr.InvalidID, apiErr.Kind)
	}
}

func TestResolvePath(t *testing.T) {
	root := "/data/workspaces/abc"

	cases := []struct {
		name    string
		rel     string
		want    string
		wantErr bool
	}{
		{name: "simple", rel: "foo/bar.txt", want: "/data/workspaces/abc/foo/bar.txt"},
		{name: "leading slash stripped", rel: "/foo/bar.txt", want: "/data/workspaces/abc/foo/bar.txt"},
		{name: "root itself", rel: "", want: "/data/workspaces/abc"},
		{name: "dot", rel: ".", want: "/data/workspaces/abc"},
		{name: "escape via dotdot", rel: "../../etc/passwd", wantErr: true},
		{name: "escape via mixed traversal", rel: "foo/../../bar", wantErr: true},
		{name: "sibling prefix collision", rel: "../abcdef/secret", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ResolvePath(root, tc.rel)
			if tc.wantErr {
				require.Error(t, err)
				var apiErr *apierr.Error
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, apierr.PathEscape, apiErr.Kind)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestWithinBoundary(t *testing.T) {
	assert.True(t, WithinBoundary("/ws/abc", "/ws/abc"))
	assert.True(t, WithinBoundary("/ws/abc/sub/file.go", "/ws/abc"))
	assert.False(t, WithinBoundary("/ws/abcdef", "/ws/abc"))
	assert.False(t, WithinBoundary("/etc/passwd", "/ws/abc"))
	assert.False(t, WithinBoundary("/ws/abc/../other", "/ws/abc"))
}
