// Package idsafety implements the two gatekeepers of tenant isolation:
// workspace-id validation and workspace-relative path resolution. Both run
// before any storage, filesystem, or container-name derivation, matching
// the teacher's own "sanitize before you touch the filesystem" convention
// in internal/docker/docker.go (sanitizeContainerName) and
// internal/docker/sandbox.go (pathWithin / resolveAndValidateSymlink).
package idsafety

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/cloudide/cloudide/internal/apierr"
)

// uuidV4Shape matches the canonical 8-4-4-4-12 hex-dashed UUID shape.
// The version/variant nibbles are not strictly pinned to 4/8-b: broker-
// generated ids always satisfy it, but the validator's job is to reject
// non-UUID-shaped input before it ever reaches storage or docker naming,
// not to enforce RFC 4122 version bits.
var uuidV4Shape = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// AssertWorkspaceID rejects any string that does not match the strict
// UUID shape. This is the sole path by which user-supplied ids are
// admitted into the storage and container-name layers.
func AssertWorkspaceID(id string) error {
	if !uuidV4Shape.MatchString(id) {
		return apierr.New(apierr.InvalidID, "workspace id must be a UUID")
	}
	return nil
}

// ResolvePath resolves a workspace-relative path against root and fails
// with PATH_ESCAPE if the resolved path would land outside root.
//
// Steps (per the system design): normalise separators, strip one leading
// slash, resolve absolute against root, require the result equals root or
// has root+separator as a prefix.
func ResolvePath(root, rel string) (string, error) {
	normalized := strings.ReplaceAll(rel, "\\", "/")
	normalized = strings.TrimPrefix(normalized, "/")

	cleanRoot := filepath.Clean(root)
	joined := filepath.Join(cleanRoot, filepath.FromSlash(normalized))
	resolved := filepath.Clean(joined)

	if resolved == cleanRoot || strings.HasPrefix(resolved, cleanRoot+string(filepath.Separator)) {
		return resolved, nil
	}
	return "", apierr.New(apierr.PathEscape, fmt.Sprintf("path %q escapes workspace root", rel))
}

// WithinBoundary reports whether child is equal to or a descendant of
// parent, after resolving both through filepath.Clean. Used by the file
// watcher to reject symlinks that resolve outside the workspace root.
func WithinBoundary(child, parent string) bool {
	cleanParent := filepath.Clean(parent)
	cleanChild := filepath.Clean(child)
	rel, err := filepath.Rel(cleanParent, cleanChild)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
