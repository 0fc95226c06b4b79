// Package search implements workspace file-name and text-content search.
// File enumeration prefers the ripgrep binary with a filesystem-walk
// fallback, mirroring the teacher's layered "fast path, honest fallback"
// pattern in internal/session/global_search.go. Fuzzy ranking uses
// github.com/sahilm/fuzzy, already a teacher dependency.
package search

import (
	"bufio"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sahilm/fuzzy"
)

// DefaultExcludes are directory names skipped by the filesystem-walk
// fallback when ripgrep is unavailable.
var DefaultExcludes = map[string]bool{
	".git":         true,
	"node_modules": true,
	"dist":         true,
	"build":        true,
	".next":        true,
	"coverage":     true,
}

const fileListTTL = 10 * time.Second

// FileMatch is one ranked file-name search hit.
type FileMatch struct {
	Path  string
	Score int
}

// FileSearcher caches a workspace's file list for fileListTTL and ranks
// matches against it.
type FileSearcher struct {
	mu    sync.Mutex
	cache map[string]cachedList
}

type cachedList struct {
	files    []string
	cachedAt time.Time
}

// NewFileSearcher constructs an empty, ready-to-use searcher.
func NewFileSearcher() *FileSearcher {
	return &FileSearcher{cache: make(map[string]cachedList)}
}

// Files returns the ranked file-name matches for query under root,
// capped at limit (0 means the caller's default).
func (fs *FileSearcher) Files(ctx context.Context, root, query string, limit int) (matches []FileMatch, truncated bool, err error) {
	files, err := fs.listFiles(ctx, root)
	if err != nil {
		return nil, false, err
	}

	if query == "" {
		matches = make([]FileMatch, 0, len(files))
		for _, f := range files {
			matches = append(matches, FileMatch{Path: f, Score: 0})
		}
	} else {
		matches = rankFiles(files, query)
	}

	if limit <= 0 {
		limit = 500
	}
	if limit > 5000 {
		limit = 5000
	}
	if len(matches) > limit {
		matches = matches[:limit]
		truncated = true
	}
	return matches, truncated, nil
}

func (fs *FileSearcher) listFiles(ctx context.Context, root string) ([]string, error) {
	fs.mu.Lock()
	if entry, ok := fs.cache[root]; ok && time.Since(entry.cachedAt) < fileListTTL {
		fs.mu.Unlock()
		return entry.files, nil
	}
	fs.mu.Unlock()

	files, err := listViaRipgrep(ctx, root)
	if err != nil {
		files, err = listViaWalk(root)
		if err != nil {
			return nil, err
		}
	}

	fs.mu.Lock()
	fs.cache[root] = cachedList{files: files, cachedAt: time.Now()}
	fs.mu.Unlock()
	return files, nil
}

func listViaRipgrep(ctx context.Context, root string) ([]string, error) {
	cmd := exec.CommandContext(ctx, "rg", "--files")
	cmd.Dir = root
	out, err := cmd.Output()
	if err != nil {
		return nil, err
	}
	var files []string
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line != "" {
			files = append(files, filepath.ToSlash(line))
		}
	}
	return files, scanner.Err()
}

func listViaWalk(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if DefaultExcludes[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	return files, err
}

// rankFiles scores every candidate against query: exact substring hits
// rank by position and length. Everything else goes through
// sahilm/fuzzy's in-order character scan, whose MatchedIndexes give us
// the match span and gap count the scoring formula needs. Ties break
// lexicographically.
func rankFiles(files []string, query string) []FileMatch {
	lowerQuery := strings.ToLower(query)
	exact := make(map[string]bool, len(files))
	matches := make([]FileMatch, 0, len(files))

	for _, f := range files {
		lowerF := strings.ToLower(f)
		if idx := strings.Index(lowerF, lowerQuery); idx >= 0 {
			exact[f] = true
			score := 10000 - idx*10 - minInt(len(f), 500)
			matches = append(matches, FileMatch{Path: f, Score: score})
		}
	}

	remaining := make([]string, 0, len(files))
	for _, f := range files {
		if !exact[f] {
			remaining = append(remaining, strings.ToLower(f))
		}
	}
	fuzzyMatches := fuzzy.Find(lowerQuery, remaining)
	remainingOrig := make([]string, 0, len(files))
	for _, f := range files {
		if !exact[f] {
			remainingOrig = append(remainingOrig, f)
		}
	}
	for _, m := range fuzzyMatches {
		orig := remainingOrig[m.Index]
		span, gaps := spanAndGaps(m.MatchedIndexes)
		score := 2000 - span*5 - gaps*3 - minInt(len(orig), 500)
		matches = append(matches, FileMatch{Path: orig, Score: score})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Path < matches[j].Path
	})
	return matches
}

// spanAndGaps derives the match window size and the number of
// non-matching runes skipped inside it from a sorted list of matched
// rune indexes.
func spanAndGaps(indexes []int) (span, gaps int) {
	if len(indexes) == 0 {
		return 0, 0
	}
	first, last := indexes[0], indexes[len(indexes)-1]
	span = last - first + 1
	covered := len(indexes)
	gaps = span - covered
	return span, gaps
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
