package search

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

const maxTextFileBytes = 2 * 1024 * 1024

// TextMatch is one line hit from a content search.
type TextMatch struct {
	Path       string
	Line       int
	ColumnFrom int
	ColumnTo   int
	Text       string
}

// TextQuery parameterises a content search.
type TextQuery struct {
	Query       string
	IsRegex     bool
	CaseSens    bool
	WholeWord   bool
	IncludeGlob string
	ExcludeGlob string
	MaxResults  int
}

// Text runs a content search over root, preferring ripgrep --json and
// falling back to an in-process scanner when ripgrep is unavailable.
func Text(ctx context.Context, root string, q TextQuery) (matches []TextMatch, truncated bool, err error) {
	if q.IsRegex {
		if _, reErr := regexp.Compile(q.Query); reErr != nil {
			return nil, false, fmt.Errorf("search: invalid regex: %w", reErr)
		}
	}

	limit := q.MaxResults
	if limit <= 0 {
		limit = 500
	}
	if limit > 5000 {
		limit = 5000
	}

	matches, err = textViaRipgrep(ctx, root, q)
	if err != nil {
		matches, err = textViaScan(root, q)
		if err != nil {
			return nil, false, err
		}
	}

	if len(matches) > limit {
		matches = matches[:limit]
		truncated = true
	}
	return matches, truncated, nil
}

type rgMatchData struct {
	Type string `json:"type"`
	Data struct {
		Path struct {
			Text string `json:"text"`
		} `json:"path"`
		Lines struct {
			Text string `json:"text"`
		} `json:"lines"`
		LineNumber int `json:"line_number"`
		Submatches []struct {
			Start int `json:"start"`
			End   int `json:"end"`
		} `json:"submatches"`
	} `json:"data"`
}

func textViaRipgrep(ctx context.Context, root string, q TextQuery) ([]TextMatch, error) {
	args := []string{"--json", "--max-filesize", "2M"}
	if !q.IsRegex {
		args = append(args, "--fixed-strings")
	}
	if !q.CaseSens {
		args = append(args, "--ignore-case")
	}
	if q.WholeWord {
		args = append(args, "--word-regexp")
	}
	if q.IncludeGlob != "" {
		args = append(args, "--glob", q.IncludeGlob)
	}
	if q.ExcludeGlob != "" {
		args = append(args, "--glob", "!"+q.ExcludeGlob)
	}
	args = append(args, "--", q.Query)

	cmd := exec.CommandContext(ctx, "rg", args...)
	cmd.Dir = root
	out, err := cmd.Output()
	if err != nil && len(out) == 0 {
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return nil, nil
		}
		return nil, err
	}

	var matches []TextMatch
	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		var rec rgMatchData
		if jsonErr := json.Unmarshal(scanner.Bytes(), &rec); jsonErr != nil || rec.Type != "match" {
			continue
		}
		colFrom, colTo := 0, 0
		if len(rec.Data.Submatches) > 0 {
			colFrom = byteToCharIndex(rec.Data.Lines.Text, rec.Data.Submatches[0].Start)
			colTo = byteToCharIndex(rec.Data.Lines.Text, rec.Data.Submatches[0].End)
		}
		matches = append(matches, TextMatch{
			Path:       filepath.ToSlash(rec.Data.Path.Text),
			Line:       rec.Data.LineNumber,
			ColumnFrom: colFrom,
			ColumnTo:   colTo,
			Text:       strings.TrimRight(rec.Data.Lines.Text, "\n"),
		})
	}
	return matches, scanner.Err()
}

// byteToCharIndex converts a byte offset into s to a rune (character)
// offset, since ripgrep reports byte positions but the wire format wants
// character columns.
func byteToCharIndex(s string, byteOffset int) int {
	if byteOffset >= len(s) {
		return utf8.RuneCountInString(s)
	}
	return utf8.RuneCountInString(s[:byteOffset])
}

func textViaScan(root string, q TextQuery) ([]TextMatch, error) {
	var matcher func(line string) (int, int, bool)
	if q.IsRegex {
		flags := ""
		if !q.CaseSens {
			flags = "(?i)"
		}
		pattern := q.Query
		if q.WholeWord {
			pattern = `\b(?:` + pattern + `)\b`
		}
		re, err := regexp.Compile(flags + pattern)
		if err != nil {
			return nil, fmt.Errorf("search: invalid regex: %w", err)
		}
		matcher = func(line string) (int, int, bool) {
			loc := re.FindStringIndex(line)
			if loc == nil {
				return 0, 0, false
			}
			return utf8.RuneCountInString(line[:loc[0]]), utf8.RuneCountInString(line[:loc[1]]), true
		}
	} else {
		needle := q.Query
		haystack := func(s string) string { return s }
		if !q.CaseSens {
			needle = strings.ToLower(needle)
			haystack = strings.ToLower
		}
		matcher = func(line string) (int, int, bool) {
			idx := strings.Index(haystack(line), needle)
			if idx < 0 {
				return 0, 0, false
			}
			return utf8.RuneCountInString(line[:idx]), utf8.RuneCountInString(line[:idx+len(needle)]), true
		}
	}

	var matches []TextMatch
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if d.IsDir() {
			if DefaultExcludes[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil || info.Size() > maxTextFileBytes {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return nil
		}
		defer f.Close()

		if isLikelyBinary(f) {
			return nil
		}
		if _, err := f.Seek(0, 0); err != nil {
			return nil
		}

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			line := scanner.Text()
			if from, to, ok := matcher(line); ok {
				matches = append(matches, TextMatch{
					Path: filepath.ToSlash(rel), Line: lineNo,
					ColumnFrom: from, ColumnTo: to, Text: line,
				})
			}
		}
		return nil
	})
	return matches, err
}

// isLikelyBinary sniffs the first 512 bytes of f for a NUL byte.
func isLikelyBinary(f *os.File) bool {
	buf := make([]byte, 512)
	n, _ := f.Read(buf)
	return bytes.IndexByte(buf[:n], 0) != -1
}
