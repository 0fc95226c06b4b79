// Package shellquote renders argument lists as a POSIX shell-safe string,
// for commands that must be embedded in a single `bash -lc '...'` or
// `docker exec` string rather than passed as discrete exec.Command args.
// Grounded on the teacher's ShellJoinArgs/shellQuoteArg in
// internal/docker/docker.go.
package shellquote

import "strings"

// Join renders args as a shell-safe string: simple tokens are left bare,
// everything else is single-quoted with internal single quotes escaped
// via the '"'"' pattern.
func Join(args []string) string {
	quoted := make([]string, len(args))
	for i, arg := range args {
		quoted[i] = Quote(arg)
	}
	return strings.Join(quoted, " ")
}

// Quote returns a shell-safe representation of a single argument.
func Quote(arg string) string {
	if arg == "" {
		return "''"
	}
	safe := true
	for _, c := range arg {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') ||
			c == '-' || c == '_' || c == '.' || c == '/' || c == '=' || c == ':' || c == ',') {
			safe = false
			break
		}
	}
	if safe {
		return arg
	}
	escaped := strings.ReplaceAll(arg, `'`, `'"'"'`)
	return "'" + escaped + "'"
}
