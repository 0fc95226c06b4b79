package wslsp

import (
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/cloudide/cloudide/internal/apierr"
	"github.com/cloudide/cloudide/internal/runner/containers"
	"github.com/cloudide/cloudide/internal/runner/policy"
)

// Whitelist maps a language tag to the shell command that starts its
// language server inside the workspace container. Each entry names a
// binary expected to exist in the prebuilt workspace image.
var Whitelist = map[string]string{
	"python":     "pylsp",
	"node-ts":    "typescript-language-server --stdio",
	"typescript": "typescript-language-server --stdio",
	"c":          "clangd",
	"go":         "gopls",
}

// ResolveCommand looks up the shell command for language, or reports
// UNSUPPORTED_LANGUAGE.
func ResolveCommand(language string) (string, error) {
	cmd, ok := Whitelist[language]
	if !ok {
		return "", apierr.New(apierr.UnsupportedLanguage, fmt.Sprintf("no language server registered for %q", language))
	}
	return cmd, nil
}

// Emitter is how the bridge reports decoded LSP frames and log
// notifications back to the caller's WebSocket connection.
type Emitter interface {
	EmitMessage(body []byte) error
	EmitLogMessage(line string) error
}

// Bridge owns one `docker exec -i` language-server process and pumps its
// stdout through a FrameParser, its stderr as window/logMessage lines.
type Bridge struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser

	closeOnce sync.Once
	done      chan struct{}
}

// New spawns the language server for language inside workspaceID's
// container and begins streaming its stdout/stderr to emitter.
func New(workspaceID, language string, emitter Emitter) (*Bridge, error) {
	lspCmd, err := ResolveCommand(language)
	if err != nil {
		return nil, err
	}

	name := policy.ContainerName(workspaceID)
	cmd := exec.Command(containers.DockerBin, "exec", "-i", name, "sh", "-lc", lspCmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("wslsp: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("wslsp: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("wslsp: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("wslsp: start %q: %w", language, err)
	}

	b := &Bridge{cmd: cmd, stdin: stdin, done: make(chan struct{})}
	go b.pumpStdout(stdout, emitter)
	go b.pumpStderr(stderr, emitter)
	return b, nil
}

// WriteMessage encodes body with Content-Length framing and writes it to
// the language server's stdin.
func (b *Bridge) WriteMessage(body []byte) error {
	if b == nil || b.stdin == nil {
		return fmt.Errorf("wslsp: bridge not initialized")
	}
	_, err := b.stdin.Write(EncodeFrame(body))
	return err
}

func (b *Bridge) pumpStdout(stdout io.Reader, emitter Emitter) {
	defer close(b.done)
	parser := NewFrameParser()
	buf := make([]byte, 4096)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			frames, parseErr := parser.Feed(buf[:n])
			if parseErr != nil {
				b.Close()
				return
			}
			for _, f := range frames {
				if emitErr := emitter.EmitMessage(f.Body); emitErr != nil {
					b.Close()
					return
				}
			}
		}
		if err != nil {
			b.Close()
			return
		}
	}
}

func (b *Bridge) pumpStderr(stderr io.Reader, emitter Emitter) {
	buf := make([]byte, 4096)
	var partial []byte
	for {
		n, err := stderr.Read(buf)
		if n > 0 {
			partial = append(partial, buf[:n]...)
			for {
				idx := indexByte(partial, '\n')
				if idx < 0 {
					break
				}
				line := string(partial[:idx])
				partial = partial[idx+1:]
				if line != "" {
					_ = emitter.EmitLogMessage(line)
				}
			}
		}
		if err != nil {
			return
		}
	}
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

// Close terminates the language server process.
func (b *Bridge) Close() {
	if b == nil {
		return
	}
	b.closeOnce.Do(func() {
		if b.stdin != nil {
			_ = b.stdin.Close()
		}
		if b.cmd != nil && b.cmd.Process != nil {
			_ = b.cmd.Process.Kill()
		}
		if b.cmd != nil {
			_ = b.cmd.Wait()
		}
	})
}
