// Package wsterm bridges a workspace container's interactive shell to a
// WebSocket PTY connection. Grounded on the teacher's
// internal/web/terminal_bridge.go (tmuxPTYBridge), generalized from a
// tmux-attach command to `docker exec -it <container> bash -lc 'cd <ws>
// && exec bash'` since this system has no tmux multiplexer layer.
package wsterm

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/gorilla/websocket"

	"github.com/cloudide/cloudide/internal/logging"
	"github.com/cloudide/cloudide/internal/runner/containers"
	"github.com/cloudide/cloudide/internal/shellquote"
)

// Writer abstracts the WebSocket connection a Bridge streams output to.
type Writer struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// NewWriter wraps conn for concurrent-safe writes.
func NewWriter(conn *websocket.Conn) *Writer {
	return &Writer{conn: conn}
}

// WriteJSON writes a JSON server message with a write deadline.
func (w *Writer) WriteJSON(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.conn.WriteJSON(v)
}

// ServerMessage is the JSON envelope sent to the client for non-output
// events (status/error), mirroring the client message shape on the wire.
type ServerMessage struct {
	Type  string `json:"type"`
	Data  string `json:"data,omitempty"`
	Event string `json:"event,omitempty"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`
	Time  string `json:"time,omitempty"`
}

// Bridge pipes a PTY attached to `docker exec -it` into a WebSocket.
type Bridge struct {
	workspaceID string
	writer      *Writer

	cmd  *exec.Cmd
	ptmx *os.File

	closeOnce sync.Once
	done      chan struct{}
}

// New starts a docker-exec PTY for workspaceID's container and begins
// streaming its output over writer.
func New(workspaceID, workDir string, writer *Writer) (*Bridge, error) {
	if workspaceID == "" {
		return nil, fmt.Errorf("wsterm: workspace id is required")
	}
	if writer == nil {
		return nil, fmt.Errorf("wsterm: writer is required")
	}

	cmd := shellCommand(workspaceID, workDir)

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return nil, fmt.Errorf("wsterm: start pty: %w", err)
	}

	b := &Bridge{
		workspaceID: workspaceID,
		writer:      writer,
		cmd:         cmd,
		ptmx:        ptmx,
		done:        make(chan struct{}),
	}
	go b.streamOutput()
	return b, nil
}

// shellCommand builds the `docker exec -it <container> bash -lc 'cd
// <workDir> && exec bash'` invocation for workspaceID.
func shellCommand(workspaceID, workDir string) *exec.Cmd {
	prefix := containers.ExecPrefix(workspaceID)
	shellCmd := fmt.Sprintf("cd %s && exec bash", shellquote.Quote(workDir))
	args := append(append([]string{}, prefix[1:]...), "bash", "-lc", shellCmd)
	return exec.Command(prefix[0], args...)
}

func (b *Bridge) streamOutput() {
	defer close(b.done)

	buf := make([]byte, 4096)
	for {
		n, err := b.ptmx.Read(buf)
		if n > 0 {
			chunk := string(buf[:n])
			logging.Aggregate(logging.CompWS, "pty_output_chunk", slog.String("workspace_id", b.workspaceID))
			if writeErr := b.writer.WriteJSON(ServerMessage{Type: "output", Data: chunk}); writeErr != nil {
				b.Close()
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				_ = b.writer.WriteJSON(ServerMessage{Type: "status", Event: "session_closed"})
			}
			b.Close()
			return
		}
	}
}

// WriteInput forwards client keystrokes to the PTY.
func (b *Bridge) WriteInput(data string) error {
	if b == nil || b.ptmx == nil {
		return fmt.Errorf("wsterm: bridge not initialized")
	}
	if data == "" {
		return nil
	}
	_, err := b.ptmx.Write([]byte(data))
	return err
}

// Resize applies a client-requested terminal size.
func (b *Bridge) Resize(cols, rows int) error {
	if b == nil || b.ptmx == nil {
		return fmt.Errorf("wsterm: bridge not initialized")
	}
	if cols <= 0 || rows <= 0 {
		return fmt.Errorf("wsterm: invalid dimensions: cols=%d rows=%d", cols, rows)
	}
	return pty.Setsize(b.ptmx, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
}

// Close terminates the exec'd shell process group and releases the PTY.
func (b *Bridge) Close() {
	if b == nil {
		return
	}
	b.closeOnce.Do(func() {
		if b.ptmx != nil {
			_ = b.ptmx.Close()
		}
		if b.cmd != nil && b.cmd.Process != nil {
			pgid, err := syscall.Getpgid(b.cmd.Process.Pid)
			if err == nil {
				_ = syscall.Kill(-pgid, syscall.SIGTERM)
			} else {
				_ = b.cmd.Process.Kill()
			}
		}
		if b.cmd != nil {
			_ = b.cmd.Wait()
		}
	})
}
