package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cloudide/cloudide/internal/apierr"
	"github.com/cloudide/cloudide/internal/idsafety"
	"github.com/cloudide/cloudide/internal/runner/wsexec"
	"github.com/cloudide/cloudide/internal/runner/wslsp"
	"github.com/cloudide/cloudide/internal/runner/wsterm"
)

// wsUpgrader trusts the shared secret already checked by Server.guarded;
// the runner has no browser-facing origin of its own to police.
var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handlePTY serves /ws/pty?workspaceId=…, per spec.md §4.5.
func (s *Server) handlePTY(w http.ResponseWriter, r *http.Request) {
	workspaceID := queryParam(r, "workspaceId")
	if err := idsafety.AssertWorkspaceID(workspaceID); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	writer := wsterm.NewWriter(conn)
	workDir := s.cfg.WorkspacesRoot + "/" + workspaceID
	bridge, err := wsterm.New(workspaceID, workDir, writer)
	if err != nil {
		log.Error("pty_start_failed", slog.String("workspace_id", workspaceID), slog.String("error", err.Error()))
		_ = writer.WriteJSON(wsterm.ServerMessage{Type: "error", Code: "CONTAINER_FAILED", Error: err.Error()})
		return
	}
	defer bridge.Close()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg clientMessage
		if jsonErr := json.Unmarshal(payload, &msg); jsonErr != nil {
			_ = writer.WriteJSON(wsterm.ServerMessage{Type: "error", Code: "INVALID_PAYLOAD", Error: "invalid json payload"})
			continue
		}

		switch msg.Type {
		case "input":
			if writeErr := bridge.WriteInput(msg.Data); writeErr != nil {
				_ = writer.WriteJSON(wsterm.ServerMessage{Type: "error", Code: "CONTAINER_FAILED", Error: writeErr.Error()})
			}
		case "resize":
			if resizeErr := bridge.Resize(msg.Cols, msg.Rows); resizeErr != nil {
				_ = writer.WriteJSON(wsterm.ServerMessage{Type: "error", Code: "BAD_REQUEST", Error: resizeErr.Error()})
			}
		}
	}
}

type clientMessage struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
	Cols int    `json:"cols,omitempty"`
	Rows int    `json:"rows,omitempty"`

	Cmd string            `json:"cmd,omitempty"`
	Cwd string            `json:"cwd,omitempty"`
	Env map[string]string `json:"env,omitempty"`

	Language string `json:"language,omitempty"`
}

// execEmitter adapts a *websocket.Conn to wsexec.Emitter.
type execEmitter struct {
	conn *connWriter
}

func (e execEmitter) EmitStdout(chunk string) error {
	return e.conn.writeJSON(map[string]any{"type": "stdout", "data": chunk})
}
func (e execEmitter) EmitStderr(chunk string) error {
	return e.conn.writeJSON(map[string]any{"type": "stderr", "data": chunk})
}
func (e execEmitter) EmitExit(code int) error {
	return e.conn.writeJSON(map[string]any{"type": "exit", "code": code})
}

// connWriter serialises concurrent JSON writes to one WebSocket connection.
type connWriter struct {
	conn *websocket.Conn
}

func (c *connWriter) writeJSON(v any) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(v)
}

// handleExecWS serves /ws/exec?workspaceId=…, per spec.md §4.5.
func (s *Server) handleExecWS(w http.ResponseWriter, r *http.Request) {
	workspaceID := queryParam(r, "workspaceId")
	if err := idsafety.AssertWorkspaceID(workspaceID); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	cw := &connWriter{conn: conn}
	emitter := execEmitter{conn: cw}
	workDir := s.cfg.WorkspacesRoot + "/" + workspaceID
	runner := wsexec.New(workspaceID, workDir)
	defer runner.Stop()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg clientMessage
		if jsonErr := json.Unmarshal(payload, &msg); jsonErr != nil {
			_ = cw.writeJSON(map[string]any{"type": "error", "code": "INVALID_PAYLOAD", "error": "invalid json payload"})
			continue
		}
		if msg.Type != "run" {
			continue
		}

		req := wsexec.RunRequest{Cmd: msg.Cmd, Cwd: msg.Cwd, Env: msg.Env}
		go func() {
			if runErr := runner.Run(req, emitter); runErr != nil {
				_ = cw.writeJSON(map[string]any{"type": "error", "code": "CONTAINER_FAILED", "error": runErr.Error()})
			}
		}()
	}
}

// lspEmitter adapts a *websocket.Conn to wslsp.Emitter.
type lspEmitter struct {
	conn *connWriter
}

func (e lspEmitter) EmitMessage(body []byte) error {
	_ = e.conn.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return e.conn.conn.WriteMessage(websocket.TextMessage, body)
}

func (e lspEmitter) EmitLogMessage(line string) error {
	return e.conn.writeJSON(map[string]any{
		"jsonrpc": "2.0",
		"method":  "window/logMessage",
		"params":  map[string]any{"type": 2, "message": line},
	})
}

// handleLSP serves /ws/lsp?workspaceId=…&language=…, per spec.md §4.5.
func (s *Server) handleLSP(w http.ResponseWriter, r *http.Request) {
	workspaceID := queryParam(r, "workspaceId")
	language := queryParam(r, "language")
	if err := idsafety.AssertWorkspaceID(workspaceID); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	cw := &connWriter{conn: conn}
	emitter := lspEmitter{conn: cw}

	bridge, err := wslsp.New(workspaceID, language, emitter)
	if err != nil {
		apiErr := apierr.AsError(err)
		_ = cw.writeJSON(map[string]any{"type": "error", "code": string(apiErr.Kind), "error": apiErr.Message})
		return
	}
	defer bridge.Close()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if writeErr := bridge.WriteMessage(payload); writeErr != nil {
			return
		}
	}
}
