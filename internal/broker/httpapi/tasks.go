package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/cloudide/cloudide/internal/apierr"
	"github.com/cloudide/cloudide/internal/broker/runnerclient"
	"github.com/cloudide/cloudide/internal/httpx"
	"github.com/cloudide/cloudide/internal/idsafety"
)

// taskCommandKey maps a task name to the settings.commands key it
// resolves against. preview is requested as a task but stored under the
// same "preview" settings key used by the workspace's preview command.
var taskCommandKey = map[string]string{
	"run":     "run",
	"build":   "build",
	"test":    "test",
	"preview": "preview",
}

type taskRunRequest struct {
	Task    string `json:"task"`
	Command string `json:"command"`
}

// handleTasks serves POST /tasks/:ws/tasks/run, per spec.md §4.2.
func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	segs := pathSegments("/tasks/", r.URL.Path)
	if len(segs) != 2 || segs[1] != "tasks" {
		httpx.WriteError(w, apierr.NotFound, "not found")
		return
	}
	workspaceID := segs[0]
	if err := idsafety.AssertWorkspaceID(workspaceID); err != nil {
		httpx.WriteAPIErr(w, err)
		return
	}
	if r.Method != http.MethodPost {
		httpx.WriteError(w, apierr.MethodNotAllowed, "method not allowed")
		return
	}

	u := userFromContext(r.Context())
	if _, err := s.store.GetWorkspace(workspaceID, u.ID); err != nil {
		s.writeOwnershipErr(w, err)
		return
	}

	var req taskRunRequest
	if err := decodeJSON(r, &req); err != nil {
		httpx.WriteAPIErr(w, err)
		return
	}

	command := req.Command
	if req.Task != "custom" {
		key, ok := taskCommandKey[req.Task]
		if !ok {
			httpx.WriteError(w, apierr.InvalidPayload, "unknown task")
			return
		}
		set, err := s.store.GetSettings(workspaceID)
		if err != nil {
			httpx.WriteAPIErr(w, apierr.New(apierr.Internal, err.Error()))
			return
		}
		var commands map[string]string
		_ = json.Unmarshal([]byte(set.Commands), &commands)
		command = commands[key]
	}
	if command == "" {
		httpx.WriteError(w, apierr.BadRequest, "no command configured for this task")
		return
	}

	set, err := s.store.GetSettings(workspaceID)
	if err != nil {
		httpx.WriteAPIErr(w, apierr.New(apierr.Internal, err.Error()))
		return
	}
	var env map[string]string
	_ = json.Unmarshal([]byte(set.Environment), &env)

	resp, err := s.runner.Exec(r.Context(), runnerclient.ExecRequest{
		WorkspaceID: workspaceID,
		Cmd:         command,
		Env:         env,
	})
	if err != nil {
		httpx.WriteAPIErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"stdout":   resp.Stdout,
		"stderr":   resp.Stderr,
		"exitCode": resp.ExitCode,
	})
}
