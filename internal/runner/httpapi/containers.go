package httpapi

import (
	"net/http"

	"github.com/cloudide/cloudide/internal/apierr"
	"github.com/cloudide/cloudide/internal/httpx"
	"github.com/cloudide/cloudide/internal/idsafety"
	"github.com/cloudide/cloudide/internal/runner/containers"
)

type startRequest struct {
	WorkspaceID string            `json:"workspaceId"`
	Env         map[string]string `json:"env"`
	AllowEgress bool              `json:"allowEgress"`
}

type startResponse struct {
	ContainerName string `json:"containerName"`
}

func (s *Server) handleContainersStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, apierr.MethodNotAllowed, "method not allowed")
		return
	}

	var req startRequest
	if err := decodeJSON(r, &req); err != nil {
		httpx.WriteAPIErr(w, err)
		return
	}
	if err := idsafety.AssertWorkspaceID(req.WorkspaceID); err != nil {
		httpx.WriteAPIErr(w, err)
		return
	}

	spec, err := s.cfg.LaunchSpecFor(req.WorkspaceID, req.Env, req.AllowEgress, s.cfg.WorkspacesRoot+"/.seccomp")
	if err != nil {
		httpx.WriteAPIErr(w, apierr.New(apierr.ContainerFailed, err.Error()))
		return
	}

	name, err := s.containers.EnsureRunning(r.Context(), spec)
	if err != nil {
		httpx.WriteAPIErr(w, apierr.New(apierr.ContainerFailed, err.Error()))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, startResponse{ContainerName: name})
}

type execRequest struct {
	WorkspaceID string            `json:"workspaceId"`
	Cmd         string            `json:"cmd"`
	Env         map[string]string `json:"env"`
}

type execResponse struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exitCode"`
}

func (s *Server) handleContainersExec(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, apierr.MethodNotAllowed, "method not allowed")
		return
	}

	var req execRequest
	if err := decodeJSON(r, &req); err != nil {
		httpx.WriteAPIErr(w, err)
		return
	}
	if err := idsafety.AssertWorkspaceID(req.WorkspaceID); err != nil {
		httpx.WriteAPIErr(w, err)
		return
	}
	if req.Cmd == "" {
		httpx.WriteAPIErr(w, apierr.New(apierr.InvalidPayload, "cmd is required"))
		return
	}

	workDir := s.cfg.WorkspacesRoot + "/" + req.WorkspaceID
	result, err := containers.Exec(r.Context(), req.WorkspaceID, workDir, req.Cmd, req.Env)
	if err != nil {
		httpx.WriteAPIErr(w, apierr.New(apierr.ContainerFailed, err.Error()))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, execResponse{Stdout: result.Stdout, Stderr: result.Stderr, ExitCode: result.ExitCode})
}

type stopRequest struct {
	WorkspaceID string `json:"workspaceId"`
}

func (s *Server) handleContainersStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, apierr.MethodNotAllowed, "method not allowed")
		return
	}

	var req stopRequest
	if err := decodeJSON(r, &req); err != nil {
		httpx.WriteAPIErr(w, err)
		return
	}
	if err := idsafety.AssertWorkspaceID(req.WorkspaceID); err != nil {
		httpx.WriteAPIErr(w, err)
		return
	}

	if err := containers.Stop(r.Context(), req.WorkspaceID); err != nil {
		httpx.WriteAPIErr(w, apierr.New(apierr.ContainerFailed, err.Error()))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"stopped": true})
}

type statusResponse struct {
	State string `json:"state"`
}

func (s *Server) handleContainersStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, apierr.MethodNotAllowed, "method not allowed")
		return
	}

	workspaceID := queryParam(r, "workspaceId")
	if err := idsafety.AssertWorkspaceID(workspaceID); err != nil {
		httpx.WriteAPIErr(w, err)
		return
	}

	state, err := containers.Status(r.Context(), workspaceID)
	if err != nil {
		httpx.WriteAPIErr(w, apierr.New(apierr.ContainerFailed, err.Error()))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, statusResponse{State: string(state)})
}

type portOpenRequest struct {
	WorkspaceID string `json:"workspaceId"`
	Port        int    `json:"port"`
}

// handlePortOpen is a readiness probe: it reports whether a TCP connect to
// the workspace container's port succeeds, used by the broker before it
// flips a preview link live in the UI.
func (s *Server) handlePortOpen(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, apierr.MethodNotAllowed, "method not allowed")
		return
	}

	var req portOpenRequest
	if err := decodeJSON(r, &req); err != nil {
		httpx.WriteAPIErr(w, err)
		return
	}
	if err := idsafety.AssertWorkspaceID(req.WorkspaceID); err != nil {
		httpx.WriteAPIErr(w, err)
		return
	}
	if req.Port < 1 || req.Port > 65535 {
		httpx.WriteAPIErr(w, apierr.New(apierr.BadRequest, "port must be in 1..65535"))
		return
	}

	open, err := containers.PortOpen(r.Context(), req.WorkspaceID, req.Port)
	if err != nil {
		httpx.WriteAPIErr(w, apierr.New(apierr.ContainerFailed, err.Error()))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"open": open})
}
