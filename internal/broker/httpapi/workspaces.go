package httpapi

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/cloudide/cloudide/internal/apierr"
	"github.com/cloudide/cloudide/internal/broker/runnerclient"
	"github.com/cloudide/cloudide/internal/broker/store"
	"github.com/cloudide/cloudide/internal/httpx"
	"github.com/cloudide/cloudide/internal/idsafety"
)

type workspacePublic struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Template  string    `json:"template"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toPublic(w store.Workspace) workspacePublic {
	return workspacePublic{ID: w.ID, Name: w.Name, Template: w.Template, CreatedAt: w.CreatedAt, UpdatedAt: w.UpdatedAt}
}

type createWorkspaceRequest struct {
	Name     string `json:"name"`
	Template string `json:"template"`
}

// handleWorkspaces serves GET/POST /workspaces.
func (s *Server) handleWorkspaces(w http.ResponseWriter, r *http.Request) {
	u := userFromContext(r.Context())

	switch r.Method {
	case http.MethodGet:
		workspaces, err := s.store.ListWorkspaces(u.ID)
		if err != nil {
			httpx.WriteAPIErr(w, apierr.New(apierr.Internal, err.Error()))
			return
		}
		out := make([]workspacePublic, 0, len(workspaces))
		for _, ws := range workspaces {
			out = append(out, toPublic(ws))
		}
		httpx.WriteJSON(w, http.StatusOK, out)

	case http.MethodPost:
		s.createWorkspace(w, r, u)

	default:
		httpx.WriteError(w, apierr.MethodNotAllowed, "method not allowed")
	}
}

func (s *Server) createWorkspace(w http.ResponseWriter, r *http.Request, u authedUser) {
	var req createWorkspaceRequest
	if err := decodeJSON(r, &req); err != nil {
		httpx.WriteAPIErr(w, err)
		return
	}
	if len(req.Name) < 2 || len(req.Name) > 120 {
		httpx.WriteError(w, apierr.InvalidPayload, "name must be 2-120 characters")
		return
	}
	if _, ok := templateFiles[req.Template]; !ok {
		httpx.WriteError(w, apierr.InvalidPayload, "unknown template")
		return
	}

	now := time.Now().UTC()
	ws := store.Workspace{
		ID:        uuid.NewString(),
		UserID:    u.ID,
		Name:      req.Name,
		Template:  req.Template,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateWorkspace(ws, store.Settings{
		WorkspaceID: ws.ID,
		Environment: "{}",
		Commands:    "{}",
		LSPEnabled:  "{}",
		AllowEgress: s.cfg.DefaultAllowEgress,
		UpdatedAt:   now,
	}); err != nil {
		httpx.WriteAPIErr(w, apierr.New(apierr.Internal, err.Error()))
		return
	}

	root := s.workspaceRoot(ws.ID)
	if err := os.MkdirAll(root, 0o755); err != nil {
		httpx.WriteAPIErr(w, apierr.New(apierr.Internal, err.Error()))
		return
	}
	if err := scaffoldTemplate(root, req.Template); err != nil {
		httpx.WriteAPIErr(w, apierr.New(apierr.Internal, err.Error()))
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, toPublic(ws))
}

func (s *Server) workspaceRoot(workspaceID string) string {
	return s.cfg.WorkspacesRoot + "/" + workspaceID
}

// handleWorkspaceByID routes /workspaces/:id[/settings|/start|/stop].
func (s *Server) handleWorkspaceByID(w http.ResponseWriter, r *http.Request) {
	segs := pathSegments("/workspaces/", r.URL.Path)
	if len(segs) == 0 {
		httpx.WriteError(w, apierr.InvalidID, "workspace id is required")
		return
	}

	workspaceID := segs[0]
	if err := idsafety.AssertWorkspaceID(workspaceID); err != nil {
		httpx.WriteAPIErr(w, err)
		return
	}

	u := userFromContext(r.Context())

	switch {
	case len(segs) == 1:
		s.handleWorkspaceRoot(w, r, u, workspaceID)
	case len(segs) == 2 && segs[1] == "settings":
		s.handleWorkspaceSettings(w, r, u, workspaceID)
	case len(segs) == 2 && segs[1] == "start":
		s.handleWorkspaceStart(w, r, u, workspaceID)
	case len(segs) == 2 && segs[1] == "stop":
		s.handleWorkspaceStop(w, r, u, workspaceID)
	default:
		httpx.WriteError(w, apierr.NotFound, "not found")
	}
}

func (s *Server) handleWorkspaceRoot(w http.ResponseWriter, r *http.Request, u authedUser, workspaceID string) {
	switch r.Method {
	case http.MethodGet:
		ws, err := s.store.GetWorkspace(workspaceID, u.ID)
		if err != nil {
			s.writeOwnershipErr(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, toPublic(*ws))

	case http.MethodPatch:
		var req struct {
			Name string `json:"name"`
		}
		if err := decodeJSON(r, &req); err != nil {
			httpx.WriteAPIErr(w, err)
			return
		}
		if len(req.Name) < 2 || len(req.Name) > 120 {
			httpx.WriteError(w, apierr.InvalidPayload, "name must be 2-120 characters")
			return
		}
		updatedAt := time.Now().UTC()
		if err := s.store.RenameWorkspace(workspaceID, u.ID, req.Name, updatedAt); err != nil {
			s.writeOwnershipErr(w, err)
			return
		}
		ws, err := s.store.GetWorkspace(workspaceID, u.ID)
		if err != nil {
			s.writeOwnershipErr(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, toPublic(*ws))

	case http.MethodDelete:
		if err := s.store.DeleteWorkspace(workspaceID, u.ID); err != nil {
			s.writeOwnershipErr(w, err)
			return
		}
		_ = os.RemoveAll(s.workspaceRoot(workspaceID))
		_ = s.runner.Stop(r.Context(), workspaceID)
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"deleted": true})

	default:
		httpx.WriteError(w, apierr.MethodNotAllowed, "method not allowed")
	}
}

func (s *Server) writeOwnershipErr(w http.ResponseWriter, err error) {
	if err == store.ErrNotFound {
		httpx.WriteError(w, apierr.NotFound, "workspace not found")
		return
	}
	httpx.WriteAPIErr(w, apierr.New(apierr.Internal, err.Error()))
}

type settingsPublic struct {
	Environment map[string]string `json:"environment"`
	Commands    map[string]string `json:"commands"`
	PreviewPort int               `json:"previewPort"`
	LSPEnabled  map[string]bool   `json:"lspEnabled"`
	AllowEgress bool              `json:"allowEgress"`
}

func (s *Server) handleWorkspaceSettings(w http.ResponseWriter, r *http.Request, u authedUser, workspaceID string) {
	if _, err := s.store.GetWorkspace(workspaceID, u.ID); err != nil {
		s.writeOwnershipErr(w, err)
		return
	}

	switch r.Method {
	case http.MethodGet:
		set, err := s.store.GetSettings(workspaceID)
		if err != nil {
			httpx.WriteAPIErr(w, apierr.New(apierr.Internal, err.Error()))
			return
		}
		httpx.WriteJSON(w, http.StatusOK, decodeSettings(*set))

	case http.MethodPut:
		var req settingsPublic
		if err := decodeJSON(r, &req); err != nil {
			httpx.WriteAPIErr(w, err)
			return
		}
		env, _ := json.Marshal(req.Environment)
		commands, _ := json.Marshal(req.Commands)
		lsp, _ := json.Marshal(req.LSPEnabled)
		set := store.Settings{
			WorkspaceID: workspaceID,
			Environment: string(env),
			Commands:    string(commands),
			PreviewPort: req.PreviewPort,
			LSPEnabled:  string(lsp),
			AllowEgress: req.AllowEgress,
			UpdatedAt:   time.Now().UTC(),
		}
		if err := s.store.UpsertSettings(set); err != nil {
			httpx.WriteAPIErr(w, apierr.New(apierr.Internal, err.Error()))
			return
		}
		httpx.WriteJSON(w, http.StatusOK, decodeSettings(set))

	default:
		httpx.WriteError(w, apierr.MethodNotAllowed, "method not allowed")
	}
}

func decodeSettings(set store.Settings) settingsPublic {
	var out settingsPublic
	_ = json.Unmarshal([]byte(set.Environment), &out.Environment)
	_ = json.Unmarshal([]byte(set.Commands), &out.Commands)
	_ = json.Unmarshal([]byte(set.LSPEnabled), &out.LSPEnabled)
	out.PreviewPort = set.PreviewPort
	out.AllowEgress = set.AllowEgress
	return out
}

func (s *Server) handleWorkspaceStart(w http.ResponseWriter, r *http.Request, u authedUser, workspaceID string) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, apierr.MethodNotAllowed, "method not allowed")
		return
	}
	if !s.startLimit.Allow(clientIP(r)) {
		httpx.WriteError(w, apierr.RateLimited, "too many start requests, try again later")
		return
	}
	if _, err := s.store.GetWorkspace(workspaceID, u.ID); err != nil {
		s.writeOwnershipErr(w, err)
		return
	}

	set, err := s.store.GetSettings(workspaceID)
	if err != nil {
		httpx.WriteAPIErr(w, apierr.New(apierr.Internal, err.Error()))
		return
	}
	var env map[string]string
	_ = json.Unmarshal([]byte(set.Environment), &env)

	resp, err := s.runner.Start(r.Context(), runnerclient.StartRequest{
		WorkspaceID: workspaceID,
		Env:         env,
		AllowEgress: set.AllowEgress,
	})
	if err != nil {
		httpx.WriteAPIErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"containerName": resp.ContainerName})
}

func (s *Server) handleWorkspaceStop(w http.ResponseWriter, r *http.Request, u authedUser, workspaceID string) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, apierr.MethodNotAllowed, "method not allowed")
		return
	}
	if _, err := s.store.GetWorkspace(workspaceID, u.ID); err != nil {
		s.writeOwnershipErr(w, err)
		return
	}
	if err := s.runner.Stop(r.Context(), workspaceID); err != nil {
		httpx.WriteAPIErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"stopped": true})
}
