package httpapi

import (
	"net/http"

	"github.com/cloudide/cloudide/internal/apierr"
	"github.com/cloudide/cloudide/internal/broker/gitwrap"
	"github.com/cloudide/cloudide/internal/broker/runnerclient"
	"github.com/cloudide/cloudide/internal/broker/store"
	"github.com/cloudide/cloudide/internal/httpx"
	"github.com/cloudide/cloudide/internal/idsafety"
)

var gitOps = map[string]gitwrap.Op{
	"init":     gitwrap.OpInit,
	"clone":    gitwrap.OpClone,
	"status":   gitwrap.OpStatus,
	"diff":     gitwrap.OpDiff,
	"stage":    gitwrap.OpAdd,
	"unstage":  gitwrap.OpReset,
	"commit":   gitwrap.OpCommit,
	"branches": gitwrap.OpBranch,
	"checkout": gitwrap.OpCheckout,
	"pull":     gitwrap.OpPull,
	"push":     gitwrap.OpPush,
}

// handleGit routes /git/:ws/{op}, per spec.md §4.4.
func (s *Server) handleGit(w http.ResponseWriter, r *http.Request) {
	segs := pathSegments("/git/", r.URL.Path)
	if len(segs) != 2 {
		httpx.WriteError(w, apierr.NotFound, "not found")
		return
	}
	workspaceID, op := segs[0], segs[1]
	if err := idsafety.AssertWorkspaceID(workspaceID); err != nil {
		httpx.WriteAPIErr(w, err)
		return
	}
	u := userFromContext(r.Context())
	if _, err := s.store.GetWorkspace(workspaceID, u.ID); err != nil {
		s.writeOwnershipErr(w, err)
		return
	}

	if op == "credentials" {
		s.handleGitCredentials(w, r, workspaceID)
		return
	}

	gitOp, ok := gitOps[op]
	if !ok {
		httpx.WriteError(w, apierr.NotFound, "not found")
		return
	}
	s.handleGitOp(w, r, workspaceID, gitOp)
}

type gitOpRequest struct {
	Path       string `json:"path"`
	Message    string `json:"message"`
	RemoteURL  string `json:"remoteUrl"`
	Branch     string `json:"branch"`
	CreateFlag bool   `json:"createFlag"`
}

func (s *Server) handleGitOp(w http.ResponseWriter, r *http.Request, workspaceID string, op gitwrap.Op) {
	readOnly := op == gitwrap.OpStatus || op == gitwrap.OpDiff || op == gitwrap.OpBranch
	if readOnly && r.Method != http.MethodGet {
		httpx.WriteError(w, apierr.MethodNotAllowed, "method not allowed")
		return
	}
	if !readOnly && r.Method != http.MethodPost {
		httpx.WriteError(w, apierr.MethodNotAllowed, "method not allowed")
		return
	}

	var body gitOpRequest
	if r.Method == http.MethodPost && r.ContentLength != 0 {
		if err := decodeJSON(r, &body); err != nil {
			httpx.WriteAPIErr(w, err)
			return
		}
	}
	if r.Method == http.MethodGet {
		body.Path = queryParam(r, "path")
	}

	req := gitwrap.Request{
		Op:         op,
		Path:       body.Path,
		Message:    body.Message,
		RemoteURL:  body.RemoteURL,
		Branch:     body.Branch,
		CreateFlag: body.CreateFlag,
	}

	var cred *gitwrap.Credential
	if req.RemoteURL != "" {
		host, err := gitwrap.HostOf(req.RemoteURL)
		if err != nil {
			httpx.WriteAPIErr(w, err)
			return
		}
		row, err := s.store.GetGitCredential(workspaceID, host)
		if err == nil {
			token, decErr := s.box.Decrypt(row.Secret)
			if decErr != nil {
				httpx.WriteAPIErr(w, apierr.New(apierr.Internal, decErr.Error()))
				return
			}
			cred = &gitwrap.Credential{Username: row.Username, Token: token}
		} else if err != store.ErrNotFound {
			httpx.WriteAPIErr(w, apierr.New(apierr.Internal, err.Error()))
			return
		}
	}

	shellCmd, err := gitwrap.ShellCommand(req, cred)
	if err != nil {
		httpx.WriteAPIErr(w, err)
		return
	}

	resp, err := s.runner.Exec(r.Context(), runnerclient.ExecRequest{
		WorkspaceID: workspaceID,
		Cmd:         shellCmd,
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

type gitCredentialRequest struct {
	Host     string `json:"host"`
	Username string `json:"username"`
	Token    string `json:"token"`
}

func (s *Server) handleGitCredentials(w http.ResponseWriter, r *http.Request, workspaceID string) {
	switch r.Method {
	case http.MethodPost:
		var req gitCredentialRequest
		if err := decodeJSON(r, &req); err != nil {
			httpx.WriteAPIErr(w, err)
			return
		}
		if req.Host == "" || req.Token == "" {
			httpx.WriteError(w, apierr.InvalidPayload, "host and token are required")
			return
		}
		cipherText, err := s.box.Encrypt(req.Token)
		if err != nil {
			httpx.WriteAPIErr(w, apierr.New(apierr.Internal, err.Error()))
			return
		}
		if err := s.store.UpsertGitCredential(store.GitCredential{
			WorkspaceID: workspaceID,
			Host:        req.Host,
			Username:    req.Username,
			Secret:      cipherText,
		}); err != nil {
			httpx.WriteAPIErr(w, apierr.New(apierr.Internal, err.Error()))
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"saved": true})

	case http.MethodDelete:
		host := queryParam(r, "host")
		if host == "" {
			httpx.WriteError(w, apierr.InvalidPayload, "host is required")
			return
		}
		if err := s.store.DeleteGitCredential(workspaceID, host); err != nil {
			httpx.WriteAPIErr(w, apierr.New(apierr.Internal, err.Error()))
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"deleted": true})

	default:
		httpx.WriteError(w, apierr.MethodNotAllowed, "method not allowed")
	}
}
