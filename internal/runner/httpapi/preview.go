package httpapi

import (
	"net/http"
	"strings"

	"github.com/cloudide/cloudide/internal/apierr"
	"github.com/cloudide/cloudide/internal/httpx"
	"github.com/cloudide/cloudide/internal/idsafety"
	"github.com/cloudide/cloudide/internal/runner/preview"
)

// handlePreview serves ALL /preview/:ws/:port[/suffix], per spec.md §4.8:
// the broker has already validated the session token and workspace
// ownership, so the runner only needs the shared secret (checked by the
// guarded wrapper) plus workspace-id and port validation.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/preview/")
	parts := strings.SplitN(rest, "/", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		httpx.WriteAPIErr(w, apierr.New(apierr.BadRequest, "preview path must be /preview/:workspaceId/:port[/suffix]"))
		return
	}

	workspaceID := parts[0]
	if err := idsafety.AssertWorkspaceID(workspaceID); err != nil {
		httpx.WriteAPIErr(w, err)
		return
	}

	port, err := preview.ParsePort(parts[1])
	if err != nil {
		httpx.WriteAPIErr(w, err)
		return
	}

	suffix := ""
	if len(parts) == 3 {
		suffix = parts[2]
	}

	preview.StripToken(r.URL)

	spec, err := s.cfg.LaunchSpecFor(workspaceID, nil, s.cfg.DefaultAllowEgress, s.cfg.WorkspacesRoot+"/.seccomp")
	if err != nil {
		httpx.WriteAPIErr(w, apierr.New(apierr.ContainerFailed, err.Error()))
		return
	}

	s.preview.ServeHTTP(w, r, spec, port, suffix)
}
