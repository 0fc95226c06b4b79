package httpapi

import (
	"net/http"
	"strconv"

	"github.com/cloudide/cloudide/internal/apierr"
	"github.com/cloudide/cloudide/internal/broker/search"
	"github.com/cloudide/cloudide/internal/httpx"
	"github.com/cloudide/cloudide/internal/idsafety"
)

// handleSearch routes /search/:ws/{files,text}, per spec.md §4.3.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	segs := pathSegments("/search/", r.URL.Path)
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
	root := s.workspaceRoot(workspaceID)

	switch op {
	case "files":
		s.handleSearchFiles(w, r, root)
	case "text":
		s.handleSearchText(w, r, root)
	default:
		httpx.WriteError(w, apierr.NotFound, "not found")
	}
}

func (s *Server) handleSearchFiles(w http.ResponseWriter, r *http.Request, root string) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, apierr.MethodNotAllowed, "method not allowed")
		return
	}
	limit, _ := strconv.Atoi(queryParam(r, "limit"))
	matches, truncated, err := s.files.Files(r.Context(), root, queryParam(r, "q"), limit)
	if err != nil {
		httpx.WriteAPIErr(w, apierr.New(apierr.Internal, err.Error()))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"matches": matches, "truncated": truncated})
}

type textSearchRequest struct {
	Query       string `json:"query"`
	IsRegex     bool   `json:"isRegex"`
	CaseSens    bool   `json:"caseSens"`
	WholeWord   bool   `json:"wholeWord"`
	IncludeGlob string `json:"includeGlob"`
	ExcludeGlob string `json:"excludeGlob"`
	MaxResults  int    `json:"maxResults"`
}

func (s *Server) handleSearchText(w http.ResponseWriter, r *http.Request, root string) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, apierr.MethodNotAllowed, "method not allowed")
		return
	}
	var req textSearchRequest
	if err := decodeJSON(r, &req); err != nil {
		httpx.WriteAPIErr(w, err)
		return
	}
	if req.Query == "" {
		httpx.WriteError(w, apierr.InvalidPayload, "query is required")
		return
	}

	matches, truncated, err := search.Text(r.Context(), root, search.TextQuery{
		Query:       req.Query,
		IsRegex:     req.IsRegex,
		CaseSens:    req.CaseSens,
		WholeWord:   req.WholeWord,
		IncludeGlob: req.IncludeGlob,
		ExcludeGlob: req.ExcludeGlob,
		MaxResults:  req.MaxResults,
	})
	if err != nil {
		httpx.WriteError(w, apierr.InvalidPayload, err.Error())
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"matches": matches, "truncated": truncated})
}
