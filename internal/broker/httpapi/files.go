package httpapi

import (
	"net/http"
	"os"
	"path/filepath"
	"sort"

	"github.com/cloudide/cloudide/internal/apierr"
	"github.com/cloudide/cloudide/internal/httpx"
	"github.com/cloudide/cloudide/internal/idsafety"
)

// handleFiles routes /files/:ws/{list,read,write,create,rename,delete},
// per spec.md §4.2.
func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	segs := pathSegments("/files/", r.URL.Path)
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
	case "list":
		s.handleFilesList(w, r, root)
	case "read":
		s.handleFilesRead(w, r, root)
	case "write":
		s.handleFilesWrite(w, r, root)
	case "create":
		s.handleFilesCreate(w, r, root)
	case "rename":
		s.handleFilesRename(w, r, root)
	case "delete":
		s.handleFilesDelete(w, r, root)
	default:
		httpx.WriteError(w, apierr.NotFound, "not found")
	}
}

type fileEntry struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	IsDir bool   `json:"isDir"`
	Size  int64  `json:"size"`
}

func (s *Server) handleFilesList(w http.ResponseWriter, r *http.Request, root string) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, apierr.MethodNotAllowed, "method not allowed")
		return
	}
	dir, err := idsafety.ResolvePath(root, queryParam(r, "path"))
	if err != nil {
		httpx.WriteAPIErr(w, err)
		return
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		httpx.WriteAPIErr(w, apierr.New(apierr.NotFound, "directory not found"))
		return
	}
	out := make([]fileEntry, 0, len(entries))
	for _, e := range entries {
		info, infoErr := e.Info()
		var size int64
		if infoErr == nil {
			size = info.Size()
		}
		relPath, _ := filepath.Rel(root, filepath.Join(dir, e.Name()))
		out = append(out, fileEntry{
			Name:  e.Name(),
			Path:  filepath.ToSlash(relPath),
			IsDir: e.IsDir(),
			Size:  size,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (s *Server) handleFilesRead(w http.ResponseWriter, r *http.Request, root string) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, apierr.MethodNotAllowed, "method not allowed")
		return
	}
	path, err := idsafety.ResolvePath(root, queryParam(r, "path"))
	if err != nil {
		httpx.WriteAPIErr(w, err)
		return
	}
	content, err := os.ReadFile(path)
	if err != nil {
		httpx.WriteAPIErr(w, apierr.New(apierr.NotFound, "file not found"))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"content": string(content)})
}

type writeFileRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func (s *Server) handleFilesWrite(w http.ResponseWriter, r *http.Request, root string) {
	if r.Method != http.MethodPut {
		httpx.WriteError(w, apierr.MethodNotAllowed, "method not allowed")
		return
	}
	var req writeFileRequest
	if err := decodeJSON(r, &req); err != nil {
		httpx.WriteAPIErr(w, err)
		return
	}
	path, err := idsafety.ResolvePath(root, req.Path)
	if err != nil {
		httpx.WriteAPIErr(w, err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		httpx.WriteAPIErr(w, apierr.New(apierr.Internal, err.Error()))
		return
	}
	if err := os.WriteFile(path, []byte(req.Content), 0o644); err != nil {
		httpx.WriteAPIErr(w, apierr.New(apierr.Internal, err.Error()))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"written": true})
}

type createFileRequest struct {
	Path string `json:"path"`
	Type string `json:"type"` // "file" or "dir"
}

func (s *Server) handleFilesCreate(w http.ResponseWriter, r *http.Request, root string) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, apierr.MethodNotAllowed, "method not allowed")
		return
	}
	var req createFileRequest
	if err := decodeJSON(r, &req); err != nil {
		httpx.WriteAPIErr(w, err)
		return
	}
	path, err := idsafety.ResolvePath(root, req.Path)
	if err != nil {
		httpx.WriteAPIErr(w, err)
		return
	}

	if req.Type == "dir" {
		if err := os.MkdirAll(path, 0o755); err != nil {
			httpx.WriteAPIErr(w, apierr.New(apierr.Internal, err.Error()))
			return
		}
		httpx.WriteJSON(w, http.StatusCreated, map[string]any{"created": true})
		return
	}

	if _, err := os.Stat(path); err == nil {
		httpx.WriteError(w, apierr.Conflict, "file already exists")
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		httpx.WriteAPIErr(w, apierr.New(apierr.Internal, err.Error()))
		return
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			httpx.WriteError(w, apierr.Conflict, "file already exists")
			return
		}
		httpx.WriteAPIErr(w, apierr.New(apierr.Internal, err.Error()))
		return
	}
	_ = f.Close()
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"created": true})
}

type renameFileRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (s *Server) handleFilesRename(w http.ResponseWriter, r *http.Request, root string) {
	if r.Method != http.MethodPatch {
		httpx.WriteError(w, apierr.MethodNotAllowed, "method not allowed")
		return
	}
	var req renameFileRequest
	if err := decodeJSON(r, &req); err != nil {
		httpx.WriteAPIErr(w, err)
		return
	}
	from, err := idsafety.ResolvePath(root, req.From)
	if err != nil {
		httpx.WriteAPIErr(w, err)
		return
	}
	to, err := idsafety.ResolvePath(root, req.To)
	if err != nil {
		httpx.WriteAPIErr(w, err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(to), 0o755); err != nil {
		httpx.WriteAPIErr(w, apierr.New(apierr.Internal, err.Error()))
		return
	}
	if err := os.Rename(from, to); err != nil {
		httpx.WriteAPIErr(w, apierr.New(apierr.NotFound, err.Error()))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"renamed": true})
}

func (s *Server) handleFilesDelete(w http.ResponseWriter, r *http.Request, root string) {
	if r.Method != http.MethodDelete {
		httpx.WriteError(w, apierr.MethodNotAllowed, "method not allowed")
		return
	}
	path, err := idsafety.ResolvePath(root, queryParam(r, "path"))
	if err != nil {
		httpx.WriteAPIErr(w, err)
		return
	}
	if path == filepath.Clean(root) {
		httpx.WriteAPIErr(w, apierr.New(apierr.BadRequest, "cannot delete the workspace root"))
		return
	}
	if err := os.RemoveAll(path); err != nil {
		httpx.WriteAPIErr(w, apierr.New(apierr.Internal, err.Error()))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"deleted": true})
}
