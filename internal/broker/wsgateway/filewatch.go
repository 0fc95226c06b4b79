package wsgateway

import (
	"encoding/json"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/gorilla/websocket"

	"github.com/cloudide/cloudide/internal/broker/search"
	"github.com/cloudide/cloudide/internal/idsafety"
)

// maxWatchDepth bounds how many directory levels below the workspace
// root the recursive watcher will register, per spec.md §4.7.
const maxWatchDepth = 24

// fileEvent is the message emitted to the browser on every filesystem
// change, per spec.md §4.7.
type fileEvent struct {
	Event string `json:"event"`
	Path  string `json:"path"`
}

// ServeFiles serves /ws/files, per spec.md §4.7: a local, recursive
// filesystem watcher rooted at the workspace directory, ignore-initial,
// emitting {event, path} for every add/change/unlink/addDir/unlinkDir.
func (g *Gateway) ServeFiles(w http.ResponseWriter, r *http.Request) {
	workspaceID, err := g.authenticate(r)
	if err != nil {
		rejectUpgrade(w, err)
		return
	}
	root := filepath.Join(g.cfg.WorkspacesRoot, workspaceID)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		rejectUpgrade(w, err)
		return
	}
	if err := addRecursive(watcher, root, root, 0); err != nil {
		watcher.Close()
		rejectUpgrade(w, err)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		watcher.Close()
		return
	}
	defer conn.Close()
	defer watcher.Close()

	clientClosed := make(chan struct{})
	go func() {
		defer close(clientClosed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-clientClosed:
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			g.handleFSEvent(watcher, root, ev, conn)
		case ferr, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Warn("watch_error", slog.String("workspace_id", workspaceID), slog.String("error", ferr.Error()))
		}
	}
}

func (g *Gateway) handleFSEvent(watcher *fsnotify.Watcher, root string, ev fsnotify.Event, conn *websocket.Conn) {
	rel, err := filepath.Rel(root, ev.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	isDir := false
	if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
		if info, statErr := os.Stat(ev.Name); statErr == nil {
			isDir = info.IsDir()
		}
	}

	var event string
	switch {
	case ev.Op&fsnotify.Create != 0 && isDir:
		event = "addDir"
		_ = addRecursive(watcher, root, ev.Name, strings.Count(rel, "/")+1)
	case ev.Op&fsnotify.Create != 0:
		event = "add"
	case ev.Op&fsnotify.Write != 0:
		event = "change"
	case ev.Op&fsnotify.Remove != 0 || ev.Op&fsnotify.Rename != 0:
		event = "unlink"
	default:
		return
	}

	payload, err := json.Marshal(fileEvent{Event: event, Path: rel})
	if err != nil {
		return
	}
	_ = conn.WriteMessage(websocket.TextMessage, payload)
}

// addRecursive registers dir and every descendant directory with
// watcher, skipping the default exclude set, symlinks that resolve
// outside root, and anything past maxWatchDepth.
func addRecursive(watcher *fsnotify.Watcher, root, dir string, baseDepth int) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && search.DefaultExcludes[d.Name()] {
			return filepath.SkipDir
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return filepath.SkipDir
		}
		depth := baseDepth
		if rel != "." {
			depth += strings.Count(rel, string(filepath.Separator)) + 1
		}
		if depth > maxWatchDepth {
			return filepath.SkipDir
		}
		resolved, evalErr := filepath.EvalSymlinks(path)
		if evalErr == nil && !idsafety.WithinBoundary(resolved, root) {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}
