// Package httpapi is the runner's HTTP and WebSocket surface: container
// lifecycle calls, the three streaming WS terminators, and the preview
// reverse proxy. Grounded on the teacher's internal/web/server.go
// (http.NewServeMux, withRecover panic middleware, BaseContext-driven
// graceful shutdown) generalized from a single-process dashboard server
// to the runner's shared-secret-guarded control surface.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cloudide/cloudide/internal/apierr"
	"github.com/cloudide/cloudide/internal/httpx"
	"github.com/cloudide/cloudide/internal/logging"
	"github.com/cloudide/cloudide/internal/runner/authn"
	"github.com/cloudide/cloudide/internal/runner/config"
	"github.com/cloudide/cloudide/internal/runner/containers"
	"github.com/cloudide/cloudide/internal/runner/preview"
)

var log = logging.ForComponent(logging.CompRunner)

// Server is the runner's HTTP server.
type Server struct {
	cfg        config.Config
	guard      *authn.Guard
	containers *containers.Manager
	preview    *preview.Manager

	httpServer *http.Server
	baseCtx    context.Context
	cancelBase context.CancelFunc
}

// New wires a Server listening on cfg.Port, guarding every route with the
// broker-runner shared secret.
func New(cfg config.Config, guard *authn.Guard, cm *containers.Manager) *Server {
	s := &Server{
		cfg:        cfg,
		guard:      guard,
		containers: cm,
		preview:    preview.NewManager(cm),
	}
	s.baseCtx, s.cancelBase = context.WithCancel(context.Background())

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/containers/start", s.guarded(s.handleContainersStart))
	mux.HandleFunc("/containers/exec", s.guarded(s.handleContainersExec))
	mux.HandleFunc("/containers/stop", s.guarded(s.handleContainersStop))
	mux.HandleFunc("/containers/status", s.guarded(s.handleContainersStatus))
	mux.HandleFunc("/containers/port/open", s.guarded(s.handlePortOpen))
	mux.HandleFunc("/ws/pty", s.guarded(s.handlePTY))
	mux.HandleFunc("/ws/exec", s.guarded(s.handleExecWS))
	mux.HandleFunc("/ws/lsp", s.guarded(s.handleLSP))
	mux.HandleFunc("/preview/", s.guarded(s.handlePreview))

	s.httpServer = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           withRecover(mux),
		BaseContext:       func(_ net.Listener) context.Context { return s.baseCtx },
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// guarded wraps next with the shared-secret check, returning UNAUTHORIZED
// before the handler runs.
func (s *Server) guarded(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.guard.Authorize(r) {
			httpx.WriteError(w, apierr.Unauthorized, "invalid or missing runner shared secret")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, apierr.MethodNotAllowed, "method not allowed")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "time": time.Now().UTC().Format(time.RFC3339)})
}

// Start blocks serving until Shutdown is called or ListenAndServe fails.
func (s *Server) Start() error {
	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server, cancelling long-lived WebSocket
// handlers via baseCtx first.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancelBase()
	err := s.httpServer.Shutdown(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		if closeErr := s.httpServer.Close(); closeErr == nil {
			return nil
		} else {
			return fmt.Errorf("runner: graceful shutdown timed out and force close failed: %w", closeErr)
		}
	}
	return err
}

func withRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error("panic", slog.String("recover", fmt.Sprintf("%v", rec)), slog.String("path", r.URL.Path))
				httpx.WriteError(w, apierr.Internal, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apierr.New(apierr.InvalidPayload, err.Error())
	}
	return nil
}

func queryParam(r *http.Request, name string) string {
	return strings.TrimSpace(r.URL.Query().Get(name))
}
