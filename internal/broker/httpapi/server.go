// Package httpapi is the broker's authenticated REST surface: auth,
// workspace CRUD and settings, file/search/git/task proxying, and the
// preview HTTP proxy's first hop. Grounded on the teacher's
// internal/web/server.go (http.NewServeMux, withRecover, BaseContext
// graceful shutdown) and cloudshipai-station's CORS middleware
// (Access-Control-Allow-{Origin,Methods,Headers} plus an OPTIONS
// short-circuit), generalized from that gin middleware to stdlib
// http.Handler wrapping.
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
	"github.com/cloudide/cloudide/internal/broker/authn"
	"github.com/cloudide/cloudide/internal/broker/config"
	"github.com/cloudide/cloudide/internal/broker/ratelimit"
	"github.com/cloudide/cloudide/internal/broker/runnerclient"
	"github.com/cloudide/cloudide/internal/broker/search"
	"github.com/cloudide/cloudide/internal/broker/store"
	"github.com/cloudide/cloudide/internal/broker/wsgateway"
	"github.com/cloudide/cloudide/internal/crypto"
	"github.com/cloudide/cloudide/internal/httpx"
	"github.com/cloudide/cloudide/internal/logging"
)

var log = logging.ForComponent(logging.CompBroker)

// Server is the broker's HTTP server.
type Server struct {
	cfg    config.Config
	store  *store.Store
	issuer *authn.Issuer
	box    *crypto.Box
	runner *runnerclient.Client
	files  *search.FileSearcher

	gateway *wsgateway.Gateway

	loginLimit *ratelimit.PerIP
	startLimit *ratelimit.PerIP

	httpServer *http.Server
	baseCtx    context.Context
	cancelBase context.CancelFunc
}

// New wires a Server from cfg and its dependencies.
func New(cfg config.Config, st *store.Store, issuer *authn.Issuer, box *crypto.Box, runner *runnerclient.Client) *Server {
	s := &Server{
		cfg:    cfg,
		store:  st,
		issuer: issuer,
		box:    box,
		runner: runner,
		files:  search.NewFileSearcher(),
		gateway: wsgateway.New(wsgateway.Config{
			Issuer:         issuer,
			Store:          st,
			Runner:         runner,
			WorkspacesRoot: cfg.WorkspacesRoot,
			OriginAllowed:  cfg.OriginAllowed,
		}),
		loginLimit: ratelimit.NewPerIP(cfg.LoginRateLimit),
		startLimit: ratelimit.NewPerIP(cfg.RunnerStartRateLimit),
	}
	s.baseCtx, s.cancelBase = context.WithCancel(context.Background())

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)

	mux.HandleFunc("/auth/register", s.handleRegister)
	mux.HandleFunc("/auth/login", s.handleLogin)
	mux.HandleFunc("/auth/me", s.requireAuth(s.handleMe))

	mux.HandleFunc("/workspaces", s.requireAuth(s.handleWorkspaces))
	mux.HandleFunc("/workspaces/", s.requireAuth(s.handleWorkspaceByID))

	mux.HandleFunc("/files/", s.requireAuth(s.handleFiles))
	mux.HandleFunc("/search/", s.requireAuth(s.handleSearch))
	mux.HandleFunc("/git/", s.requireAuth(s.handleGit))
	mux.HandleFunc("/tasks/", s.requireAuth(s.handleTasks))
	mux.HandleFunc("/preview/", s.handlePreview)

	if s.gateway != nil {
		mux.HandleFunc("/ws/files", s.gateway.ServeFiles)
		mux.HandleFunc("/ws/terminal", s.gateway.ServeTerminal)
		mux.HandleFunc("/ws/lsp", s.gateway.ServeLSP)
		mux.HandleFunc("/ws/tasks", s.gateway.ServeTasks)
	}

	s.httpServer = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           withRecover(withCORS(cfg, withRequestLog(mux))),
		BaseContext:       func(_ net.Listener) context.Context { return s.baseCtx },
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
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

// Shutdown gracefully stops the server.
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
			return fmt.Errorf("broker: graceful shutdown timed out and force close failed: %w", closeErr)
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

func withCORS(cfg config.Config, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && cfg.OriginAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Info("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("duration", time.Since(start)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
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

func pathSegments(prefix, path string) []string {
	rest := strings.TrimPrefix(path, prefix)
	rest = strings.Trim(rest, "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}
