// Package wsgateway is the broker's WebSocket upgrade dispatch table: it
// authenticates every upgrade (session JWT + workspace ownership) the
// same way regardless of destination, then either serves the request
// locally (the file watcher) or proxies frames to the matching runner
// WebSocket endpoint. Grounded on the teacher's internal/web/handlers_ws.go
// (gorilla/websocket upgrader, per-route auth-then-upgrade shape) and
// internal/mcppool/socket_proxy.go's bidirectional pump-goroutine pattern,
// generalized from a local stdio bridge to a WebSocket-to-WebSocket relay.
package wsgateway

import (
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cloudide/cloudide/internal/apierr"
	"github.com/cloudide/cloudide/internal/broker/authn"
	"github.com/cloudide/cloudide/internal/broker/runnerclient"
	"github.com/cloudide/cloudide/internal/broker/store"
	"github.com/cloudide/cloudide/internal/idsafety"
	"github.com/cloudide/cloudide/internal/logging"
)

var log = logging.ForComponent(logging.CompWS)

// Config holds the Gateway's dependencies.
type Config struct {
	Issuer         *authn.Issuer
	Store          *store.Store
	Runner         *runnerclient.Client
	WorkspacesRoot string
	// OriginAllowed reports whether a browser Origin header is permitted
	// to open a WebSocket, per spec.md §6's CORS rule.
	OriginAllowed func(origin string) bool
}

// Gateway authenticates and routes the broker's four WebSocket upgrade
// paths: /ws/files (served locally) and /ws/terminal, /ws/lsp, /ws/tasks
// (proxied to the runner's /ws/pty, /ws/lsp, /ws/exec respectively).
type Gateway struct {
	cfg      Config
	upgrader websocket.Upgrader
}

// New builds a Gateway from cfg.
func New(cfg Config) *Gateway {
	g := &Gateway{cfg: cfg}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if cfg.OriginAllowed == nil {
				return true
			}
			return cfg.OriginAllowed(origin)
		},
	}
	return g
}

// authenticate validates the token and workspaceId query parameters
// shared by every one of the gateway's routes (spec.md §4 "all require
// ?token=<jwt>&workspaceId=<uuid>"), returning the workspace id once
// ownership is confirmed.
func (g *Gateway) authenticate(r *http.Request) (string, error) {
	workspaceID := r.URL.Query().Get("workspaceId")
	if err := idsafety.AssertWorkspaceID(workspaceID); err != nil {
		return "", err
	}
	token := r.URL.Query().Get("token")
	if token == "" {
		return "", apierr.New(apierr.Unauthorized, "missing token")
	}
	claims, err := g.cfg.Issuer.VerifyToken(token)
	if err != nil {
		return "", apierr.New(apierr.Unauthorized, "invalid or expired token")
	}
	if _, err := g.cfg.Store.GetWorkspace(workspaceID, claims.Subject); err != nil {
		if err == store.ErrNotFound {
			return "", apierr.New(apierr.NotFound, "workspace not found")
		}
		return "", apierr.New(apierr.Internal, err.Error())
	}
	return workspaceID, nil
}

// rejectUpgrade fails a pre-upgrade request with a plain HTTP error,
// since no WebSocket handshake has happened yet to carry a framed error.
func rejectUpgrade(w http.ResponseWriter, err error) {
	apiErr := apierr.AsError(err)
	http.Error(w, apiErr.Message, apierr.HTTPStatus(apiErr.Kind))
}

// ServeTerminal proxies /ws/terminal to the runner's /ws/pty.
func (g *Gateway) ServeTerminal(w http.ResponseWriter, r *http.Request) {
	g.proxyToRunner(w, r, "/ws/pty", nil)
}

// ServeTasks proxies /ws/tasks to the runner's /ws/exec.
func (g *Gateway) ServeTasks(w http.ResponseWriter, r *http.Request) {
	g.proxyToRunner(w, r, "/ws/exec", nil)
}

// ServeLSP proxies /ws/lsp to the runner's /ws/lsp, forwarding the
// language query parameter the runner uses to resolve the LSP command.
func (g *Gateway) ServeLSP(w http.ResponseWriter, r *http.Request) {
	g.proxyToRunner(w, r, "/ws/lsp", url.Values{"language": {r.URL.Query().Get("language")}})
}

// proxyToRunner authenticates, upgrades the client connection, dials the
// matching runner endpoint with the broker-runner shared secret, and
// relays frames in both directions until either side closes.
func (g *Gateway) proxyToRunner(w http.ResponseWriter, r *http.Request, upstreamPath string, extra url.Values) {
	workspaceID, err := g.authenticate(r)
	if err != nil {
		rejectUpgrade(w, err)
		return
	}

	client, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer client.Close()

	q := url.Values{"workspaceId": {workspaceID}}
	for k, vs := range extra {
		for _, v := range vs {
			if v != "" {
				q.Add(k, v)
			}
		}
	}
	upstreamURL := g.cfg.Runner.WSBaseURL() + upstreamPath + "?" + q.Encode()

	header := http.Header{}
	header.Set("X-Runner-Secret", g.cfg.Runner.Secret())
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	upstream, _, err := dialer.Dial(upstreamURL, header)
	if err != nil {
		log.Error("runner_dial_failed", slog.String("workspace_id", workspaceID), slog.String("path", upstreamPath), slog.String("error", err.Error()))
		_ = client.WriteJSON(map[string]any{"type": "error", "code": string(apierr.UpstreamFailed), "error": "could not reach runner"})
		return
	}
	defer upstream.Close()

	done := make(chan struct{}, 2)
	go pump(upstream, client, done)
	go pump(client, upstream, done)
	<-done
}

// pump copies WebSocket messages read from src onto dst until either
// read or write fails, then signals done exactly once.
func pump(dst, src *websocket.Conn, done chan<- struct{}) {
	defer func() { done <- struct{}{} }()
	for {
		mt, msg, err := src.ReadMessage()
		if err != nil {
			return
		}
		_ = dst.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := dst.WriteMessage(mt, msg); err != nil {
			return
		}
	}
}
