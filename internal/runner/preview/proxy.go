// Package preview reverse-proxies HTTP requests into a workspace
// container's private network IP, so browser clients can reach
// in-workspace dev servers through the runner. Grounded on
// cuemby-warren's pkg/ingress/proxy.go (httputil.ReverseProxy with a
// custom Director/ErrorHandler, X-Forwarded header injection) — the
// teacher itself has no reverse proxy code.
package preview

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"

	"github.com/cloudide/cloudide/internal/apierr"
	"github.com/cloudide/cloudide/internal/logging"
	"github.com/cloudide/cloudide/internal/runner/containers"
	"github.com/cloudide/cloudide/internal/runner/policy"
)

var previewLog = logging.ForComponent(logging.CompPreview)

// forwardedRequestHeaders is the allow-list of inbound headers copied
// onto the proxied request, per spec.md §4.8.
var forwardedRequestHeaders = []string{"Accept", "User-Agent"}

// Manager ensures a workspace's container is running and proxies HTTP
// requests to it.
type Manager struct {
	containers *containers.Manager
}

// NewManager builds a preview Manager backed by the given container
// lifecycle manager (so the preview path can start a stopped workspace
// on demand, same as the explicit start endpoint).
func NewManager(cm *containers.Manager) *Manager {
	return &Manager{containers: cm}
}

// ParsePort validates the preview port path segment.
func ParsePort(raw string) (int, error) {
	port, err := strconv.Atoi(raw)
	if err != nil || port < 1 || port > 65535 {
		return 0, apierr.New(apierr.BadRequest, fmt.Sprintf("invalid preview port %q", raw))
	}
	return port, nil
}

// ServeHTTP ensures workspaceID's container is running, resolves its
// private IP, and reverse-proxies r to http://<ip>:<port>/<suffix>,
// copying method, query (minus any token param already stripped by the
// caller), and the allow-listed headers, then streaming the response
// body and mirroring response headers except Transfer-Encoding.
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request, spec policy.LaunchSpec, port int, suffix string) {
	ctx := r.Context()

	if _, err := m.containers.EnsureRunning(ctx, spec); err != nil {
		previewLog.Error("ensure_running_failed", slog.String("workspace_id", spec.WorkspaceID), slog.String("error", err.Error()))
		http.Error(w, "workspace container is not available", http.StatusBadGateway)
		return
	}

	ip, err := containers.ContainerIP(ctx, spec.WorkspaceID)
	if err != nil {
		previewLog.Error("resolve_ip_failed", slog.String("workspace_id", spec.WorkspaceID), slog.String("error", err.Error()))
		http.Error(w, "workspace container has no network address", http.StatusBadGateway)
		return
	}

	target := &url.URL{Scheme: "http", Host: fmt.Sprintf("%s:%d", ip, port)}
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.Director = func(req *http.Request) {
		req.URL.Scheme = target.Scheme
		req.URL.Host = target.Host
		req.URL.Path = "/" + suffix
		req.Host = target.Host

		filtered := make(http.Header, len(forwardedRequestHeaders))
		for _, h := range forwardedRequestHeaders {
			if v := r.Header.Get(h); v != "" {
				filtered.Set(h, v)
			}
		}
		req.Header = filtered
	}
	proxy.ModifyResponse = func(resp *http.Response) error {
		resp.Header.Del("Transfer-Encoding")
		return nil
	}
	proxy.ErrorHandler = func(w http.ResponseWriter, _ *http.Request, err error) {
		previewLog.Warn("proxy_error", slog.String("workspace_id", spec.WorkspaceID), slog.String("error", err.Error()))
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	proxy.ServeHTTP(w, r)
}

// StripToken removes the broker session token from a forwarded preview
// request's query string before the request reaches the container, so
// the token never appears in the in-workspace server's own access logs.
func StripToken(u *url.URL) {
	q := u.Query()
	q.Del("token")
	u.RawQuery = q.Encode()
}
