package httpapi

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/cloudide/cloudide/internal/apierr"
	"github.com/cloudide/cloudide/internal/broker/store"
	"github.com/cloudide/cloudide/internal/httpx"
	"github.com/cloudide/cloudide/internal/idsafety"
)

// handlePreview serves ALL /preview/:workspaceId/:port[/suffix]?token=..,
// per spec.md §4.8. The session token arrives as a query parameter
// because browsers cannot attach an Authorization header to an <iframe>
// request; this handler validates it out-of-band and re-checks workspace
// ownership before forwarding to the runner with the broker-runner shared
// secret, which is the credential the runner actually trusts.
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
	if _, err := parsePreviewPort(parts[1]); err != nil {
		httpx.WriteAPIErr(w, err)
		return
	}

	token := queryParam(r, "token")
	if token == "" {
		httpx.WriteError(w, apierr.Unauthorized, "missing token")
		return
	}
	claims, err := s.issuer.VerifyToken(token)
	if err != nil {
		httpx.WriteError(w, apierr.Unauthorized, "invalid or expired token")
		return
	}
	if _, err := s.store.GetWorkspace(workspaceID, claims.Subject); err != nil {
		if err == store.ErrNotFound {
			httpx.WriteError(w, apierr.NotFound, "workspace not found")
			return
		}
		httpx.WriteAPIErr(w, apierr.New(apierr.Internal, err.Error()))
		return
	}

	target, err := url.Parse(s.cfg.RunnerURL)
	if err != nil {
		httpx.WriteAPIErr(w, apierr.New(apierr.Internal, "invalid runner url"))
		return
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.Director = func(req *http.Request) {
		req.URL.Scheme = target.Scheme
		req.URL.Host = target.Host
		req.URL.Path = r.URL.Path
		req.Host = target.Host

		q := r.URL.Query()
		q.Del("token")
		req.URL.RawQuery = q.Encode()

		req.Header.Set("X-Runner-Secret", s.runner.Secret())
	}
	proxy.ModifyResponse = func(resp *http.Response) error {
		resp.Header.Del("Transfer-Encoding")
		return nil
	}
	proxy.ErrorHandler = func(w http.ResponseWriter, _ *http.Request, err error) {
		httpx.WriteAPIErr(w, apierr.New(apierr.UpstreamFailed, err.Error()))
	}

	proxy.ServeHTTP(w, r)
}

func parsePreviewPort(raw string) (int, error) {
	port := 0
	for _, c := range raw {
		if c < '0' || c > '9' {
			return 0, apierr.New(apierr.BadRequest, "invalid preview port")
		}
		port = port*10 + int(c-'0')
		if port > 65535 {
			return 0, apierr.New(apierr.BadRequest, "invalid preview port")
		}
	}
	if port < 1 {
		return 0, apierr.New(apierr.BadRequest, "invalid preview port")
	}
	return port, nil
}
