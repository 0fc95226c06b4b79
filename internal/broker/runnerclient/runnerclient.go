// Package runnerclient is the broker's HTTP client to the runner's
// container-lifecycle API, carrying the shared-secret header on every
// call. Grounded on the teacher's internal/update.checkLatestRelease
// (plain net/http.Client + context + json.Decoder against a JSON API),
// generalized from a one-shot GitHub poll to the broker-runner control
// plane's request/response shapes.
package runnerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cloudide/cloudide/internal/apierr"
)

// Client calls the runner's HTTP surface, authenticating with the
// broker-runner shared secret.
type Client struct {
	baseURL   string
	wsBaseURL string
	secret    string
	http      *http.Client
}

// New builds a Client targeting baseURL (e.g. "http://localhost:8081").
// The WebSocket base defaults to the same host with the scheme swapped
// to ws/wss; call SetWSBaseURL to override it (spec.md §6's separate
// RUNNER_WS_URL variable).
func New(baseURL, secret string) *Client {
	return &Client{
		baseURL:   baseURL,
		wsBaseURL: deriveWSBaseURL(baseURL),
		secret:    secret,
		http:      &http.Client{Timeout: 30 * time.Second},
	}
}

func deriveWSBaseURL(httpBaseURL string) string {
	switch {
	case strings.HasPrefix(httpBaseURL, "https://"):
		return "wss://" + strings.TrimPrefix(httpBaseURL, "https://")
	case strings.HasPrefix(httpBaseURL, "http://"):
		return "ws://" + strings.TrimPrefix(httpBaseURL, "http://")
	default:
		return httpBaseURL
	}
}

// SetWSBaseURL overrides the base URL used for WebSocket dials.
func (c *Client) SetWSBaseURL(wsBaseURL string) {
	c.wsBaseURL = wsBaseURL
}

// StartRequest mirrors the runner's POST /containers/start body.
type StartRequest struct {
	WorkspaceID string            `json:"workspaceId"`
	Env         map[string]string `json:"env,omitempty"`
	AllowEgress bool              `json:"allowEgress"`
}

// StartResponse mirrors the runner's POST /containers/start response.
type StartResponse struct {
	ContainerName string `json:"containerName"`
}

// Start asks the runner to ensure workspaceID's container is running.
func (c *Client) Start(ctx context.Context, req StartRequest) (StartResponse, error) {
	var resp StartResponse
	err := c.call(ctx, http.MethodPost, "/containers/start", req, &resp)
	return resp, err
}

// ExecRequest mirrors the runner's POST /containers/exec body.
type ExecRequest struct {
	WorkspaceID string            `json:"workspaceId"`
	Cmd         string            `json:"cmd"`
	Env         map[string]string `json:"env,omitempty"`
}

// ExecResponse mirrors the runner's POST /containers/exec response.
type ExecResponse struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exitCode"`
}

// Exec runs a one-shot command inside workspaceID's container.
func (c *Client) Exec(ctx context.Context, req ExecRequest) (ExecResponse, error) {
	var resp ExecResponse
	err := c.call(ctx, http.MethodPost, "/containers/exec", req, &resp)
	return resp, err
}

// Stop asks the runner to force-remove workspaceID's container.
func (c *Client) Stop(ctx context.Context, workspaceID string) error {
	return c.call(ctx, http.MethodPost, "/containers/stop", map[string]string{"workspaceId": workspaceID}, nil)
}

// StatusResponse mirrors the runner's GET /containers/status response.
type StatusResponse struct {
	State string `json:"state"`
}

// Status reports the runner-observed state of workspaceID's container.
func (c *Client) Status(ctx context.Context, workspaceID string) (StatusResponse, error) {
	var resp StatusResponse
	path := "/containers/status?" + url.Values{"workspaceId": {workspaceID}}.Encode()
	err := c.call(ctx, http.MethodGet, path, nil, &resp)
	return resp, err
}

// PortOpen reports whether the workspace container's port is accepting
// connections yet.
func (c *Client) PortOpen(ctx context.Context, workspaceID string, port int) (bool, error) {
	var resp struct {
		Open bool `json:"open"`
	}
	err := c.call(ctx, http.MethodPost, "/containers/port/open", map[string]any{"workspaceId": workspaceID, "port": port}, &resp)
	return resp.Open, err
}

// WSBaseURL returns the runner's WebSocket base (e.g. "ws://host:8081"),
// for the gateway to construct an upstream dial URL from.
func (c *Client) WSBaseURL() string {
	return c.wsBaseURL
}

// Secret exposes the shared secret for callers that need to attach it to
// an upgraded (non-HTTP) connection, such as a WebSocket dial or the
// preview proxy's forwarded request.
func (c *Client) Secret() string {
	return c.secret
}

func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("runnerclient: encode request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("runnerclient: build request: %w", err)
	}
	req.Header.Set("X-Runner-Secret", c.secret)
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apierr.New(apierr.UpstreamFailed, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return apierr.New(apierr.UpstreamFailed, fmt.Sprintf("runner returned %d: %s", resp.StatusCode, string(raw)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apierr.New(apierr.UpstreamFailed, fmt.Sprintf("decode runner response: %v", err))
	}
	return nil
}
