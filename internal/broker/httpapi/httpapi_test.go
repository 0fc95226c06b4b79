package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudide/cloudide/internal/broker/authn"
	"github.com/cloudide/cloudide/internal/broker/config"
	"github.com/cloudide/cloudide/internal/broker/ratelimit"
	"github.com/cloudide/cloudide/internal/broker/runnerclient"
	"github.com/cloudide/cloudide/internal/broker/store"
	"github.com/cloudide/cloudide/internal/crypto"
)

// newTestAPI wires a Server against an in-memory store and a stub runner,
// the same shape newTestStore gives the store package's own tests.
func newTestAPI(t *testing.T) *httptest.Server {
	t.Helper()

	st, err := store.Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.Migrate())
	t.Cleanup(func() { _ = st.Close() })

	runnerStub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/containers/start":
			_ = json.NewEncoder(w).Encode(map[string]string{"containerName": "cloudide-ws-test"})
		case "/containers/exec":
			_ = json.NewEncoder(w).Encode(map[string]any{"stdout": "", "stderr": "", "exitCode": 0})
		default:
			_ = json.NewEncoder(w).Encode(map[string]any{})
		}
	}))
	t.Cleanup(runnerStub.Close)

	cfg := config.Config{
		Port:                 "0",
		CORSOrigin:           "*",
		JWTSecret:            "test-secret",
		JWTExpiresIn:         time.Hour,
		AppEncryptionKey:     "test-encryption-key",
		WorkspacesRoot:       t.TempDir(),
		RunnerURL:            runnerStub.URL,
		RunnerSharedSecret:   "shared-secret",
		LoginRateLimit:       ratelimit.Config{Max: 1000, Window: time.Minute},
		RunnerStartRateLimit: ratelimit.Config{Max: 1000, Window: time.Minute},
	}

	issuer := authn.NewIssuer(cfg.JWTSecret, cfg.JWTExpiresIn)
	box, err := crypto.NewBox(cfg.AppEncryptionKey)
	require.NoError(t, err)
	runner := runnerclient.New(cfg.RunnerURL, cfg.RunnerSharedSecret)

	srv := New(cfg, st, issuer, box, runner)
	ts := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func registerUser(t *testing.T, baseURL, email string) (token, userID string) {
	t.Helper()
	resp, out := doJSON(t, http.MethodPost, baseURL+"/auth/register", "", map[string]string{
		"email":    email,
		"password": "correct-horse-battery",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	token, _ = out["token"].(string)
	user, _ := out["user"].(map[string]any)
	userID, _ = user["id"].(string)
	require.NotEmpty(t, token)
	require.NotEmpty(t, userID)
	return token, userID
}

func TestRegisterDuplicateEmailIsConflict(t *testing.T) {
	ts := newTestAPI(t)

	registerUser(t, ts.URL, "alice@example.com")

	resp, out := doJSON(t, http.MethodPost, ts.URL+"/auth/register", "", map[string]string{
		"email":    "alice@example.com",
		"password": "another-password",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "CONFLICT", out["code"])
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	ts := newTestAPI(t)

	resp, out := doJSON(t, http.MethodPost, ts.URL+"/auth/register", "", map[string]string{
		"email":    "bob@example.com",
		"password": "short",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_PAYLOAD", out["code"])
}

func TestLoginWrongPasswordIsUniformlyUnauthorized(t *testing.T) {
	ts := newTestAPI(t)
	registerUser(t, ts.URL, "carol@example.com")

	resp, out := doJSON(t, http.MethodPost, ts.URL+"/auth/login", "", map[string]string{
		"email":    "carol@example.com",
		"password": "totally-wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", out["code"])

	resp, out = doJSON(t, http.MethodPost, ts.URL+"/auth/login", "", map[string]string{
		"email":    "nobody@example.com",
		"password": "totally-wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", out["code"])
}

func createWorkspace(t *testing.T, baseURL, token, name string) string {
	t.Helper()
	resp, out := doJSON(t, http.MethodPost, baseURL+"/workspaces", token, map[string]string{
		"name":     name,
		"template": "node-ts",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id, _ := out["id"].(string)
	require.NotEmpty(t, id)
	return id
}

func TestWorkspaceIsNotFoundForNonOwner(t *testing.T) {
	ts := newTestAPI(t)

	ownerToken, _ := registerUser(t, ts.URL, "owner@example.com")
	otherToken, _ := registerUser(t, ts.URL, "other@example.com")

	workspaceID := createWorkspace(t, ts.URL, ownerToken, "owner's workspace")

	resp, out := doJSON(t, http.MethodGet, ts.URL+"/workspaces/"+workspaceID, otherToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", out["code"])

	resp, out = doJSON(t, http.MethodGet, ts.URL+"/workspaces/"+workspaceID, ownerToken, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, workspaceID, out["id"])
}

func TestWorkspaceRequiresBearerToken(t *testing.T) {
	ts := newTestAPI(t)

	resp, out := doJSON(t, http.MethodGet, ts.URL+"/workspaces", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", out["code"])
}

func TestFilesWriteRejectsPathEscape(t *testing.T) {
	ts := newTestAPI(t)
	token, _ := registerUser(t, ts.URL, "dana@example.com")
	workspaceID := createWorkspace(t, ts.URL, token, "escape test")

	resp, out := doJSON(t, http.MethodPut, ts.URL+"/files/"+workspaceID+"/write", token, map[string]string{
		"path":    "../../../etc/passwd",
		"content": "pwned",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "PATH_ESCAPE", out["code"])
}

func TestFilesWriteThenReadRoundTrips(t *testing.T) {
	ts := newTestAPI(t)
	token, _ := registerUser(t, ts.URL, "erin@example.com")
	workspaceID := createWorkspace(t, ts.URL, token, "round trip test")

	resp, _ := doJSON(t, http.MethodPut, ts.URL+"/files/"+workspaceID+"/write", token, map[string]string{
		"path":    "notes.txt",
		"content": "hello from the test",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, out := doJSON(t, http.MethodGet, ts.URL+"/files/"+workspaceID+"/read?path=notes.txt", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello from the test", out["content"])
}

func TestTasksRunRejectsEmptyCustomCommand(t *testing.T) {
	ts := newTestAPI(t)
	token, _ := registerUser(t, ts.URL, "frank@example.com")
	workspaceID := createWorkspace(t, ts.URL, token, "tasks test")

	resp, out := doJSON(t, http.MethodPost, ts.URL+"/tasks/"+workspaceID+"/tasks/run", token, map[string]string{
		"task": "custom",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "BAD_REQUEST", out["code"])
}

func TestTasksRunExecutesCustomCommand(t *testing.T) {
	ts := newTestAPI(t)
	token, _ := registerUser(t, ts.URL, "grace@example.com")
	workspaceID := createWorkspace(t, ts.URL, token, "tasks test 2")

	resp, out := doJSON(t, http.MethodPost, ts.URL+"/tasks/"+workspaceID+"/tasks/run", token, map[string]string{
		"task":    "custom",
		"command": "echo hi",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, out, "exitCode")
}
