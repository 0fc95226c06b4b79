package runnerclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStartSendsSharedSecretHeaderAndDecodesResponse(t *testing.T) {
	var gotSecret string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSecret = r.Header.Get("X-Runner-Secret")
		if r.URL.Path != "/containers/start" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		var req StartRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.WorkspaceID != "ws-1" {
			t.Fatalf("unexpected workspace id: %q", req.WorkspaceID)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(StartResponse{ContainerName: "cloudide-ws-ws-1"})
	}))
	defer srv.Close()

	client := New(srv.URL, "shared-secret")
	resp, err := client.Start(context.Background(), StartRequest{WorkspaceID: "ws-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotSecret != "shared-secret" {
		t.Fatalf("expected shared secret header, got %q", gotSecret)
	}
	if resp.ContainerName != "cloudide-ws-ws-1" {
		t.Fatalf("unexpected container name: %q", resp.ContainerName)
	}
}

func TestCallReturnsUpstreamFailedOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("docker daemon unreachable"))
	}))
	defer srv.Close()

	client := New(srv.URL, "shared-secret")
	_, err := client.Status(context.Background(), "ws-1")
	if err == nil {
		t.Fatal("expected error")
	}
}
