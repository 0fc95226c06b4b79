package preview

import (
	"net/url"
	"testing"
)

func TestParsePortRejectsOutOfRange(t *testing.T) {
	for _, raw := range []string{"0", "65536", "abc", "-1", ""} {
		if _, err := ParsePort(raw); err == nil {
			t.Fatalf("expected error for port %q", raw)
		}
	}
}

func TestParsePortAcceptsValidRange(t *testing.T) {
	for _, raw := range []string{"1", "3000", "65535"} {
		port, err := ParsePort(raw)
		if err != nil {
			t.Fatalf("unexpected error for port %q: %v", raw, err)
		}
		if port <= 0 {
			t.Fatalf("unexpected parsed port %d", port)
		}
	}
}

func TestStripTokenRemovesOnlyToken(t *testing.T) {
	u, err := url.Parse("http://example.test/index.html?token=secret&foo=bar")
	if err != nil {
		t.Fatal(err)
	}
	StripToken(u)
	if u.Query().Get("token") != "" {
		t.Fatal("token was not stripped")
	}
	if u.Query().Get("foo") != "bar" {
		t.Fatal("unrelated query param was dropped")
	}
}
