package wslsp

import (
	"bytes"
	"strings"
	"testing"
)

func TestFrameParserRoundTripsAcrossArbitraryChunking(t *testing.T) {
	payloads := [][]byte{
		[]byte(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`),
		[]byte(strings.Repeat("x", 5*1024)), // a 5 KiB body split across stdout reads
		[]byte(`{"jsonrpc":"2.0","method":"textDocument/didOpen"}`),
	}

	var wire []byte
	for _, p := range payloads {
		wire = append(wire, EncodeFrame(p)...)
	}

	// Feed the wire bytes in small, uneven chunks to simulate arbitrary
	// stdout chunking (spec.md §8 scenario: a reply split across three
	// stdout chunks must still arrive as one message).
	parser := NewFrameParser()
	var got [][]byte
	for i := 0; i < len(wire); {
		n := 7
		if i+n > len(wire) {
			n = len(wire) - i
		}
		frames, err := parser.Feed(wire[i : i+n])
		if err != nil {
			t.Fatalf("feed: %v", err)
		}
		for _, f := range frames {
			got = append(got, f.Body)
		}
		i += n
	}

	if len(got) != len(payloads) {
		t.Fatalf("got %d frames, want %d", len(got), len(payloads))
	}
	for i, want := range payloads {
		if !bytes.Equal(got[i], want) {
			t.Fatalf("frame %d mismatch: got %d bytes want %d bytes", i, len(got[i]), len(want))
		}
	}
}

func TestFrameParserSingleFeedOfWholeWire(t *testing.T) {
	body := []byte(`{"jsonrpc":"2.0","id":2,"result":{}}`)
	parser := NewFrameParser()
	frames, err := parser.Feed(EncodeFrame(body))
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if len(frames) != 1 || !bytes.Equal(frames[0].Body, body) {
		t.Fatalf("unexpected frames: %+v", frames)
	}
}

func TestFrameParserCaseInsensitiveHeader(t *testing.T) {
	body := []byte(`{}`)
	raw := []byte("content-length: 2\r\n\r\n{}")
	parser := NewFrameParser()
	frames, err := parser.Feed(raw)
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if len(frames) != 1 || !bytes.Equal(frames[0].Body, body) {
		t.Fatalf("unexpected frames: %+v", frames)
	}
}

func TestFrameParserDiscardsMalformedHeaderBlock(t *testing.T) {
	// A malformed header (no Content-Length at all) is discarded and the
	// parser resumes scanning for the next "\r\n\r\n" terminator.
	good := EncodeFrame([]byte(`{"ok":true}`))
	raw := append([]byte("X-Bogus: true\r\n\r\n"), good...)

	parser := NewFrameParser()
	frames, err := parser.Feed(raw)
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if len(frames) != 1 || string(frames[0].Body) != `{"ok":true}` {
		t.Fatalf("unexpected frames: %+v", frames)
	}
}

func TestResolveCommandRejectsUnknownLanguage(t *testing.T) {
	_, err := ResolveCommand("cobol")
	if err == nil {
		t.Fatal("expected error for unregistered language")
	}
}

func TestResolveCommandKnownLanguage(t *testing.T) {
	cmd, err := ResolveCommand("python")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd == "" {
		t.Fatal("expected non-empty command")
	}
}
