package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestTelegramSinkSend(t *testing.T) {
	var gotPath string
	var gotPayload map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotPayload)
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	sink := NewTelegramSink("test-token", srv.URL, time.Second, zerolog.Nop())
	if err := sink.Send(context.Background(), 12345, "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.HasPrefix(gotPath, "/bottest-token/") {
		t.Fatalf("token missing from path: %s", gotPath)
	}
	if !strings.HasSuffix(gotPath, "/sendMessage") {
		t.Fatalf("expected sendMessage endpoint, got %s", gotPath)
	}
	if gotPayload["chat_id"] != "12345" {
		t.Fatalf("expected chat_id 12345, got %q", gotPayload["chat_id"])
	}
	if gotPayload["text"] != "hello" {
		t.Fatalf("expected text hello, got %q", gotPayload["text"])
	}
	if gotPayload["parse_mode"] != "Markdown" {
		t.Fatalf("expected Markdown parse mode, got %q", gotPayload["parse_mode"])
	}
}

func TestTelegramSinkNotOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok": false, "description": "chat not found"}`))
	}))
	defer srv.Close()

	sink := NewTelegramSink("test-token", srv.URL, time.Second, zerolog.Nop())
	if err := sink.Send(context.Background(), 12345, "hello"); err == nil {
		t.Fatal("ok=false must surface as an error")
	}
}

func TestTelegramSinkBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	sink := NewTelegramSink("test-token", srv.URL, time.Second, zerolog.Nop())
	err := sink.Send(context.Background(), 12345, "hello")
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected status error, got %v", err)
	}
}
