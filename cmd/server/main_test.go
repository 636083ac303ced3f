package main

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	pc "github.com/linnemanlabs/prioritizer/internal/cfg"
	"github.com/linnemanlabs/prioritizer/internal/priority"
)

func TestNotifySystemd_NoSocket(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")

	err := notifySystemd()
	if err == nil {
		t.Fatal("expected error when NOTIFY_SOCKET is empty")
	}
	if !strings.Contains(err.Error(), "NOTIFY_SOCKET not set") {
		t.Errorf("error = %q, want substring %q", err, "NOTIFY_SOCKET not set")
	}
}

func TestNotifySystemd_InvalidPath(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", filepath.Join(t.TempDir(), "nonexistent.sock"))

	err := notifySystemd()
	if err == nil {
		t.Fatal("expected error for nonexistent socket")
	}
	if !strings.Contains(err.Error(), "dial failed") {
		t.Errorf("error = %q, want substring %q", err, "dial failed")
	}
}

func TestNotifySystemd_Success(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "notify.sock")

	// Create a real unixgram listener.
	var lc net.ListenConfig
	conn, err := lc.ListenPacket(context.Background(), "unixgram", sockPath)
	if err != nil {
		t.Fatalf("listen unixgram: %v", err)
	}
	defer func() { _ = conn.Close() }()

	t.Setenv("NOTIFY_SOCKET", sockPath)

	if err := notifySystemd(); err != nil {
		t.Fatalf("notifySystemd() = %v, want nil", err)
	}

	buf := make([]byte, 256)
	n, _, err := conn.ReadFrom(buf)
	if err != nil {
		t.Fatalf("read from socket: %v", err)
	}

	got := string(buf[:n])
	if got != "READY=1" {
		t.Errorf("payload = %q, want %q", got, "READY=1")
	}
}

func TestOpenEngine_UnknownBackend(t *testing.T) {
	t.Parallel()

	c := &pc.Config{Engine: "onnx", Model: "m", EngineTimeoutSeconds: 5}
	eng, err := openEngine(context.Background(), c, nil)
	if err == nil {
		t.Fatal("expected error for unknown engine")
	}
	if eng != nil {
		t.Errorf("engine = %v, want nil", eng)
	}
	if !strings.Contains(err.Error(), "onnx") {
		t.Errorf("error = %q, want engine name", err)
	}
}

func TestOpenEngine_HuggingFace(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/models/test/model" {
			t.Errorf("path = %q, want /models/test/model", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"label":"normal","score":0.6},{"label":"urgent","score":0.3},{"label":"low priority","score":0.1}]`))
	}))
	t.Cleanup(srv.Close)

	c := &pc.Config{
		Engine:               pc.EngineHuggingFace,
		Model:                "test/model",
		HFEndpoint:           srv.URL,
		EngineTimeoutSeconds: 5,
	}
	eng, err := openEngine(context.Background(), c, nil)
	if err != nil {
		t.Fatalf("openEngine: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("warm-up calls = %d, want 1", calls.Load())
	}

	got, err := eng.Classify(context.Background(), "x", priority.CandidateLabels(), false)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if len(got) == 0 || got[0].Label != "normal" {
		t.Errorf("top label = %+v, want normal", got)
	}
}

func TestOpenEngine_LoadFailureIsReturned(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"Model not found"}`))
	}))
	t.Cleanup(srv.Close)

	c := &pc.Config{
		Engine:               pc.EngineHuggingFace,
		Model:                "missing/model",
		HFEndpoint:           srv.URL,
		EngineTimeoutSeconds: 5,
	}
	eng, err := openEngine(context.Background(), c, nil)
	if err == nil {
		t.Fatal("expected load error")
	}
	if eng != nil {
		t.Errorf("engine = %v, want nil", eng)
	}
	if !strings.Contains(err.Error(), "missing/model") {
		t.Errorf("error = %q, want model name", err)
	}
}

func TestOpenEngine_ClaudeRequiresKey(t *testing.T) {
	t.Parallel()

	c := &pc.Config{Engine: pc.EngineClaude, Model: "claude-haiku-4-5", EngineTimeoutSeconds: 5}
	if _, err := openEngine(context.Background(), c, nil); err == nil {
		t.Fatal("expected error without api key")
	}
}
