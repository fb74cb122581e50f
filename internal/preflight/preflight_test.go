package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"castspc/internal/config"
	"castspc/internal/store"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "control_chart.db")
	if result := CheckDatabase(context.Background(), path); !result.Passed || !strings.Contains(result.Detail, "will be created") {
		t.Fatalf("missing db should pass, got %+v", result)
	}

	st, err := store.OpenPath(path)
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	st.Close()

	result := CheckDatabase(context.Background(), path)
	if !result.Passed {
		t.Fatalf("expected healthy db, got %+v", result)
	}
	if result.Detail != "0 points, 0 samples" {
		t.Fatalf("detail = %q", result.Detail)
	}
}

func TestCheckWebSocket_OK(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = conn.Close()
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	result := CheckWebSocket(context.Background(), url, time.Second)
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckWebSocket_NotWebSocket(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	result := CheckWebSocket(context.Background(), url, time.Second)
	if result.Passed {
		t.Fatal("expected failure for plain http endpoint")
	}
	if !strings.Contains(result.Detail, "bad handshake") {
		t.Fatalf("detail = %q", result.Detail)
	}
}

func TestCheckWebSocket_MissingURL(t *testing.T) {
	if result := CheckWebSocket(context.Background(), "  ", time.Second); result.Passed {
		t.Fatal("expected failure for empty url")
	}
}

func TestRunAll(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.SnapshotDir = filepath.Join(base, "snapshots")
	cfg.Source.Kind = config.SourceSimulated
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	results := RunAll(context.Background(), &cfg)
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d: %+v", len(results), results)
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures: %+v", failed)
	}

	cfg.Source.Kind = config.SourceWebSocket
	cfg.Source.WebSocketURL = "ws://127.0.0.1:1"
	results = RunAll(context.Background(), &cfg)
	failed := Failed(results)
	if len(failed) != 1 || failed[0].Name != "Prediction service" {
		t.Fatalf("expected websocket failure only, got %+v", failed)
	}
}
