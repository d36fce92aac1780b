package logging

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestDefaultLogDir(t *testing.T) {
	dir := DefaultLogDir()
	if !strings.Contains(dir, ".onedesk") || filepath.Base(dir) != "logs" {
		t.Errorf("DefaultLogDir should end with .onedesk/logs, got: %s", dir)
	}
}

func TestDefaultLogPath(t *testing.T) {
	if filepath.Base(DefaultLogPath()) != "server.log" {
		t.Errorf("DefaultLogPath should end with server.log, got: %s", DefaultLogPath())
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != "info" {
		t.Errorf("expected level 'info', got: %s", cfg.Level)
	}
	if cfg.MaxSizeMB != 10 || cfg.MaxFiles != 5 {
		t.Errorf("unexpected rotation limits: %d MB, %d files", cfg.MaxSizeMB, cfg.MaxFiles)
	}
	if !cfg.WriteToStderr {
		t.Error("expected WriteToStderr to be true")
	}
	if DebugConfig().Level != "debug" {
		t.Errorf("expected debug level, got: %s", DebugConfig().Level)
	}
}

func TestSetup_WritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "server.log")

	logger, cleanup, err := Setup(Config{Level: "debug", FilePath: path, MaxSizeMB: 1, MaxFiles: 2})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	logger.Debug("index_loaded", slog.String("stem", "hr"), slog.Int("count", 3))
	cleanup()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(data))), &rec); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, data)
	}
	if rec["msg"] != "index_loaded" || rec["stem"] != "hr" || rec["count"] != float64(3) {
		t.Errorf("unexpected record: %v", rec)
	}
}

func TestSetup_LevelFiltersRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")

	logger, cleanup, err := Setup(Config{Level: "warn", FilePath: path})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	logger.Info("dropped")
	logger.Warn("kept")
	cleanup()

	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "dropped") || !strings.Contains(string(data), "kept") {
		t.Errorf("level filtering failed: %s", data)
	}
}

func TestSetup_NoFileFallsBackToStderr(t *testing.T) {
	logger, cleanup, err := Setup(Config{Level: "info"})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	defer cleanup()
	if logger == nil {
		t.Fatal("expected a logger")
	}
}

func TestLevelFromString(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		if got := LevelFromString(in); got != want {
			t.Errorf("LevelFromString(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestRotatingWriter_Rotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")
	w, err := NewRotatingWriter(path, 1, 3)
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	defer func() { _ = w.Close() }()

	chunk := []byte(strings.Repeat("x", 600*1024))
	for i := 0; i < 2; i++ {
		if _, err := w.Write(chunk); err != nil {
			t.Fatalf("write %d failed: %v", i, err)
		}
	}

	if _, err := os.Stat(path + ".1"); err != nil {
		t.Errorf("expected rotated file server.log.1: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat current log: %v", err)
	}
	if info.Size() != int64(len(chunk)) {
		t.Errorf("expected fresh file with one chunk, got %d bytes", info.Size())
	}
}

func TestRotatingWriter_MaxFilesLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")
	w, err := NewRotatingWriter(path, 1, 2)
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	defer func() { _ = w.Close() }()

	chunk := []byte(strings.Repeat("y", 700*1024))
	for i := 0; i < 6; i++ {
		if _, err := w.Write(chunk); err != nil {
			t.Fatalf("write %d failed: %v", i, err)
		}
	}

	if _, err := os.Stat(path + ".2"); err != nil {
		t.Errorf("expected server.log.2 to exist: %v", err)
	}
	if _, err := os.Stat(path + ".3"); !os.IsNotExist(err) {
		t.Errorf("expected server.log.3 to be pruned, got err=%v", err)
	}
}

func TestRotatingWriter_WriteAfterClose(t *testing.T) {
	w, err := NewRotatingWriter(filepath.Join(t.TempDir(), "server.log"), 1, 1)
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}
	if _, err := w.Write([]byte("late")); err == nil {
		t.Error("expected error writing to closed writer")
	}
}

func TestRotatingWriter_ConcurrentWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")
	w, err := NewRotatingWriter(path, 10, 2)
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_, _ = fmt.Fprintf(w, "goroutine=%d line=%d\n", g, i)
			}
		}(g)
	}
	wg.Wait()
	_ = w.Sync()
	_ = w.Close()

	data, _ := os.ReadFile(path)
	if got := strings.Count(string(data), "\n"); got != 400 {
		t.Errorf("expected 400 lines, got %d", got)
	}
}
