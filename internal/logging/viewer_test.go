package logging

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"
)

const sampleLog = `{"time":"2026-03-02T09:00:00.000Z","level":"INFO","msg":"index_loaded","index":"hr","count":12}
{"time":"2026-03-02T09:00:01.000Z","level":"DEBUG","msg":"index_add","added":3}
not json at all
{"time":"2026-03-02T09:00:02.000Z","level":"WARN","msg":"ask_llm_failed","error":"timeout"}
{"time":"2026-03-02T09:00:03.000Z","level":"ERROR","msg":"telemetry_flush_failed","error":"disk full"}
`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.log")
	if err := os.WriteFile(path, []byte(sampleLog), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseLine(t *testing.T) {
	e := ParseLine(`{"time":"2026-03-02T09:00:00Z","level":"INFO","msg":"app_ready","hr_chunks":4}`)

	if !e.Valid {
		t.Fatal("expected valid entry")
	}
	if e.Level != "INFO" || e.Msg != "app_ready" {
		t.Errorf("unexpected level/msg: %s %s", e.Level, e.Msg)
	}
	if e.Time.IsZero() {
		t.Error("expected parsed time")
	}
	if _, ok := e.Attrs["hr_chunks"]; !ok {
		t.Error("expected hr_chunks attribute")
	}
	if _, ok := e.Attrs["msg"]; ok {
		t.Error("standard fields must not appear in attrs")
	}

	if ParseLine("plain text").Valid {
		t.Error("plain text must not be valid")
	}
}

func TestViewer_TailLastLines(t *testing.T) {
	path := writeSample(t)
	v := NewViewer(ViewerConfig{}, &bytes.Buffer{})

	entries, err := v.Tail(path, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[1].Msg != "telemetry_flush_failed" {
		t.Errorf("expected last entry to be the newest, got %s", entries[1].Msg)
	}
}

func TestViewer_TailLevelFilter(t *testing.T) {
	path := writeSample(t)
	v := NewViewer(ViewerConfig{Level: "warn"}, &bytes.Buffer{})

	entries, err := v.Tail(path, 100)
	if err != nil {
		t.Fatal(err)
	}

	var msgs []string
	for _, e := range entries {
		msgs = append(msgs, e.Msg)
	}
	// Unparseable lines are kept; they have no level to compare.
	if len(entries) != 3 {
		t.Fatalf("expected warn, error and raw lines, got %v", msgs)
	}
}

func TestViewer_TailPatternFilter(t *testing.T) {
	path := writeSample(t)
	v := NewViewer(ViewerConfig{Pattern: regexp.MustCompile(`index_`)}, &bytes.Buffer{})

	entries, err := v.Tail(path, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 index entries, got %d", len(entries))
	}
}

func TestViewer_TailMissingFile(t *testing.T) {
	v := NewViewer(ViewerConfig{}, &bytes.Buffer{})

	if _, err := v.Tail(filepath.Join(t.TempDir(), "nope.log"), 10); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestViewer_FormatEntry(t *testing.T) {
	v := NewViewer(ViewerConfig{}, &bytes.Buffer{})
	e := ParseLine(`{"time":"2026-03-02T09:00:00Z","level":"warning","msg":"slow","b":2,"a":1}`)

	got := v.FormatEntry(e)

	if !strings.Contains(got, "WARNI slow a=1 b=2") {
		t.Errorf("unexpected format: %q", got)
	}
	if strings.Contains(got, "\033[") {
		t.Error("expected no color codes")
	}

	colored := NewViewer(ViewerConfig{Color: true}, &bytes.Buffer{}).FormatEntry(e)
	if !strings.Contains(colored, "\033[33m") {
		t.Errorf("expected yellow warn label: %q", colored)
	}

	if raw := v.FormatEntry(ParseLine("plain")); raw != "plain" {
		t.Errorf("expected raw passthrough, got %q", raw)
	}
}

func TestViewer_Print(t *testing.T) {
	var buf bytes.Buffer
	v := NewViewer(ViewerConfig{}, &buf)

	v.Print([]LogEntry{ParseLine("one"), ParseLine("two")})

	if buf.String() != "one\ntwo\n" {
		t.Errorf("unexpected output: %q", buf.String())
	}
}

func TestViewer_Follow(t *testing.T) {
	path := writeSample(t)
	v := NewViewer(ViewerConfig{Level: "info"}, &bytes.Buffer{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	entries := make(chan LogEntry, 10)
	done := make(chan error, 1)
	go func() { done <- v.Follow(ctx, path, entries) }()

	// Give Follow time to seek to the end before appending.
	time.Sleep(200 * time.Millisecond)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.WriteString(`{"time":"2026-03-02T10:00:00Z","level":"DEBUG","msg":"hidden"}` + "\n")
	_, _ = f.WriteString(`{"time":"2026-03-02T10:00:01Z","level":"INFO","msg":"hr_index_refreshed"}` + "\n")
	_ = f.Close()

	select {
	case e := <-entries:
		if e.Msg != "hr_index_refreshed" {
			t.Errorf("expected hr_index_refreshed, got %s", e.Msg)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for appended entry")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Follow returned error: %v", err)
	}
}
