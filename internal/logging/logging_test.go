package logging

import (
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want Level
		ok   bool
	}{
		{"debug", LevelDebug, true},
		{"INFO", LevelInfo, true},
		{" warn ", LevelWarning, true},
		{"warning", LevelWarning, true},
		{"error", LevelError, true},
		{"fatal", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := ParseLevel(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Errorf("ParseLevel(%q) = %q, %v; want %q, %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestLoggerMinLevel(t *testing.T) {
	buf := NewBuffer(10)
	logger := NewLoggerWithOutput(buf, LevelWarning, nil)

	logger.Debug("dropped", nil)
	logger.Info("dropped", nil)
	logger.Warn("kept", nil)
	logger.Error("kept", nil)

	entries := buf.List()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Level != LevelWarning || entries[1].Level != LevelError {
		t.Fatalf("unexpected levels: %v %v", entries[0].Level, entries[1].Level)
	}
}

func TestLoggerWithFields(t *testing.T) {
	buf := NewBuffer(10)
	logger := NewLoggerWithOutput(buf, LevelDebug, nil)

	child := logger.With(map[string]string{"component": "runs"})
	child.Info("started", map[string]string{"run_id": "r1"})

	entries := buf.List()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Fields["component"] != "runs" || entries[0].Fields["run_id"] != "r1" {
		t.Fatalf("fields not merged: %v", entries[0].Fields)
	}
}

func TestBufferTail(t *testing.T) {
	buf := NewBuffer(3)
	for _, msg := range []string{"a", "b", "c", "d"} {
		buf.Add(Entry{Message: msg})
	}

	tail := buf.Tail(2)
	if len(tail) != 2 || tail[0].Message != "c" || tail[1].Message != "d" {
		t.Fatalf("unexpected tail: %+v", tail)
	}
	if got := len(buf.Tail(10)); got != 3 {
		t.Fatalf("oversized tail returned %d entries", got)
	}
}

func TestHubSubscribe(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe(2)

	hub.Broadcast(Entry{Message: "one"})

	select {
	case entry := <-ch:
		if entry.Message != "one" {
			t.Fatalf("unexpected entry %q", entry.Message)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for entry")
	}

	cancel()
	if _, open := <-ch; open {
		t.Fatal("channel still open after cancel")
	}

	// Broadcast after unsubscribe must not panic.
	hub.Broadcast(Entry{Message: "two"})
}

func TestFormatEntry(t *testing.T) {
	entry := Entry{
		Level:   LevelInfo,
		Message: "pipeline validated",
		Fields:  map[string]string{"file": "backup.json", "activities": "2"},
	}
	got := formatEntry(entry)
	if !strings.HasPrefix(got, `level=info msg="pipeline validated"`) {
		t.Fatalf("unexpected prefix: %s", got)
	}
	// Fields sorted by key.
	if !strings.Contains(got, `activities="2" file="backup.json"`) {
		t.Fatalf("fields not sorted: %s", got)
	}
}

func TestNilLogger(t *testing.T) {
	var logger *Logger
	logger.Info("no panic", nil)
	if logger.Enabled(LevelError) {
		t.Fatal("nil logger reported enabled")
	}
	if logger.With(map[string]string{"k": "v"}) != nil {
		t.Fatal("nil logger With returned non-nil")
	}
}
