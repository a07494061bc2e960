package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSyncDefaultsCreatesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fabrik.toml")

	wrote, err := SyncDefaults(path, nil)
	if err != nil {
		t.Fatalf("sync defaults: %v", err)
	}
	if !wrote {
		t.Fatalf("expected file to be created")
	}
	settings, err := LoadSettings(path, nil)
	if err != nil {
		t.Fatalf("load created settings: %v", err)
	}
	if settings.Server.Port != 8766 {
		t.Fatalf("expected default port in created file, got %d", settings.Server.Port)
	}
}

func TestSyncDefaultsAddsMissingKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fabrik.toml")
	if err := os.WriteFile(path, []byte("[server]\nport = 9100\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	wrote, err := SyncDefaults(path, nil)
	if err != nil {
		t.Fatalf("sync defaults: %v", err)
	}
	if !wrote {
		t.Fatalf("expected missing keys to be added")
	}

	payload, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read merged file: %v", err)
	}
	if !strings.Contains(string(payload), "port = 9100") {
		t.Fatalf("expected user value preserved, got:\n%s", payload)
	}
	if !strings.Contains(string(payload), "retention-days") {
		t.Fatalf("expected default keys merged in, got:\n%s", payload)
	}
}

func TestSyncDefaultsIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fabrik.toml")
	if _, err := SyncDefaults(path, nil); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	wrote, err := SyncDefaults(path, nil)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if wrote {
		t.Fatalf("expected no rewrite when file already carries all keys")
	}
}

func TestSyncDefaultsKeepsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fabrik.toml")
	if err := os.WriteFile(path, []byte("[custom]\nflag = true\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := SyncDefaults(path, nil); err != nil {
		t.Fatalf("sync defaults: %v", err)
	}
	payload, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read merged file: %v", err)
	}
	if !strings.Contains(string(payload), "[custom]") || !strings.Contains(string(payload), "flag = true") {
		t.Fatalf("expected unknown section preserved, got:\n%s", payload)
	}
}
