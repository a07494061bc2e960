package config

import (
	"os"
	"path/filepath"
	"testing"

	"fabrik/internal/version"
)

func TestDecideAsset(t *testing.T) {
	tests := []struct {
		name  string
		input AssetDecisionInput
		want  AssetAction
	}{
		{
			name: "dest missing installs",
			input: AssetDecisionInput{
				DestExists: false,
			},
			want: AssetInstall,
		},
		{
			name: "baseline missing keeps",
			input: AssetDecisionInput{
				DestExists:  true,
				HasBaseline: false,
				LocalHash:   "local",
				NewHash:     "new",
			},
			want: AssetKeep,
		},
		{
			name: "up to date skips",
			input: AssetDecisionInput{
				DestExists:  true,
				HasBaseline: true,
				LocalHash:   "same",
				OldHash:     "old",
				NewHash:     "same",
			},
			want: AssetSkip,
		},
		{
			name: "upstream updated installs",
			input: AssetDecisionInput{
				DestExists:  true,
				HasBaseline: true,
				LocalHash:   "old",
				OldHash:     "old",
				NewHash:     "new",
			},
			want: AssetInstall,
		},
		{
			name: "local modified keeps",
			input: AssetDecisionInput{
				DestExists:  true,
				HasBaseline: true,
				LocalHash:   "local",
				OldHash:     "old",
				NewHash:     "old",
			},
			want: AssetKeep,
		},
		{
			name: "both modified conflicts",
			input: AssetDecisionInput{
				DestExists:  true,
				HasBaseline: true,
				LocalHash:   "local",
				OldHash:     "old",
				NewHash:     "new",
			},
			want: AssetConflict,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := DecideAsset(tc.input)
			if got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestInstallFreshDirectory(t *testing.T) {
	dir := t.TempDir()
	installer := &Installer{}

	result, err := installer.Install(dir)
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	if len(result.Installed) == 0 {
		t.Fatalf("expected assets to be installed, got %+v", result)
	}
	if len(result.Kept)+len(result.Skipped)+len(result.Conflicts) != 0 {
		t.Fatalf("expected clean install, got %+v", result)
	}
	if _, err := os.Stat(filepath.Join(dir, "fabrik.toml")); err != nil {
		t.Fatalf("expected fabrik.toml to exist: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "pipelines", "nightly-backup.json")); err != nil {
		t.Fatalf("expected sample pipeline to exist: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, baselineName)); err != nil {
		t.Fatalf("expected baseline to be recorded: %v", err)
	}
	if _, err := LoadVersionFile(filepath.Join(dir, versionFileName)); err != nil {
		t.Fatalf("expected version file to be recorded: %v", err)
	}
}

func TestInstallSecondRunSkips(t *testing.T) {
	dir := t.TempDir()
	installer := &Installer{}

	if _, err := installer.Install(dir); err != nil {
		t.Fatalf("first install: %v", err)
	}
	result, err := installer.Install(dir)
	if err != nil {
		t.Fatalf("second install: %v", err)
	}
	if len(result.Installed) != 0 || len(result.Conflicts) != 0 {
		t.Fatalf("expected everything skipped, got %+v", result)
	}
	if len(result.Skipped) == 0 {
		t.Fatalf("expected skipped assets, got %+v", result)
	}
}

func TestInstallKeepsLocalEdits(t *testing.T) {
	dir := t.TempDir()
	installer := &Installer{}

	if _, err := installer.Install(dir); err != nil {
		t.Fatalf("first install: %v", err)
	}
	settingsPath := filepath.Join(dir, "fabrik.toml")
	if err := os.WriteFile(settingsPath, []byte("[server]\nport = 1234\n"), 0o644); err != nil {
		t.Fatalf("edit settings: %v", err)
	}

	result, err := installer.Install(dir)
	if err != nil {
		t.Fatalf("second install: %v", err)
	}
	found := false
	for _, kept := range result.Kept {
		if kept == "fabrik.toml" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected fabrik.toml to be kept, got %+v", result)
	}
	payload, err := os.ReadFile(settingsPath)
	if err != nil {
		t.Fatalf("read settings: %v", err)
	}
	if string(payload) != "[server]\nport = 1234\n" {
		t.Fatalf("expected local edit preserved, got %q", payload)
	}
}

func TestInstallConflictWritesNewFile(t *testing.T) {
	dir := t.TempDir()
	installer := &Installer{}

	if _, err := installer.Install(dir); err != nil {
		t.Fatalf("first install: %v", err)
	}

	// Simulate an upstream change by rewriting the recorded baseline hash,
	// then edit the file locally so both sides diverge.
	if err := writeBaseline(dir, map[string]string{
		"fabrik.toml":                   "0000",
		"pipelines/nightly-backup.json": "0000",
	}); err != nil {
		t.Fatalf("rewrite baseline: %v", err)
	}
	settingsPath := filepath.Join(dir, "fabrik.toml")
	if err := os.WriteFile(settingsPath, []byte("[server]\nport = 4321\n"), 0o644); err != nil {
		t.Fatalf("edit settings: %v", err)
	}

	result, err := installer.Install(dir)
	if err != nil {
		t.Fatalf("second install: %v", err)
	}
	if len(result.Conflicts) == 0 {
		t.Fatalf("expected conflicts, got %+v", result)
	}
	if _, err := os.Stat(settingsPath + ".new"); err != nil {
		t.Fatalf("expected .new file next to conflicting asset: %v", err)
	}
	payload, err := os.ReadFile(settingsPath)
	if err != nil {
		t.Fatalf("read settings: %v", err)
	}
	if string(payload) != "[server]\nport = 4321\n" {
		t.Fatalf("expected local edit untouched on conflict, got %q", payload)
	}
}

func TestInstallRefusesMajorVersionMismatch(t *testing.T) {
	dir := t.TempDir()
	installer := &Installer{}

	if _, err := installer.Install(dir); err != nil {
		t.Fatalf("first install: %v", err)
	}
	installed := version.Get()
	installed.Major++
	if err := WriteVersionFile(filepath.Join(dir, versionFileName), installed); err != nil {
		t.Fatalf("write version file: %v", err)
	}

	if _, err := installer.Install(dir); err == nil {
		t.Fatalf("expected major version mismatch to fail install")
	}
}
