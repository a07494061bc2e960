package config

import "testing"

func TestEnvOverridesMapsSectionAndKey(t *testing.T) {
	environ := []string{
		"FABRIK_SERVER_PORT=9000",
		"FABRIK_FABRIC_RATE_LIMIT_RPS=2",
		"FABRIK_PIPELINES_WATCH=false",
		"FABRIK_RUNS_ENGINE=temporal",
		"PATH=/usr/bin",
	}
	overrides := EnvOverrides(environ)
	if len(overrides) != 4 {
		t.Fatalf("expected 4 overrides, got %d: %v", len(overrides), overrides)
	}
	if port, ok := overrides["server.port"].(int64); !ok || port != 9000 {
		t.Fatalf("expected server.port int64 9000, got %v", overrides["server.port"])
	}
	if rps, ok := overrides["fabric.rate-limit-rps"].(int64); !ok || rps != 2 {
		t.Fatalf("expected fabric.rate-limit-rps 2, got %v", overrides["fabric.rate-limit-rps"])
	}
	if watch, ok := overrides["pipelines.watch"].(bool); !ok || watch {
		t.Fatalf("expected pipelines.watch false, got %v", overrides["pipelines.watch"])
	}
	if engine, ok := overrides["runs.engine"].(string); !ok || engine != "temporal" {
		t.Fatalf("expected runs.engine temporal, got %v", overrides["runs.engine"])
	}
}

func TestEnvOverridesSkipsReservedNames(t *testing.T) {
	environ := []string{
		"FABRIK_CONFIG=/etc/fabrik.toml",
		"FABRIK_CLIENT_SECRET=hunter2",
		"FABRIK_BACKUP_ACCESS_KEY=AKIA",
		"FABRIK_BACKUP_SECRET_KEY=shhh",
		"FABRIK_EVENT_DEBUG=1",
	}
	overrides := EnvOverrides(environ)
	if len(overrides) != 0 {
		t.Fatalf("expected reserved names to be skipped, got %v", overrides)
	}
}

func TestEnvOverridesIgnoresMalformedEntries(t *testing.T) {
	environ := []string{
		"FABRIK_=1",
		"FABRIK_SERVER=1",
		"FABRIK_SERVER_=1",
		"NOEQUALS",
	}
	overrides := EnvOverrides(environ)
	if len(overrides) != 0 {
		t.Fatalf("expected malformed entries to be ignored, got %v", overrides)
	}
}

func TestCoerceEnvValue(t *testing.T) {
	if value := coerceEnvValue(" true "); value != true {
		t.Fatalf("expected bool true, got %v", value)
	}
	if value := coerceEnvValue("42"); value != int64(42) {
		t.Fatalf("expected int64 42, got %v", value)
	}
	if value := coerceEnvValue("Tables/backups"); value != "Tables/backups" {
		t.Fatalf("expected string passthrough, got %v", value)
	}
}
