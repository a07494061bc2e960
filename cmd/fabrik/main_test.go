package main

import (
	"bytes"
	"io"
	"reflect"
	"strings"
	"testing"
)

func stubCommandDeps() commandDeps {
	zero := func(args []string, deps commandDeps) int { return 0 }
	return commandDeps{
		Stdout:        io.Discard,
		Stderr:        io.Discard,
		RunServer:     zero,
		RunMCP:        zero,
		RunPipeline:   zero,
		RunTMSL:       zero,
		RunBPA:        zero,
		RunBackup:     zero,
		RunDocs:       zero,
		RunConfig:     zero,
		RunCompletion: zero,
	}
}

func TestRunDispatchesPipeline(t *testing.T) {
	deps := stubCommandDeps()
	var gotArgs []string
	deps.RunPipeline = func(args []string, _ commandDeps) int {
		gotArgs = append([]string(nil), args...)
		return 7
	}

	if code := run([]string{"pipeline", "validate", "p.json"}, deps); code != 7 {
		t.Fatalf("expected code 7, got %d", code)
	}
	if !reflect.DeepEqual(gotArgs, []string{"validate", "p.json"}) {
		t.Fatalf("expected args to be forwarded, got %v", gotArgs)
	}
}

func TestRunDispatchesServer(t *testing.T) {
	deps := stubCommandDeps()
	called := false
	deps.RunServer = func(args []string, _ commandDeps) int {
		called = true
		return 0
	}

	if code := run([]string{"server"}, deps); code != 0 {
		t.Fatalf("expected code 0, got %d", code)
	}
	if !called {
		t.Fatal("expected server command to run")
	}
}

func TestRunUnknownCommandIsUsageError(t *testing.T) {
	deps := stubCommandDeps()
	var stderr bytes.Buffer
	deps.Stderr = &stderr

	if code := run([]string{"bogus"}, deps); code != exitUsage {
		t.Fatalf("expected usage exit code, got %d", code)
	}
	if !strings.Contains(stderr.String(), "unknown command") {
		t.Fatalf("expected unknown command message, got %q", stderr.String())
	}
}

func TestRunWithoutArgsPrintsUsage(t *testing.T) {
	deps := stubCommandDeps()
	var stderr bytes.Buffer
	deps.Stderr = &stderr

	if code := run(nil, deps); code != exitUsage {
		t.Fatalf("expected usage exit code, got %d", code)
	}
	if !strings.Contains(stderr.String(), "usage: fabrik") {
		t.Fatalf("expected usage text, got %q", stderr.String())
	}
}

func TestRunVersion(t *testing.T) {
	deps := stubCommandDeps()
	var stdout bytes.Buffer
	deps.Stdout = &stdout

	if code := run([]string{"version"}, deps); code != 0 {
		t.Fatalf("expected code 0, got %d", code)
	}
	if !strings.Contains(stdout.String(), "fabrik") {
		t.Fatalf("expected version banner, got %q", stdout.String())
	}
}

func TestCompletionBash(t *testing.T) {
	deps := stubCommandDeps()
	var stdout bytes.Buffer
	deps.Stdout = &stdout

	if code := runCompletion([]string{"bash"}, deps); code != 0 {
		t.Fatalf("expected code 0, got %d", code)
	}
	if !strings.Contains(stdout.String(), "complete -F _fabrik_complete fabrik") {
		t.Fatalf("expected bash completion script, got %q", stdout.String())
	}
}

func TestCompletionUnknownShell(t *testing.T) {
	deps := stubCommandDeps()
	if code := runCompletion([]string{"fish"}, deps); code != exitUsage {
		t.Fatalf("expected usage exit code, got %d", code)
	}
}
