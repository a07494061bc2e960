package pipeline

import (
	"context"
	"testing"
	"time"

	"fabrik/internal/event"
)

func waitForEvent(t *testing.T, ch <-chan event.Event, eventType string) event.Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Type() == eventType {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", eventType)
		}
	}
}

func TestWatcherInitialScan(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "good.json", validDocJSON)
	writeFixture(t, dir, "bad.json", `{"name":"","properties":{"activities":[]}}`)

	watcher, err := WatchDir(dir, nil, nil)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer watcher.Close()

	states := watcher.States()
	if len(states) != 2 {
		t.Fatalf("states = %+v", states)
	}
	valid := 0
	for _, state := range states {
		if state.Valid {
			valid++
			if state.Pipeline != "Minimal" {
				t.Errorf("pipeline name = %q", state.Pipeline)
			}
		} else if state.Problem == "" {
			t.Errorf("invalid state without problem: %+v", state)
		}
	}
	if valid != 1 {
		t.Fatalf("expected exactly one valid state, got %d", valid)
	}
}

func TestWatcherPublishesOnChange(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus := event.NewBus[event.Event](ctx, event.BusOptions{Name: "test"})

	watcher, err := WatchDir(dir, bus, nil)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer watcher.Close()

	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	writeFixture(t, dir, "new.json", validDocJSON)
	ev := waitForEvent(t, ch, EventValidated)
	pipelineEvent, ok := ev.(event.PipelineEvent)
	if !ok {
		t.Fatalf("event type %T", ev)
	}
	if pipelineEvent.Pipeline != "Minimal" {
		t.Errorf("pipeline = %q", pipelineEvent.Pipeline)
	}

	writeFixture(t, dir, "new.json", `{"name":"","properties":{"activities":[]}}`)
	ev = waitForEvent(t, ch, EventInvalid)
	pipelineEvent = ev.(event.PipelineEvent)
	if pipelineEvent.Problem == "" {
		t.Error("invalid event without problem text")
	}
}
