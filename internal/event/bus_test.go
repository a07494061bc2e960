package event

import (
	"context"
	"testing"
	"time"

	"fabrik/internal/metrics"
)

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		panic("unreachable")
	}
}

func TestBusPublishSubscribe(t *testing.T) {
	bus := NewBus[Event](context.Background(), BusOptions{Name: "test", Registry: &metrics.Registry{}})
	defer bus.Close()

	ch, cancel := bus.Subscribe()
	defer cancel()

	bus.Publish(NewRunEvent("run-1", "nightly backup", "run_started", "running"))

	ev := receive(t, ch)
	run, ok := ev.(RunEvent)
	if !ok {
		t.Fatalf("unexpected event type %T", ev)
	}
	if run.RunID != "run-1" || run.EventType != "run_started" {
		t.Fatalf("unexpected event %+v", run)
	}
}

func TestBusSubscribeTypes(t *testing.T) {
	bus := NewBus[Event](context.Background(), BusOptions{Name: "test", Registry: &metrics.Registry{}})
	defer bus.Close()

	ch, cancel := bus.SubscribeTypes("activity_state")
	defer cancel()

	bus.Publish(NewRunEvent("run-1", "p", "run_started", "running"))
	bus.Publish(NewActivityEvent("run-1", "Perform Backup", "succeeded", 1, ""))

	ev := receive(t, ch)
	if ev.Type() != "activity_state" {
		t.Fatalf("filter passed %q", ev.Type())
	}

	select {
	case extra := <-ch:
		t.Fatalf("unexpected extra event %v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBusSubscribeTypesEmpty(t *testing.T) {
	bus := NewBus[Event](context.Background(), BusOptions{Registry: &metrics.Registry{}})
	defer bus.Close()

	ch, cancel := bus.SubscribeTypes()
	defer cancel()
	if _, open := <-ch; open {
		t.Fatal("expected closed channel for empty type set")
	}
}

func TestBusHistoryReplay(t *testing.T) {
	bus := NewBus[Event](context.Background(), BusOptions{HistorySize: 3, Registry: &metrics.Registry{}})
	defer bus.Close()

	for _, name := range []string{"a", "b", "c", "d"} {
		bus.Publish(NewActivityEvent("run-1", name, "running", 1, ""))
	}

	history := bus.DumpHistory()
	if len(history) != 3 {
		t.Fatalf("expected 3 events in history, got %d", len(history))
	}
	first, ok := history[0].(ActivityEvent)
	if !ok || first.Activity != "b" {
		t.Fatalf("oldest history entry = %+v", history[0])
	}

	replay := make(chan Event, 3)
	bus.ReplayLast(2, replay)
	close(replay)
	var names []string
	for ev := range replay {
		names = append(names, ev.(ActivityEvent).Activity)
	}
	if len(names) != 2 || names[0] != "c" || names[1] != "d" {
		t.Fatalf("unexpected replay %v", names)
	}
}

func TestBusDropsWhenFull(t *testing.T) {
	reg := &metrics.Registry{}
	bus := NewBus[Event](context.Background(), BusOptions{SubscriberBufferSize: 1, Registry: reg})
	defer bus.Close()

	ch, cancel := bus.Subscribe()
	defer cancel()

	bus.Publish(NewRunEvent("run-1", "p", "run_started", "running"))
	bus.Publish(NewRunEvent("run-2", "p", "run_started", "running"))

	ev := receive(t, ch)
	if ev.(RunEvent).RunID != "run-1" {
		t.Fatalf("expected first event delivered, got %+v", ev)
	}
	select {
	case extra := <-ch:
		t.Fatalf("expected second event dropped, got %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBusCloseOnContext(t *testing.T) {
	ctx, cancelCtx := context.WithCancel(context.Background())
	bus := NewBus[Event](ctx, BusOptions{Registry: &metrics.Registry{}})

	ch, cancel := bus.Subscribe()
	defer cancel()

	cancelCtx()

	select {
	case _, open := <-ch:
		if open {
			t.Fatal("expected channel closed after context cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for close")
	}

	bus.Publish(NewRunEvent("run-1", "p", "run_started", "running"))
	if bus.SubscriberCount() != 0 {
		t.Fatal("subscribers should be gone after close")
	}
}

func TestBusMaxSubscribers(t *testing.T) {
	bus := NewBus[Event](context.Background(), BusOptions{MaxSubscribers: 1, Registry: &metrics.Registry{}})
	defer bus.Close()

	_, cancelFirst := bus.Subscribe()
	defer cancelFirst()

	ch, cancelSecond := bus.Subscribe()
	defer cancelSecond()
	if _, open := <-ch; open {
		t.Fatal("expected closed channel when subscriber cap reached")
	}
}

func TestMockBusCaptures(t *testing.T) {
	bus := NewMockBus[Event]()
	ch, cancel := bus.SubscribeFiltered(func(ev Event) bool {
		return ev.Type() == "backup_created"
	})
	defer cancel()

	bus.Publish(NewBackupEvent("b-1", "Sales", "SalesModel", "backup_created"))
	bus.Publish(NewRunEvent("run-1", "p", "run_started", "running"))

	if got := len(bus.Events()); got != 2 {
		t.Fatalf("expected 2 captured events, got %d", got)
	}
	ev := receive(t, ch)
	if ev.Type() != "backup_created" {
		t.Fatalf("filter passed %q", ev.Type())
	}
}

func BenchmarkBusPublish(b *testing.B) {
	bus := NewBus[Event](context.Background(), BusOptions{Registry: &metrics.Registry{}})
	defer bus.Close()
	ch, cancel := bus.Subscribe()
	defer cancel()
	go func() {
		for range ch {
		}
	}()

	ev := NewActivityEvent("run-1", "Perform Backup", "running", 1, "")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		bus.Publish(ev)
	}
}
