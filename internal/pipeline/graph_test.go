package pipeline

import (
	"reflect"
	"testing"
)

func graphFixture() *Definition {
	// diamond: fetch -> (transform, report) -> publish, plus a free-standing audit
	return validDefinition(
		notebookActivity("fetch"),
		notebookActivity("transform", dependsOn("fetch")),
		notebookActivity("report", dependsOn("fetch")),
		notebookActivity("publish", dependsOn("transform"), dependsOn("report")),
		notebookActivity("audit"),
	)
}

func TestExecutionOrderWaves(t *testing.T) {
	waves, err := NewGraph(graphFixture()).ExecutionOrder()
	if err != nil {
		t.Fatalf("execution order: %v", err)
	}
	want := [][]string{
		{"audit", "fetch"},
		{"report", "transform"},
		{"publish"},
	}
	if !reflect.DeepEqual(waves, want) {
		t.Fatalf("waves = %v, want %v", waves, want)
	}
}

func TestGraphRootsAndDependents(t *testing.T) {
	g := NewGraph(graphFixture())

	if got := g.Roots(); !reflect.DeepEqual(got, []string{"audit", "fetch"}) {
		t.Fatalf("roots = %v", got)
	}
	if got := g.Dependents("fetch"); !reflect.DeepEqual(got, []string{"report", "transform"}) {
		t.Fatalf("dependents(fetch) = %v", got)
	}
	if got := g.Dependencies("publish"); !reflect.DeepEqual(got, []string{"report", "transform"}) {
		t.Fatalf("dependencies(publish) = %v", got)
	}
	if got := g.Dependents("publish"); len(got) != 0 {
		t.Fatalf("dependents(publish) = %v", got)
	}
}

func TestGraphCycleWitness(t *testing.T) {
	definition := validDefinition(
		notebookActivity("a", dependsOn("c")),
		notebookActivity("b", dependsOn("a")),
		notebookActivity("c", dependsOn("b")),
	)
	cycle := NewGraph(definition).Cycle()
	if len(cycle) != 4 {
		t.Fatalf("cycle = %v, want closed three-node path", cycle)
	}
	if cycle[0] != cycle[len(cycle)-1] {
		t.Fatalf("cycle %v is not closed", cycle)
	}

	if _, err := NewGraph(definition).ExecutionOrder(); err == nil {
		t.Fatal("expected cycle error from ExecutionOrder")
	}
}

func TestGraphAcyclicHasNoCycle(t *testing.T) {
	if cycle := NewGraph(graphFixture()).Cycle(); cycle != nil {
		t.Fatalf("unexpected cycle %v", cycle)
	}
}

func TestGraphEmptyDefinition(t *testing.T) {
	waves, err := NewGraph(validDefinition()).ExecutionOrder()
	if err != nil {
		t.Fatalf("execution order: %v", err)
	}
	if waves != nil {
		t.Fatalf("waves = %v, want nil", waves)
	}
}
