package runs

import (
	"time"

	"github.com/google/uuid"

	"fabrik/internal/pipeline"
)

// Redacted replaces secured parameter and output values everywhere they
// would otherwise surface.
const Redacted = "***"

// Run is one execution of a pipeline definition.
type Run struct {
	ID         string                     `json:"id"`
	Pipeline   string                     `json:"pipeline"`
	State      State                      `json:"state"`
	Parameters map[string]any             `json:"parameters,omitempty"`
	Activities map[string]*ActivityResult `json:"activities"`
	StartedAt  time.Time                  `json:"startedAt"`
	FinishedAt time.Time                  `json:"finishedAt,omitempty"`
}

// ActivityResult is the outcome of one activity within a run.
type ActivityResult struct {
	Name       string         `json:"name"`
	State      State          `json:"state"`
	Attempts   int            `json:"attempts"`
	Input      map[string]any `json:"input,omitempty"`
	Output     map[string]any `json:"output,omitempty"`
	Error      string         `json:"error,omitempty"`
	StartedAt  time.Time      `json:"startedAt,omitempty"`
	FinishedAt time.Time      `json:"finishedAt,omitempty"`
}

func newRun(d *pipeline.Definition, parameters map[string]any) *Run {
	run := &Run{
		ID:         uuid.NewString(),
		Pipeline:   d.Name,
		State:      StateRunning,
		Parameters: parameters,
		Activities: map[string]*ActivityResult{},
		StartedAt:  time.Now().UTC(),
	}
	for _, activity := range d.Properties.Activities {
		run.Activities[activity.Name] = &ActivityResult{
			Name:  activity.Name,
			State: StatePending,
		}
	}
	return run
}

// snapshot deep-copies the run so callers can keep it while the
// engine keeps mutating the original.
func (r *Run) snapshot() *Run {
	copied := *r
	copied.Activities = make(map[string]*ActivityResult, len(r.Activities))
	for name, result := range r.Activities {
		resultCopy := *result
		copied.Activities[name] = &resultCopy
	}
	return &copied
}

// redactMap replaces every value when the secure flag is set.
func redactMap(values map[string]any, secure bool) map[string]any {
	if !secure || len(values) == 0 {
		return values
	}
	redacted := make(map[string]any, len(values))
	for key := range values {
		redacted[key] = Redacted
	}
	return redacted
}

// Outcome decides the final run state. A failed activity does not fail
// the run when a dependent consumed the failure through a Failed or
// Completed condition.
func Outcome(d *pipeline.Definition, graph *pipeline.Graph, activities map[string]*ActivityResult, cancelled bool) State {
	if cancelled {
		return StateCancelled
	}
	for name, result := range activities {
		if !result.State.failure() {
			continue
		}
		if !failureConsumed(d, graph, name) {
			return StateFailed
		}
	}
	return StateSucceeded
}

func failureConsumed(d *pipeline.Definition, graph *pipeline.Graph, failed string) bool {
	dependents := graph.Dependents(failed)
	if len(dependents) == 0 {
		return false
	}
	for _, dependent := range dependents {
		activity, ok := d.Activity(dependent)
		if !ok {
			continue
		}
		for _, dep := range activity.DependsOn {
			if dep.Activity != failed {
				continue
			}
			for _, condition := range dep.DependencyConditions {
				if condition == pipeline.ConditionFailed || condition == pipeline.ConditionCompleted {
					return true
				}
			}
		}
	}
	return false
}
