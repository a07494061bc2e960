package runs

import "fabrik/internal/pipeline"

// State is the lifecycle of one activity inside a run, or of the run
// itself.
type State string

const (
	StatePending   State = "Pending"
	StateRunning   State = "Running"
	StateSucceeded State = "Succeeded"
	StateFailed    State = "Failed"
	StateSkipped   State = "Skipped"
	StateCancelled State = "Cancelled"
	StateTimedOut  State = "TimedOut"
)

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateSkipped, StateCancelled, StateTimedOut:
		return true
	}
	return false
}

// failure groups the states a Failed dependency condition matches.
// A timeout is a failure for condition purposes.
func (s State) failure() bool {
	return s == StateFailed || s == StateTimedOut
}

// ConditionMatches evaluates one dependency condition against the final
// state of the upstream activity.
func ConditionMatches(condition pipeline.Condition, state State) bool {
	switch condition {
	case pipeline.ConditionCompleted:
		return state.Terminal() && state != StateCancelled
	case pipeline.ConditionSucceeded:
		return state == StateSucceeded
	case pipeline.ConditionFailed:
		return state.failure()
	case pipeline.ConditionSkipped:
		return state == StateSkipped
	}
	return false
}

// DependencySatisfied reports whether the dependency's condition set
// admits the upstream state. Any listed condition matching is enough.
func DependencySatisfied(dep pipeline.Dependency, state State) bool {
	for _, condition := range dep.DependencyConditions {
		if ConditionMatches(condition, state) {
			return true
		}
	}
	return false
}
