package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"fabrik/internal/pipeline"
	"fabrik/internal/runs"
)

// PipelineTaskQueueName is the task queue pipeline run workers poll.
const PipelineTaskQueueName = "fabrik-pipeline-runs"

const (
	// CancelRunSignalName asks a running workflow to stop scheduling
	// new activities.
	CancelRunSignalName = "cancel_run"
	// RunStatusQueryName returns the per-activity states of a run.
	RunStatusQueryName = "run_status"
	// RunNotebookActivityName is the registered name of the notebook
	// job activity.
	RunNotebookActivityName = "RunNotebookActivity"
)

const (
	defaultActivityTimeout   = time.Hour
	defaultHeartbeatTimeout  = time.Minute
	defaultRetryWaitFallback = 30 * time.Second
)

// RunInput starts a pipeline run workflow.
type RunInput struct {
	RunID      string              `json:"runId"`
	Definition pipeline.Definition `json:"definition"`
	Parameters map[string]any      `json:"parameters,omitempty"`
}

// NotebookRunRequest is the payload handed to the notebook activity.
type NotebookRunRequest struct {
	RunID      string            `json:"runId"`
	Activity   pipeline.Activity `json:"activity"`
	Parameters map[string]any    `json:"parameters,omitempty"`
}

// RunStatus answers the status query and is the workflow result.
type RunStatus struct {
	RunID      string            `json:"runId"`
	Pipeline   string            `json:"pipeline"`
	State      string            `json:"state"`
	Activities map[string]string `json:"activities"`
}

// PipelineRunWorkflow executes a validated pipeline definition with the
// same dependency-condition and policy semantics as the local engine,
// expressed as one Temporal activity per pipeline activity.
func PipelineRunWorkflow(ctx workflow.Context, input RunInput) (RunStatus, error) {
	logger := workflow.GetLogger(ctx)
	d := &input.Definition

	status := RunStatus{
		RunID:      input.RunID,
		Pipeline:   d.Name,
		State:      string(runs.StateRunning),
		Activities: map[string]string{},
	}
	states := map[string]runs.State{}
	for _, activity := range d.Properties.Activities {
		states[activity.Name] = runs.StatePending
		status.Activities[activity.Name] = string(runs.StatePending)
	}
	syncStatus := func() {
		for name, state := range states {
			status.Activities[name] = string(state)
		}
	}

	if err := workflow.SetQueryHandler(ctx, RunStatusQueryName, func() (RunStatus, error) {
		return status, nil
	}); err != nil {
		return status, err
	}

	cancelled := false
	runCtx, cancelRun := workflow.WithCancel(ctx)
	workflow.Go(ctx, func(gctx workflow.Context) {
		signals := workflow.GetSignalChannel(gctx, CancelRunSignalName)
		var ignored any
		signals.Receive(gctx, &ignored)
		cancelled = true
		cancelRun()
	})

	graph := pipeline.NewGraph(d)
	waves, err := graph.ExecutionOrder()
	if err != nil {
		status.State = string(runs.StateFailed)
		return status, err
	}

	for _, wave := range waves {
		if cancelled {
			break
		}

		type pendingActivity struct {
			name   string
			future workflow.Future
		}
		var futures []pendingActivity

		for _, name := range wave {
			activity, _ := d.Activity(name)

			if skipped := applySkip(activity, states); skipped {
				states[name] = runs.StateSkipped
				syncStatus()
				continue
			}

			parameters, err := pipeline.EvalActivityParameters(activity, input.Parameters)
			if err != nil {
				states[name] = runs.StateFailed
				syncStatus()
				logger.Warn("activity parameter binding failed", "activity", name, "error", err)
				continue
			}

			actx := workflow.WithActivityOptions(runCtx, activityOptions(activity.Policy))
			futures = append(futures, pendingActivity{
				name: name,
				future: workflow.ExecuteActivity(actx, RunNotebookActivityName, NotebookRunRequest{
					RunID:      input.RunID,
					Activity:   activity,
					Parameters: parameters,
				}),
			})
			states[name] = runs.StateRunning
			syncStatus()
		}

		for _, pending := range futures {
			var output map[string]any
			err := pending.future.Get(runCtx, &output)
			switch {
			case err == nil:
				states[pending.name] = runs.StateSucceeded
			case temporal.IsCanceledError(err) || cancelled:
				states[pending.name] = runs.StateCancelled
				cancelled = true
			case temporal.IsTimeoutError(err):
				states[pending.name] = runs.StateTimedOut
			default:
				states[pending.name] = runs.StateFailed
			}
			if err != nil {
				logger.Warn("pipeline activity finished with error", "activity", pending.name, "error", err)
			}
			syncStatus()
		}
	}

	if cancelled {
		for name, state := range states {
			if !state.Terminal() {
				states[name] = runs.StateCancelled
			}
		}
	}

	results := map[string]*runs.ActivityResult{}
	for name, state := range states {
		results[name] = &runs.ActivityResult{Name: name, State: state}
	}
	final := runs.Outcome(d, graph, results, cancelled)
	syncStatus()
	status.State = string(final)
	return status, nil
}

// applySkip mirrors the local engine's skip cascade for one activity.
func applySkip(activity pipeline.Activity, states map[string]runs.State) bool {
	for _, dep := range activity.DependsOn {
		upstream, ok := states[dep.Activity]
		if !ok {
			continue
		}
		if !runs.DependencySatisfied(dep, upstream) {
			return true
		}
	}
	return false
}

// activityOptions translates an activity policy into Temporal options.
// The fixed retry interval maps to BackoffCoefficient 1.0 and retry
// extra attempts to MaximumAttempts retry+1.
func activityOptions(policy *pipeline.Policy) workflow.ActivityOptions {
	timeout := defaultActivityTimeout
	attempts := int32(1)
	retryWait := defaultRetryWaitFallback
	if policy != nil {
		if !policy.Timeout.IsZero() {
			timeout = policy.Timeout.Duration()
		}
		attempts = int32(policy.Retry + 1)
		if policy.RetryIntervalInSeconds > 0 {
			retryWait = time.Duration(policy.RetryIntervalInSeconds) * time.Second
		}
	}
	return workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		HeartbeatTimeout:    defaultHeartbeatTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    retryWait,
			BackoffCoefficient: 1.0,
			MaximumAttempts:    attempts,
		},
	}
}
