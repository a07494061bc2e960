package runs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"fabrik/internal/event"
	"fabrik/internal/logging"
	"fabrik/internal/pipeline"
)

// Event types published on the bus during a run.
const (
	EventRunStarted  = "run_started"
	EventRunFinished = "run_finished"
)

// Options configures the local run engine. Invoker is required; the
// rest are optional.
type Options struct {
	Invoker Invoker
	Store   *Store
	Bus     *event.Bus[event.Event]
	Logger  *logging.Logger
	// DefaultTimeout bounds attempts whose policy declares no timeout.
	DefaultTimeout time.Duration
}

// Engine executes validated pipeline definitions in-process, honoring
// dependency conditions, per-attempt timeouts, and retry policies.
type Engine struct {
	invoker        Invoker
	store          *Store
	bus            *event.Bus[event.Event]
	logger         *logging.Logger
	defaultTimeout time.Duration
}

const engineDefaultTimeout = time.Hour

func NewEngine(opts Options) (*Engine, error) {
	if opts.Invoker == nil {
		return nil, errors.New("run engine requires an invoker")
	}
	timeout := opts.DefaultTimeout
	if timeout <= 0 {
		timeout = engineDefaultTimeout
	}
	return &Engine{
		invoker:        opts.Invoker,
		store:          opts.Store,
		bus:            opts.Bus,
		logger:         opts.Logger,
		defaultTimeout: timeout,
	}, nil
}

type completion struct {
	name   string
	result *ActivityResult
}

// Execute runs the definition to completion. Parameter overrides are
// merged over declared defaults. The returned run holds per-activity
// results even when the run fails or is cancelled.
func (e *Engine) Execute(ctx context.Context, d *pipeline.Definition, overrides map[string]any) (*Run, error) {
	run, graph, parameters, err := e.prepare(d, overrides)
	if err != nil {
		return nil, err
	}
	return e.run(ctx, d, graph, run, parameters)
}

// Launch starts the definition in the background. The returned run is
// a snapshot of the initial Running state; progress lands in the store
// and on the bus. The wait function blocks for the final result and
// may be called once.
func (e *Engine) Launch(ctx context.Context, d *pipeline.Definition, overrides map[string]any) (*Run, func() (*Run, error), error) {
	run, graph, parameters, err := e.prepare(d, overrides)
	if err != nil {
		return nil, nil, err
	}
	initial := run.snapshot()

	type outcome struct {
		run *Run
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		finished, runErr := e.run(ctx, d, graph, run, parameters)
		done <- outcome{run: finished, err: runErr}
	}()
	wait := func() (*Run, error) {
		result := <-done
		return result.run, result.err
	}
	return initial, wait, nil
}

// prepare validates the definition, resolves parameters, and records
// the initial Running state.
func (e *Engine) prepare(d *pipeline.Definition, overrides map[string]any) (*Run, *pipeline.Graph, map[string]any, error) {
	if err := pipeline.Validate(d); err != nil {
		return nil, nil, nil, err
	}
	parameters, err := pipeline.ResolveParameters(d, overrides)
	if err != nil {
		return nil, nil, nil, err
	}
	graph := pipeline.NewGraph(d)
	if _, err := graph.ExecutionOrder(); err != nil {
		return nil, nil, nil, err
	}

	run := newRun(d, parameters)
	e.publishRun(run, EventRunStarted)
	e.persist(run)
	return run, graph, parameters, nil
}

func (e *Engine) run(ctx context.Context, d *pipeline.Definition, graph *pipeline.Graph, run *Run, parameters map[string]any) (*Run, error) {
	completions := make(chan completion)
	running := 0
	cancelled := false
	ctxDone := ctx.Done()

	for {
		if !cancelled {
			running += e.launchReady(ctx, d, run, parameters, completions)
		}
		if running == 0 {
			break
		}

		select {
		case <-ctxDone:
			cancelled = true
			ctxDone = nil
		case done := <-completions:
			running--
			*run.Activities[done.name] = *done.result
			e.publishActivity(run.ID, done.result)
			e.persist(run)
		}
	}

	if cancelled {
		e.cancelRemaining(run)
	}
	run.State = Outcome(d, graph, run.Activities, cancelled)
	run.FinishedAt = time.Now().UTC()
	e.publishRun(run, EventRunFinished)
	e.persist(run)

	if cancelled {
		return run, ctx.Err()
	}
	return run, nil
}

// launchReady starts every runnable activity and applies skip cascades
// until the ready set stops growing. It returns how many activities
// were started.
func (e *Engine) launchReady(ctx context.Context, d *pipeline.Definition, run *Run, parameters map[string]any, completions chan<- completion) int {
	started := 0
	for {
		skipped := false
		for _, name := range e.ready(d, run) {
			activity, _ := d.Activity(name)
			state := run.Activities[name]

			if skip, reason := e.shouldSkip(activity, run); skip {
				state.State = StateSkipped
				state.Error = reason
				state.FinishedAt = time.Now().UTC()
				e.publishActivity(run.ID, state)
				e.persist(run)
				skipped = true
				continue
			}

			state.State = StateRunning
			state.StartedAt = time.Now().UTC()
			e.publishActivity(run.ID, state)
			started++
			go e.runActivity(ctx, run.ID, activity, parameters, completions)
		}
		// A skip may have unlocked further dependents.
		if !skipped {
			return started
		}
	}
}

// ready lists pending activities whose dependencies have all finished.
func (e *Engine) ready(d *pipeline.Definition, run *Run) []string {
	var names []string
	for _, activity := range d.Properties.Activities {
		state := run.Activities[activity.Name]
		if state.State != StatePending {
			continue
		}
		allDone := true
		for _, dep := range activity.DependsOn {
			if upstream, ok := run.Activities[dep.Activity]; !ok || !upstream.State.Terminal() {
				allDone = false
				break
			}
		}
		if allDone {
			names = append(names, activity.Name)
		}
	}
	return names
}

// shouldSkip applies the dependency conditions once every dependency is
// terminal. An unmatched condition set cascades a skip.
func (e *Engine) shouldSkip(activity pipeline.Activity, run *Run) (bool, string) {
	for _, dep := range activity.DependsOn {
		upstream := run.Activities[dep.Activity]
		if !DependencySatisfied(dep, upstream.State) {
			return true, fmt.Sprintf("dependency %s finished %s, conditions %v unmatched",
				dep.Activity, upstream.State, dep.DependencyConditions)
		}
	}
	return false, ""
}

func (e *Engine) cancelRemaining(run *Run) {
	for _, state := range run.Activities {
		if !state.State.Terminal() {
			state.State = StateCancelled
			state.FinishedAt = time.Now().UTC()
			e.publishActivity(run.ID, state)
		}
	}
}

// runActivity executes one activity with its retry policy. Each attempt
// gets its own timeout context; TimedOut is recorded when the attempt
// deadline, not the run context, expired.
func (e *Engine) runActivity(ctx context.Context, runID string, activity pipeline.Activity, parameters map[string]any, completions chan<- completion) {
	policy := activity.Policy
	attempts := 1
	retryWait := time.Duration(0)
	timeout := e.defaultTimeout
	secureInput, secureOutput := false, false
	if policy != nil {
		attempts = policy.Retry + 1
		retryWait = time.Duration(policy.RetryIntervalInSeconds) * time.Second
		if !policy.Timeout.IsZero() {
			timeout = policy.Timeout.Duration()
		}
		secureInput = policy.SecureInput
		secureOutput = policy.SecureOutput
	}

	input, err := pipeline.EvalActivityParameters(activity, parameters)
	if err != nil {
		completions <- completion{name: activity.Name, result: &ActivityResult{
			Name:       activity.Name,
			State:      StateFailed,
			Error:      err.Error(),
			FinishedAt: time.Now().UTC(),
		}}
		return
	}

	result := &ActivityResult{
		Name:      activity.Name,
		State:     StateRunning,
		Input:     redactMap(input, secureInput),
		StartedAt: time.Now().UTC(),
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		result.Attempts = attempt

		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		output, invokeErr := e.invoker.Invoke(attemptCtx, Invocation{
			RunID:      runID,
			Activity:   activity,
			Parameters: input,
		})
		timedOut := attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil
		cancel()

		if invokeErr == nil {
			result.State = StateSucceeded
			result.Output = redactMap(output, secureOutput)
			result.Error = ""
			break
		}

		result.Output = redactMap(output, secureOutput)
		result.Error = invokeErr.Error()
		switch {
		case ctx.Err() != nil:
			result.State = StateCancelled
		case timedOut:
			result.State = StateTimedOut
		default:
			result.State = StateFailed
		}

		if result.State == StateCancelled || attempt == attempts {
			break
		}
		if e.logger != nil {
			e.logger.Warn("activity attempt failed", map[string]string{
				"activity": activity.Name,
				"attempt":  strconv.Itoa(attempt),
				"error":    invokeErr.Error(),
			})
		}
		if retryWait > 0 {
			ticker := time.NewTicker(retryWait)
			select {
			case <-ctx.Done():
				ticker.Stop()
				result.State = StateCancelled
				result.FinishedAt = time.Now().UTC()
				completions <- completion{name: activity.Name, result: result}
				return
			case <-ticker.C:
			}
			ticker.Stop()
		}
	}

	result.FinishedAt = time.Now().UTC()
	completions <- completion{name: activity.Name, result: result}
}

func (e *Engine) publishRun(run *Run, eventType string) {
	if e.bus != nil {
		e.bus.Publish(event.NewRunEvent(run.ID, run.Pipeline, eventType, string(run.State)))
	}
	if e.logger != nil {
		e.logger.Info(eventType, map[string]string{
			"run":      run.ID,
			"pipeline": run.Pipeline,
			"state":    string(run.State),
		})
	}
}

func (e *Engine) publishActivity(runID string, result *ActivityResult) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(event.NewActivityEvent(runID, result.Name, string(result.State), result.Attempts, result.Error))
}

func (e *Engine) persist(run *Run) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveRun(run); err != nil && e.logger != nil {
		e.logger.Error("persist run failed", map[string]string{
			"run":   run.ID,
			"error": err.Error(),
		})
	}
}
