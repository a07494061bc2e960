package runs

import (
	"context"
	"fmt"
	"time"

	"fabrik/internal/fabric"
	"fabrik/internal/pipeline"
)

// Invocation is one activity execution request.
type Invocation struct {
	RunID      string
	Activity   pipeline.Activity
	Parameters map[string]any
}

// Invoker executes a single activity and returns its output.
type Invoker interface {
	Invoke(ctx context.Context, inv Invocation) (map[string]any, error)
}

// DryRunInvoker succeeds without touching any service. Validation runs
// use it to exercise ordering, conditions, and policies.
type DryRunInvoker struct {
	// Delay simulates activity latency. Zero returns immediately.
	Delay time.Duration
	// Fail lists activity names that should report failure.
	Fail map[string]string
}

func (d *DryRunInvoker) Invoke(ctx context.Context, inv Invocation) (map[string]any, error) {
	if d.Delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d.Delay):
		}
	}
	if message, ok := d.Fail[inv.Activity.Name]; ok {
		return nil, fmt.Errorf("%s", message)
	}
	return map[string]any{"dryRun": true, "activity": inv.Activity.Name}, nil
}

// NotebookInvoker runs TridentNotebook activities as Fabric notebook
// jobs and polls them to completion.
type NotebookInvoker struct {
	Client *fabric.Client
}

func (n *NotebookInvoker) Invoke(ctx context.Context, inv Invocation) (map[string]any, error) {
	if !inv.Activity.IsNotebook() {
		return nil, fmt.Errorf("activity type %q has no invoker", inv.Activity.Type)
	}
	props := inv.Activity.TypeProperties
	jobID, err := n.Client.RunNotebookJob(ctx, props.WorkspaceID, props.NotebookID, inv.Parameters)
	if err != nil {
		return nil, fmt.Errorf("start notebook job: %w", err)
	}
	instance, err := n.Client.WaitForJob(ctx, props.WorkspaceID, props.NotebookID, jobID, nil)
	if err != nil {
		return nil, fmt.Errorf("wait for notebook job %s: %w", jobID, err)
	}
	output := map[string]any{
		"jobId":  instance.ID,
		"status": instance.Status,
	}
	if instance.Status != fabric.JobStatusCompleted {
		message := instance.Status
		if instance.FailureReason != nil {
			message = instance.FailureReason.Message
		}
		return output, fmt.Errorf("notebook job %s: %s", jobID, message)
	}
	return output, nil
}
