package activities

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"

	"fabrik/internal/fabric"
	"fabrik/internal/logging"
	"fabrik/internal/temporal/workflows"
)

const jobPollInterval = 5 * time.Second

// NotebookActivities executes TridentNotebook pipeline activities as
// Fabric notebook jobs.
type NotebookActivities struct {
	client *fabric.Client
	logger *logging.Logger
}

func NewNotebookActivities(client *fabric.Client, logger *logging.Logger) *NotebookActivities {
	return &NotebookActivities{client: client, logger: logger}
}

// RunNotebookActivity schedules the notebook job and polls it to a
// terminal status, heartbeating on every poll so a stalled job is
// detected by the heartbeat timeout.
func (a *NotebookActivities) RunNotebookActivity(ctx context.Context, request workflows.NotebookRunRequest) (map[string]any, error) {
	if a.client == nil {
		return nil, errors.New("fabric client is not configured")
	}
	if !request.Activity.IsNotebook() {
		return nil, fmt.Errorf("activity type %q cannot run as a notebook job", request.Activity.Type)
	}

	props := request.Activity.TypeProperties
	jobID, err := a.client.RunNotebookJob(ctx, props.WorkspaceID, props.NotebookID, request.Parameters)
	if err != nil {
		return nil, fmt.Errorf("start notebook job: %w", err)
	}
	if a.logger != nil {
		a.logger.Info("notebook job started", map[string]string{
			"run":      request.RunID,
			"activity": request.Activity.Name,
			"job":      jobID,
		})
	}

	for {
		instance, err := a.client.JobInstance(ctx, props.WorkspaceID, props.NotebookID, jobID)
		if err != nil {
			return nil, fmt.Errorf("poll notebook job %s: %w", jobID, err)
		}
		activity.RecordHeartbeat(ctx, instance.Status)

		if instance.Terminal() {
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

		select {
		case <-ctx.Done():
			// Best effort: ask the service to stop the job too.
			cancelCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			a.client.CancelJob(cancelCtx, props.WorkspaceID, props.NotebookID, jobID)
			cancel()
			return nil, ctx.Err()
		case <-time.After(jobPollInterval):
		}
	}
}
