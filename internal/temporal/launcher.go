package temporal

import (
	"context"
	"fmt"
	"sort"

	"fabrik/internal/pipeline"
	"fabrik/internal/temporal/workflows"

	"go.temporal.io/sdk/client"
)

const runMemoKey = "pipeline_run"

// StartPipelineRun launches a pipeline run workflow on the pipeline task
// queue. The returned workflow ID is derived from the run ID so callers
// can signal and query the run later.
func StartPipelineRun(ctx context.Context, workflowClient WorkflowClient, input workflows.RunInput) (string, error) {
	if workflowClient == nil {
		return "", fmt.Errorf("temporal client is required")
	}
	if input.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	memoPayload, err := SerializeRunMemo(runMemoFor(input))
	if err != nil {
		return "", fmt.Errorf("unable to serialize run memo: %w", err)
	}

	workflowID := RunWorkflowID(input.RunID)
	options := client.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: workflows.PipelineTaskQueueName,
		Memo: map[string]interface{}{
			runMemoKey: memoPayload,
		},
	}

	_, err = workflowClient.ExecuteWorkflow(ctx, options, workflows.PipelineRunWorkflow, input)
	if err != nil {
		return "", err
	}
	return workflowID, nil
}

// CancelPipelineRun signals the workflow to stop scheduling activities.
// Running activities are cancelled and the run finishes as cancelled.
func CancelPipelineRun(ctx context.Context, workflowClient WorkflowClient, runID string) error {
	if workflowClient == nil {
		return fmt.Errorf("temporal client is required")
	}
	return workflowClient.SignalWorkflow(ctx, RunWorkflowID(runID), "", workflows.CancelRunSignalName, nil)
}

// QueryRunStatus returns the current per-activity states of a run.
func QueryRunStatus(ctx context.Context, workflowClient WorkflowClient, runID string) (workflows.RunStatus, error) {
	var status workflows.RunStatus
	if workflowClient == nil {
		return status, fmt.Errorf("temporal client is required")
	}
	value, err := workflowClient.QueryWorkflow(ctx, RunWorkflowID(runID), "", workflows.RunStatusQueryName)
	if err != nil {
		return status, err
	}
	if err := value.Get(&status); err != nil {
		return status, err
	}
	return status, nil
}

// AwaitRunResult blocks until the workflow completes and returns its
// final status.
func AwaitRunResult(ctx context.Context, workflowClient WorkflowClient, runID string) (workflows.RunStatus, error) {
	var status workflows.RunStatus
	if workflowClient == nil {
		return status, fmt.Errorf("temporal client is required")
	}
	run := workflowClient.GetWorkflow(ctx, RunWorkflowID(runID), "")
	err := run.Get(ctx, &status)
	return status, err
}

func RunWorkflowID(runID string) string {
	return "pipeline-run-" + runID
}

func runMemoFor(input workflows.RunInput) *RunMemo {
	memo := &RunMemo{
		RunID:      input.RunID,
		Pipeline:   input.Definition.Name,
		Activities: activityNames(input.Definition),
	}
	for name := range input.Parameters {
		memo.Parameters = append(memo.Parameters, name)
	}
	sort.Strings(memo.Parameters)
	return memo
}

func activityNames(definition pipeline.Definition) []string {
	names := make([]string, 0, len(definition.Properties.Activities))
	for _, activity := range definition.Properties.Activities {
		names = append(names, activity.Name)
	}
	sort.Strings(names)
	return names
}
