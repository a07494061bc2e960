package temporalworker

import (
	"errors"
	"sync"
	"time"

	"fabrik/internal/fabric"
	"fabrik/internal/logging"
	"fabrik/internal/temporal"
	"fabrik/internal/temporal/activities"
	"fabrik/internal/temporal/workflows"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

const defaultMaxConcurrentActivities = 10
const defaultMaxConcurrentWorkflowTasks = 10
const defaultWorkerStopTimeout = 5 * time.Second
const defaultDeadlockDetectionTimeout = 10 * time.Second

var workerMutex sync.Mutex
var activeWorker worker.Worker

// StartWorker registers the pipeline run workflow and notebook activities
// on the pipeline task queue. Only one worker runs per process.
func StartWorker(temporalClient temporal.WorkflowClient, fabricClient *fabric.Client, logger *logging.Logger) error {
	if temporalClient == nil {
		return errors.New("temporal client is required")
	}

	sdkClient, ok := temporalClient.(client.Client)
	if !ok {
		return errors.New("temporal client does not support worker")
	}

	workerMutex.Lock()
	if activeWorker != nil {
		workerMutex.Unlock()
		return errors.New("temporal worker already running")
	}
	workerMutex.Unlock()

	activityHandlers := activities.NewNotebookActivities(fabricClient, logger)

	workerOptions := worker.Options{
		MaxConcurrentActivityExecutionSize:     defaultMaxConcurrentActivities,
		MaxConcurrentWorkflowTaskExecutionSize: defaultMaxConcurrentWorkflowTasks,
		MaxConcurrentActivityTaskPollers:       2,
		MaxConcurrentWorkflowTaskPollers:       2,
		WorkerStopTimeout:                      defaultWorkerStopTimeout,
		DeadlockDetectionTimeout:               defaultDeadlockDetectionTimeout,
	}

	workerInstance := worker.New(sdkClient, workflows.PipelineTaskQueueName, workerOptions)
	workerInstance.RegisterWorkflow(workflows.PipelineRunWorkflow)
	workerInstance.RegisterActivity(activityHandlers)

	startError := workerInstance.Start()
	if startError != nil {
		return startError
	}

	workerMutex.Lock()
	activeWorker = workerInstance
	workerMutex.Unlock()

	if logger != nil {
		logger.Info("temporal worker started", map[string]string{
			"task_queue": workflows.PipelineTaskQueueName,
		})
	}

	return nil
}

func StopWorker() {
	workerMutex.Lock()
	workerInstance := activeWorker
	activeWorker = nil
	workerMutex.Unlock()

	if workerInstance != nil {
		workerInstance.Stop()
	}
}
