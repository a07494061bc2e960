package fabric

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Job instance statuses the service reports.
const (
	JobStatusNotStarted = "NotStarted"
	JobStatusInProgress = "InProgress"
	JobStatusCompleted  = "Completed"
	JobStatusFailed     = "Failed"
	JobStatusCancelled  = "Cancelled"
	JobStatusDeduped    = "Deduped"
)

// JobInstance is one run of an item job.
type JobInstance struct {
	ID            string `json:"id"`
	ItemID        string `json:"itemId,omitempty"`
	JobType       string `json:"jobType,omitempty"`
	Status        string `json:"status"`
	StartTimeUTC  string `json:"startTimeUtc,omitempty"`
	EndTimeUTC    string `json:"endTimeUtc,omitempty"`
	FailureReason *struct {
		Message   string `json:"message"`
		ErrorCode string `json:"errorCode,omitempty"`
	} `json:"failureReason,omitempty"`
}

// Terminal reports whether the job has finished.
func (j JobInstance) Terminal() bool {
	switch j.Status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled, JobStatusDeduped:
		return true
	}
	return false
}

// notebookParameter is the {value, type} pair RunNotebook expects.
type notebookParameter struct {
	Value any    `json:"value"`
	Type  string `json:"type"`
}

func parameterType(value any) string {
	switch value.(type) {
	case bool:
		return "bool"
	case int, int32, int64:
		return "int"
	case float32, float64:
		return "float"
	case json.Number:
		if number, ok := value.(json.Number); ok && !strings.Contains(number.String(), ".") {
			return "int"
		}
		return "float"
	default:
		return "string"
	}
}

// RunNotebookJob schedules a notebook job and returns its instance ID.
// Parameter values are typed the way the job scheduler expects.
func (c *Client) RunNotebookJob(ctx context.Context, workspaceID, notebookID string, parameters map[string]any) (string, error) {
	if workspaceID == "" || notebookID == "" {
		return "", fmt.Errorf("workspace id and notebook id are required")
	}
	typed := map[string]notebookParameter{}
	for name, value := range parameters {
		typed[name] = notebookParameter{Value: value, Type: parameterType(value)}
	}
	body := map[string]any{}
	if len(typed) > 0 {
		body["executionData"] = map[string]any{"parameters": typed}
	}

	target := c.fabricURL("/workspaces/" + url.PathEscape(workspaceID) +
		"/items/" + url.PathEscape(notebookID) + "/jobs/instances?jobType=RunNotebook")
	response, err := c.request(ctx, http.MethodPost, target, body)
	if err != nil {
		return "", err
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusAccepted && response.StatusCode != http.StatusOK {
		return "", apiError(response)
	}
	io.Copy(io.Discard, response.Body)

	// The job instance ID arrives as the tail of the Location header.
	location := response.Header.Get("Location")
	if location == "" {
		return "", fmt.Errorf("job accepted but no Location header returned")
	}
	segments := strings.Split(strings.TrimRight(location, "/"), "/")
	return segments[len(segments)-1], nil
}

// JobInstance fetches the current state of a job run.
func (c *Client) JobInstance(ctx context.Context, workspaceID, itemID, jobID string) (JobInstance, error) {
	if workspaceID == "" || itemID == "" || jobID == "" {
		return JobInstance{}, fmt.Errorf("workspace id, item id, and job id are required")
	}
	var instance JobInstance
	target := c.fabricURL("/workspaces/" + url.PathEscape(workspaceID) +
		"/items/" + url.PathEscape(itemID) + "/jobs/instances/" + url.PathEscape(jobID))
	if err := c.do(ctx, http.MethodGet, target, nil, &instance); err != nil {
		return JobInstance{}, err
	}
	return instance, nil
}

// WaitForJob polls until the job reaches a terminal status or the
// context ends. The poll interval backs off from 2s to 30s. onPoll, when
// set, is invoked after each poll with the latest state.
func (c *Client) WaitForJob(ctx context.Context, workspaceID, itemID, jobID string, onPoll func(JobInstance)) (JobInstance, error) {
	interval := 2 * time.Second
	for {
		instance, err := c.JobInstance(ctx, workspaceID, itemID, jobID)
		if err != nil {
			return JobInstance{}, err
		}
		if onPoll != nil {
			onPoll(instance)
		}
		if instance.Terminal() {
			return instance, nil
		}
		select {
		case <-ctx.Done():
			return instance, ctx.Err()
		case <-time.After(interval):
		}
		if interval < 30*time.Second {
			interval *= 2
			if interval > 30*time.Second {
				interval = 30 * time.Second
			}
		}
	}
}

// CancelJob requests cancellation of a running job.
func (c *Client) CancelJob(ctx context.Context, workspaceID, itemID, jobID string) error {
	if workspaceID == "" || itemID == "" || jobID == "" {
		return fmt.Errorf("workspace id, item id, and job id are required")
	}
	target := c.fabricURL("/workspaces/" + url.PathEscape(workspaceID) +
		"/items/" + url.PathEscape(itemID) + "/jobs/instances/" + url.PathEscape(jobID) + "/cancel")
	return c.do(ctx, http.MethodPost, target, nil, nil)
}
