package event

import "time"

// Event represents a typed event with an occurrence timestamp.
type Event interface {
	Type() string
	Timestamp() time.Time
}

// FileEvent represents a filesystem change under a watched pipeline directory.
type FileEvent struct {
	EventType  string
	Path       string
	Operation  string
	OccurredAt time.Time
}

func NewFileEvent(path, operation string) FileEvent {
	return FileEvent{
		EventType:  "file_changed",
		Path:       path,
		Operation:  operation,
		OccurredAt: time.Now().UTC(),
	}
}

func (e FileEvent) Type() string {
	return e.EventType
}

func (e FileEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// PipelineEvent captures validation outcomes for a pipeline definition.
type PipelineEvent struct {
	EventType  string
	Path       string
	Pipeline   string
	Problem    string
	OccurredAt time.Time
}

func NewPipelineEvent(path, pipeline, eventType, problem string) PipelineEvent {
	return PipelineEvent{
		EventType:  eventType,
		Path:       path,
		Pipeline:   pipeline,
		Problem:    problem,
		OccurredAt: time.Now().UTC(),
	}
}

func (e PipelineEvent) Type() string {
	return e.EventType
}

func (e PipelineEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// RunEvent captures pipeline run lifecycle changes.
type RunEvent struct {
	EventType  string
	RunID      string
	Pipeline   string
	State      string
	OccurredAt time.Time
}

func NewRunEvent(runID, pipeline, eventType, state string) RunEvent {
	return RunEvent{
		EventType:  eventType,
		RunID:      runID,
		Pipeline:   pipeline,
		State:      state,
		OccurredAt: time.Now().UTC(),
	}
}

func (e RunEvent) Type() string {
	return e.EventType
}

func (e RunEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// ActivityEvent captures per-activity state transitions inside a run.
type ActivityEvent struct {
	EventType  string
	RunID      string
	Activity   string
	State      string
	Attempt    int
	Detail     string
	OccurredAt time.Time
}

func NewActivityEvent(runID, activity, state string, attempt int, detail string) ActivityEvent {
	return ActivityEvent{
		EventType:  "activity_state",
		RunID:      runID,
		Activity:   activity,
		State:      state,
		Attempt:    attempt,
		Detail:     detail,
		OccurredAt: time.Now().UTC(),
	}
}

func (e ActivityEvent) Type() string {
	return e.EventType
}

func (e ActivityEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// BackupEvent captures model backup lifecycle changes.
type BackupEvent struct {
	EventType  string
	BackupID   string
	Workspace  string
	Model      string
	OccurredAt time.Time
}

func NewBackupEvent(backupID, workspace, model, eventType string) BackupEvent {
	return BackupEvent{
		EventType:  eventType,
		BackupID:   backupID,
		Workspace:  workspace,
		Model:      model,
		OccurredAt: time.Now().UTC(),
	}
}

func (e BackupEvent) Type() string {
	return e.EventType
}

func (e BackupEvent) Timestamp() time.Time {
	return e.OccurredAt
}
