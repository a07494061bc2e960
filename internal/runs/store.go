package runs

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store persists run history in a SQLite database.
type Store struct {
	db   *sql.DB
	path string
}

const storeSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	pipeline    TEXT NOT NULL,
	state       TEXT NOT NULL,
	parameters  TEXT NOT NULL DEFAULT '{}',
	started_at  TIMESTAMP NOT NULL,
	finished_at TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_runs_pipeline ON runs(pipeline);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

CREATE TABLE IF NOT EXISTS run_activities (
	run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	name        TEXT NOT NULL,
	state       TEXT NOT NULL,
	attempts    INTEGER NOT NULL DEFAULT 0,
	input       TEXT,
	output      TEXT,
	error       TEXT,
	started_at  TIMESTAMP,
	finished_at TIMESTAMP,
	PRIMARY KEY (run_id, name)
);
`

// OpenStore opens (and if needed creates) the run history database.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open run store: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	if _, err := db.Exec(storeSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init run store: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun upserts the run and its activity results.
func (s *Store) SaveRun(run *Run) error {
	parameters, err := json.Marshal(run.Parameters)
	if err != nil {
		return fmt.Errorf("encode run parameters: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO runs (id, pipeline, state, parameters, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			parameters = excluded.parameters,
			finished_at = excluded.finished_at`,
		run.ID, run.Pipeline, string(run.State), string(parameters),
		run.StartedAt, nullableTime(run.FinishedAt))
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}

	for _, activity := range run.Activities {
		input, err := json.Marshal(activity.Input)
		if err != nil {
			return fmt.Errorf("encode activity input: %w", err)
		}
		output, err := json.Marshal(activity.Output)
		if err != nil {
			return fmt.Errorf("encode activity output: %w", err)
		}
		_, err = tx.Exec(`
			INSERT INTO run_activities (run_id, name, state, attempts, input, output, error, started_at, finished_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(run_id, name) DO UPDATE SET
				state = excluded.state,
				attempts = excluded.attempts,
				input = excluded.input,
				output = excluded.output,
				error = excluded.error,
				started_at = excluded.started_at,
				finished_at = excluded.finished_at`,
			run.ID, activity.Name, string(activity.State), activity.Attempts,
			string(input), string(output), activity.Error,
			nullableTime(activity.StartedAt), nullableTime(activity.FinishedAt))
		if err != nil {
			return fmt.Errorf("save activity %s/%s: %w", run.ID, activity.Name, err)
		}
	}
	return tx.Commit()
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

// GetRun loads one run with its activity results.
func (s *Store) GetRun(id string) (*Run, error) {
	row := s.db.QueryRow(`SELECT id, pipeline, state, parameters, started_at, finished_at FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`
		SELECT name, state, attempts, input, output, error, started_at, finished_at
		FROM run_activities WHERE run_id = ? ORDER BY name`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			activity              ActivityResult
			state                 string
			input, output         sql.NullString
			errText               sql.NullString
			startedAt, finishedAt sql.NullTime
		)
		if err := rows.Scan(&activity.Name, &state, &activity.Attempts, &input, &output, &errText, &startedAt, &finishedAt); err != nil {
			return nil, err
		}
		activity.State = State(state)
		activity.Error = errText.String
		if input.Valid && input.String != "null" {
			json.Unmarshal([]byte(input.String), &activity.Input)
		}
		if output.Valid && output.String != "null" {
			json.Unmarshal([]byte(output.String), &activity.Output)
		}
		if startedAt.Valid {
			activity.StartedAt = startedAt.Time
		}
		if finishedAt.Valid {
			activity.FinishedAt = finishedAt.Time
		}
		result := activity
		run.Activities[activity.Name] = &result
	}
	return run, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run        Run
		state      string
		parameters string
		finishedAt sql.NullTime
	)
	if err := row.Scan(&run.ID, &run.Pipeline, &state, &parameters, &run.StartedAt, &finishedAt); err != nil {
		return nil, err
	}
	run.State = State(state)
	run.Activities = map[string]*ActivityResult{}
	if parameters != "" && parameters != "null" {
		json.Unmarshal([]byte(parameters), &run.Parameters)
	}
	if finishedAt.Valid {
		run.FinishedAt = finishedAt.Time
	}
	return &run, nil
}

// ListFilter narrows ListRuns. Zero values mean no constraint.
type ListFilter struct {
	Pipeline string
	State    State
	Limit    int
}

const defaultListLimit = 50

// ListRuns returns run summaries, newest first. Activity results are
// not loaded.
func (s *Store) ListRuns(filter ListFilter) ([]*Run, error) {
	query := `SELECT id, pipeline, state, parameters, started_at, finished_at FROM runs`
	var (
		clauses []string
		args    []any
	)
	if filter.Pipeline != "" {
		clauses = append(clauses, "pipeline = ?")
		args = append(args, filter.Pipeline)
	}
	if filter.State != "" {
		clauses = append(clauses, "state = ?")
		args = append(args, string(filter.State))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += " ORDER BY started_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Prune deletes runs that started before the cutoff and returns how
// many were removed.
func (s *Store) Prune(before time.Time) (int, error) {
	result, err := s.db.Exec(`DELETE FROM runs WHERE started_at < ?`, before)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	deleted, err := result.RowsAffected()
	return int(deleted), err
}
