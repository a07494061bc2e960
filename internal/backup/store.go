package backup

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fabrik/internal/event"
	"fabrik/internal/fabric"
	"fabrik/internal/logging"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	_ "github.com/mattn/go-sqlite3"
)

// Event types published on the bus for backup lifecycle changes.
const (
	EventBackupCreated  = "backup_created"
	EventBackupRestored = "backup_restored"
	EventBackupPruned   = "backup_pruned"
)

const modelPartSuffix = "model.bim"

// Backup is one catalogued semantic model snapshot.
type Backup struct {
	ID             string    `json:"id"`
	WorkspaceID    string    `json:"workspaceId"`
	WorkspaceName  string    `json:"workspaceName,omitempty"`
	ModelID        string    `json:"modelId"`
	ModelName      string    `json:"modelName,omitempty"`
	TakenAt        time.Time `json:"takenAt"`
	Size           int64     `json:"size"`
	CompressedSize int64     `json:"compressedSize"`
	SHA256         string    `json:"sha256"`
	ObjectKey      string    `json:"objectKey,omitempty"`
}

// Options configures a snapshot store. Dir and CatalogPath are required;
// the fabric client is only needed for Snapshot and Deploy.
type Options struct {
	Dir         string
	CatalogPath string
	Client      *fabric.Client
	Mirror      *Mirror
	Bus         *event.Bus[event.Event]
	Logger      *logging.Logger
}

// Store keeps compressed TMSL snapshots on disk with a SQLite catalog.
// Snapshot files are content addressed by the SHA-256 of the raw TMSL,
// so identical model states share one file.
type Store struct {
	dir    string
	db     *sql.DB
	client *fabric.Client
	mirror *Mirror
	bus    *event.Bus[event.Event]
	logger *logging.Logger
}

const catalogSchema = `
CREATE TABLE IF NOT EXISTS backups (
	id              TEXT PRIMARY KEY,
	workspace_id    TEXT NOT NULL,
	workspace_name  TEXT,
	model_id        TEXT NOT NULL,
	model_name      TEXT,
	taken_at        TIMESTAMP NOT NULL,
	size            INTEGER NOT NULL,
	compressed_size INTEGER NOT NULL,
	sha256          TEXT NOT NULL,
	object_key      TEXT
);
CREATE INDEX IF NOT EXISTS idx_backups_model ON backups(workspace_id, model_id);
CREATE INDEX IF NOT EXISTS idx_backups_taken ON backups(taken_at);
`

func OpenStore(opts Options) (*Store, error) {
	if strings.TrimSpace(opts.Dir) == "" {
		return nil, errors.New("backup directory is required")
	}
	if strings.TrimSpace(opts.CatalogPath) == "" {
		return nil, errors.New("backup catalog path is required")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}
	db, err := sql.Open("sqlite3", opts.CatalogPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open backup catalog: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	if _, err := db.Exec(catalogSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init backup catalog: %w", err)
	}
	return &Store{
		dir:    opts.Dir,
		db:     db,
		client: opts.Client,
		mirror: opts.Mirror,
		bus:    opts.Bus,
		logger: opts.Logger,
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Snapshot fetches the semantic model's TMSL definition and catalogs a
// compressed copy. Workspace and model accept either an ID or a display
// name.
func (s *Store) Snapshot(ctx context.Context, workspace, model string) (Backup, error) {
	if s.client == nil {
		return Backup{}, errors.New("fabric client is required for snapshots")
	}

	workspaceID, err := s.client.WorkspaceID(ctx, workspace)
	if err != nil {
		return Backup{}, err
	}
	item, err := s.findModel(ctx, workspaceID, model)
	if err != nil {
		return Backup{}, err
	}

	definition, err := s.client.GetItemDefinition(ctx, workspaceID, item.ID, "TMSL")
	if err != nil {
		return Backup{}, fmt.Errorf("fetch model definition: %w", err)
	}
	payload, err := modelPart(definition)
	if err != nil {
		return Backup{}, err
	}

	entry, err := s.record(payload, Backup{
		WorkspaceID:   workspaceID,
		WorkspaceName: workspace,
		ModelID:       item.ID,
		ModelName:     item.DisplayName,
	})
	if err != nil {
		return Backup{}, err
	}

	if s.mirror != nil {
		key, err := s.mirror.Upload(ctx, entry, s.snapshotPath(entry.SHA256))
		if err != nil {
			s.warn("backup mirror upload failed", map[string]string{
				"backup_id": entry.ID,
				"error":     err.Error(),
			})
		} else {
			entry.ObjectKey = key
			if _, err := s.db.Exec(`UPDATE backups SET object_key = ? WHERE id = ?`, key, entry.ID); err != nil {
				return Backup{}, fmt.Errorf("record mirror key: %w", err)
			}
		}
	}

	s.publish(entry, EventBackupCreated)
	return entry, nil
}

// Import catalogs a TMSL document supplied directly instead of fetched
// from the service. It backs local pipeline deployments and tests.
func (s *Store) Import(payload []byte, workspaceID, modelID, modelName string) (Backup, error) {
	entry, err := s.record(payload, Backup{
		WorkspaceID: workspaceID,
		ModelID:     modelID,
		ModelName:   modelName,
	})
	if err != nil {
		return Backup{}, err
	}
	s.publish(entry, EventBackupCreated)
	return entry, nil
}

func (s *Store) record(payload []byte, entry Backup) (Backup, error) {
	if len(payload) == 0 {
		return Backup{}, errors.New("model definition is empty")
	}

	digest := sha256.Sum256(payload)
	entry.SHA256 = hex.EncodeToString(digest[:])
	entry.ID = uuid.NewString()
	entry.TakenAt = time.Now().UTC()
	entry.Size = int64(len(payload))

	compressed, err := compress(payload)
	if err != nil {
		return Backup{}, fmt.Errorf("compress snapshot: %w", err)
	}
	entry.CompressedSize = int64(len(compressed))

	path := s.snapshotPath(entry.SHA256)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return Backup{}, fmt.Errorf("create snapshot dir: %w", err)
		}
		if err := os.WriteFile(path, compressed, 0o644); err != nil {
			return Backup{}, fmt.Errorf("write snapshot: %w", err)
		}
	}

	_, err = s.db.Exec(`
		INSERT INTO backups (id, workspace_id, workspace_name, model_id, model_name,
			taken_at, size, compressed_size, sha256, object_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.WorkspaceID, entry.WorkspaceName, entry.ModelID, entry.ModelName,
		entry.TakenAt, entry.Size, entry.CompressedSize, entry.SHA256, entry.ObjectKey,
	)
	if err != nil {
		return Backup{}, fmt.Errorf("catalog snapshot: %w", err)
	}
	return entry, nil
}

// Get returns a catalog entry by backup ID.
func (s *Store) Get(id string) (Backup, error) {
	row := s.db.QueryRow(`
		SELECT id, workspace_id, workspace_name, model_id, model_name,
			taken_at, size, compressed_size, sha256, object_key
		FROM backups WHERE id = ?`, id)
	entry, err := scanBackup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Backup{}, fmt.Errorf("backup %s not found", id)
	}
	return entry, err
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Workspace string
	Model     string
	Limit     int
}

const defaultListLimit = 50

// List returns catalog entries newest first.
func (s *Store) List(filter Filter) ([]Backup, error) {
	query := `
		SELECT id, workspace_id, workspace_name, model_id, model_name,
			taken_at, size, compressed_size, sha256, object_key
		FROM backups`
	var clauses []string
	var args []any
	if filter.Workspace != "" {
		clauses = append(clauses, "(workspace_id = ? OR workspace_name = ?)")
		args = append(args, filter.Workspace, filter.Workspace)
	}
	if filter.Model != "" {
		clauses = append(clauses, "(model_id = ? OR model_name = ?)")
		args = append(args, filter.Model, filter.Model)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += " ORDER BY taken_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Backup
	for rows.Next() {
		entry, err := scanBackup(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Restore returns the decompressed TMSL document for a backup, checking
// the stored checksum.
func (s *Store) Restore(id string) (Backup, []byte, error) {
	entry, err := s.Get(id)
	if err != nil {
		return Backup{}, nil, err
	}
	payload, err := s.read(entry)
	if err != nil {
		return Backup{}, nil, err
	}
	s.publish(entry, EventBackupRestored)
	return entry, payload, nil
}

// Deploy restores a backup and pushes it back to the service as the
// model's definition.
func (s *Store) Deploy(ctx context.Context, id string) (Backup, error) {
	if s.client == nil {
		return Backup{}, errors.New("fabric client is required for deploys")
	}
	entry, payload, err := s.Restore(id)
	if err != nil {
		return Backup{}, err
	}
	definition := fabric.Definition{
		Parts: []fabric.DefinitionPart{fabric.InlinePart(modelPartSuffix, payload)},
	}
	if err := s.client.UpdateItemDefinition(ctx, entry.WorkspaceID, entry.ModelID, definition); err != nil {
		return Backup{}, fmt.Errorf("deploy backup %s: %w", id, err)
	}
	return entry, nil
}

// Verify decompresses a snapshot and recomputes its checksum.
func (s *Store) Verify(id string) error {
	entry, err := s.Get(id)
	if err != nil {
		return err
	}
	_, err = s.read(entry)
	return err
}

// Prune removes catalog entries older than the retention window and
// deletes snapshot files no surviving entry references.
func (s *Store) Prune(retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, errors.New("retention days must be positive")
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)

	rows, err := s.db.Query(`SELECT DISTINCT sha256 FROM backups WHERE taken_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	var candidates []string
	for rows.Next() {
		var digest string
		if err := rows.Scan(&digest); err != nil {
			rows.Close()
			return 0, err
		}
		candidates = append(candidates, digest)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	result, err := s.db.Exec(`DELETE FROM backups WHERE taken_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	pruned, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	for _, digest := range candidates {
		var remaining int
		if err := s.db.QueryRow(`SELECT COUNT(*) FROM backups WHERE sha256 = ?`, digest).Scan(&remaining); err != nil {
			return int(pruned), err
		}
		if remaining == 0 {
			if err := os.Remove(s.snapshotPath(digest)); err != nil && !errors.Is(err, os.ErrNotExist) {
				s.warn("prune could not remove snapshot", map[string]string{
					"sha256": digest,
					"error":  err.Error(),
				})
			}
		}
	}

	if pruned > 0 {
		s.publish(Backup{}, EventBackupPruned)
	}
	return int(pruned), nil
}

func (s *Store) read(entry Backup) ([]byte, error) {
	compressed, err := os.ReadFile(s.snapshotPath(entry.SHA256))
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	payload, err := decompress(compressed)
	if err != nil {
		return nil, fmt.Errorf("decompress snapshot: %w", err)
	}
	digest := sha256.Sum256(payload)
	if hex.EncodeToString(digest[:]) != entry.SHA256 {
		return nil, fmt.Errorf("backup %s failed checksum verification", entry.ID)
	}
	return payload, nil
}

func (s *Store) snapshotPath(digest string) string {
	return filepath.Join(s.dir, digest[:2], digest+".tmsl.zst")
}

func (s *Store) findModel(ctx context.Context, workspaceID, model string) (fabric.Item, error) {
	items, err := s.client.ListDatasets(ctx, workspaceID)
	if err != nil {
		return fabric.Item{}, err
	}
	for _, item := range items {
		if strings.EqualFold(item.ID, model) || strings.EqualFold(item.DisplayName, model) {
			return item, nil
		}
	}
	return fabric.Item{}, fmt.Errorf("semantic model %q not found in workspace", model)
}

func modelPart(definition fabric.Definition) ([]byte, error) {
	for _, part := range definition.Parts {
		if strings.HasSuffix(part.Path, modelPartSuffix) {
			return definition.Part(part.Path)
		}
	}
	return nil, fmt.Errorf("definition has no %s part", modelPartSuffix)
}

func compress(data []byte) ([]byte, error) {
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer encoder.Close()
	return encoder.EncodeAll(data, nil), nil
}

func decompress(data []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer decoder.Close()
	return decoder.DecodeAll(data, nil)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBackup(row rowScanner) (Backup, error) {
	var entry Backup
	var workspaceName, modelName, objectKey sql.NullString
	err := row.Scan(&entry.ID, &entry.WorkspaceID, &workspaceName, &entry.ModelID, &modelName,
		&entry.TakenAt, &entry.Size, &entry.CompressedSize, &entry.SHA256, &objectKey)
	if err != nil {
		return Backup{}, err
	}
	entry.WorkspaceName = workspaceName.String
	entry.ModelName = modelName.String
	entry.ObjectKey = objectKey.String
	return entry, nil
}

func (s *Store) publish(entry Backup, eventType string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(event.NewBackupEvent(entry.ID, entry.WorkspaceID, entry.ModelName, eventType))
}

func (s *Store) warn(message string, fields map[string]string) {
	if s.logger != nil {
		s.logger.Warn(message, fields)
	}
}
