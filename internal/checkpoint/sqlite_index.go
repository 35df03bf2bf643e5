package checkpoint

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/lamim/folioforge/pkg/models"
)

const indexSchema = `
CREATE TABLE IF NOT EXISTS projects (
	project_id      TEXT PRIMARY KEY,
	model           TEXT NOT NULL,
	plan_size       INTEGER NOT NULL,
	completed       INTEGER NOT NULL,
	status          TEXT NOT NULL,
	created_at      INTEGER NOT NULL,
	last_updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_projects_updated ON projects(last_updated_at DESC);
`

// SQLiteIndex is the checkpoint index for the file backend
type SQLiteIndex struct {
	db *sql.DB
}

// OpenSQLiteIndex opens (and migrates) the index database at path
func OpenSQLiteIndex(path string) (*SQLiteIndex, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(indexSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create index schema: %w", err)
	}

	return &SQLiteIndex{db: db}, nil
}

// Upsert inserts or replaces a project's summary row
func (x *SQLiteIndex) Upsert(ctx context.Context, e models.IndexEntry) error {
	_, err := x.db.ExecContext(ctx, `
		INSERT INTO projects (project_id, model, plan_size, completed, status, created_at, last_updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id) DO UPDATE SET
			model = excluded.model,
			plan_size = excluded.plan_size,
			completed = excluded.completed,
			status = excluded.status,
			last_updated_at = excluded.last_updated_at`,
		e.ProjectID, e.Model, e.PlanSize, e.Completed, string(e.Status),
		e.CreatedAt.UnixNano(), e.LastUpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to upsert index entry %s: %w", e.ProjectID, err)
	}
	return nil
}

// Incomplete returns unfinished projects, most recently updated first
func (x *SQLiteIndex) Incomplete(ctx context.Context) ([]models.IndexEntry, error) {
	return x.query(ctx, `WHERE completed < plan_size`)
}

// List returns all projects, most recently updated first
func (x *SQLiteIndex) List(ctx context.Context) ([]models.IndexEntry, error) {
	return x.query(ctx, ``)
}

func (x *SQLiteIndex) query(ctx context.Context, where string) ([]models.IndexEntry, error) {
	rows, err := x.db.QueryContext(ctx, `
		SELECT project_id, model, plan_size, completed, status, created_at, last_updated_at
		FROM projects `+where+`
		ORDER BY last_updated_at DESC, project_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query index: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []models.IndexEntry
	for rows.Next() {
		var (
			e                  models.IndexEntry
			status             string
			created, updatedAt int64
		)
		if err := rows.Scan(&e.ProjectID, &e.Model, &e.PlanSize, &e.Completed, &status, &created, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan index row: %w", err)
		}
		e.Status = models.CheckpointStatus(status)
		e.CreatedAt = time.Unix(0, created).UTC()
		e.LastUpdatedAt = time.Unix(0, updatedAt).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Remove deletes a project's row
func (x *SQLiteIndex) Remove(ctx context.Context, projectID string) error {
	if _, err := x.db.ExecContext(ctx, `DELETE FROM projects WHERE project_id = ?`, projectID); err != nil {
		return fmt.Errorf("failed to remove index entry %s: %w", projectID, err)
	}
	return nil
}

// Close closes the database
func (x *SQLiteIndex) Close() error {
	return x.db.Close()
}
