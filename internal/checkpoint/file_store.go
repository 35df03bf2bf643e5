package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/lamim/folioforge/internal/writer"
	"github.com/lamim/folioforge/pkg/models"
)

// FileStore keeps each project's record as <dir>/<project_id>.json
type FileStore struct {
	dir    string
	logger *slog.Logger
}

// NewFileStore creates the checkpoint directory if needed
func NewFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	return &FileStore{dir: dir, logger: logger}, nil
}

// Backend implements Store
func (s *FileStore) Backend() string { return "file" }

// Dir returns the checkpoint directory
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) path(projectID string) (string, error) {
	if err := writer.ValidateProjectID(projectID); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, projectID+".json"), nil
}

// Load reads a project's record, or ErrNotFound
func (s *FileStore) Load(ctx context.Context, projectID string) (*models.CheckpointRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.path(projectID)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, projectID)
		}
		return nil, &CheckpointIOError{Op: "load", ProjectID: projectID, Err: err}
	}

	var rec models.CheckpointRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, &CheckpointIOError{Op: "load", ProjectID: projectID, Err: fmt.Errorf("corrupt record: %w", err)}
	}
	if rec.CompletedSections == nil {
		rec.CompletedSections = []int{}
	}

	s.logger.Debug("Checkpoint loaded",
		"project_id", rec.ProjectID,
		"completed", len(rec.CompletedSections),
		"plan_size", rec.PlanSize)
	return &rec, nil
}

// Save validates and atomically replaces the project's record
func (s *FileStore) Save(ctx context.Context, rec *models.CheckpointRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := Validate(rec); err != nil {
		return err
	}
	path, err := s.path(rec.ProjectID)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return &CheckpointIOError{Op: "save", ProjectID: rec.ProjectID, Err: err}
	}
	if err := writer.WriteAtomic(path, data); err != nil {
		return &CheckpointIOError{Op: "save", ProjectID: rec.ProjectID, Err: err}
	}
	return nil
}

// Delete removes a project's record; deleting a missing record is not an error
func (s *FileStore) Delete(ctx context.Context, projectID string) error {
	path, err := s.path(projectID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &CheckpointIOError{Op: "delete", ProjectID: projectID, Err: err}
	}
	return nil
}
