package checkpoint

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/lamim/folioforge/pkg/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func sampleRecord(id string, completed ...int) *models.CheckpointRecord {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &models.CheckpointRecord{
		Version:           models.CheckpointVersion,
		ProjectID:         id,
		Model:             "test-model",
		CompletedSections: append([]int{}, completed...),
		PlanSize:          6,
		PlanHash:          "abc123",
		Status:            models.StatusRunning,
		CreatedAt:         ts,
		LastUpdatedAt:     ts,
	}
}

func TestFileStore_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}

	rec := sampleRecord("proj-1", 0, 1, 2)
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := store.Load(ctx, "proj-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !reflect.DeepEqual(loaded, rec) {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", loaded, rec)
	}
}

func TestFileStore_LoadNotFound(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), testLogger())
	if err != nil {
		t.Fatal(err)
	}
	_, err = store.Load(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFileStore_SaveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewFileStore(dir, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	rec := sampleRecord("proj-1", 0, 1)
	if err := store.Save(ctx, rec); err != nil {
		t.Fatal(err)
	}
	first, err := os.ReadFile(filepath.Join(dir, "proj-1.json"))
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Save(ctx, rec); err != nil {
		t.Fatal(err)
	}
	second, err := os.ReadFile(filepath.Join(dir, "proj-1.json"))
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != string(second) {
		t.Error("saving the same record twice changed the stored bytes")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected exactly one file in checkpoint dir, found %d", len(entries))
	}
}

func TestFileStore_RejectsInvalidRecords(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), testLogger())
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		rec  *models.CheckpointRecord
	}{
		{name: "duplicate index", rec: sampleRecord("p", 0, 1, 1)},
		{name: "index beyond plan", rec: sampleRecord("p", 0, 6)},
		{name: "negative index", rec: sampleRecord("p", -1)},
		{name: "empty project", rec: sampleRecord("", 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := store.Save(context.Background(), tt.rec); !errors.Is(err, ErrInvalidRecord) {
				t.Errorf("expected ErrInvalidRecord, got %v", err)
			}
		})
	}
}

func TestFileStore_CorruptRecordIsIOError(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err = store.Load(context.Background(), "bad")
	if !errors.Is(err, ErrCheckpointIO) {
		t.Fatalf("expected ErrCheckpointIO, got %v", err)
	}
	var ioErr *CheckpointIOError
	if !errors.As(err, &ioErr) || ioErr.Op != "load" {
		t.Errorf("expected load CheckpointIOError, got %#v", err)
	}
}

func TestFileStore_SaveFailureIsIOError(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	// A directory where the record should go makes the rename fail
	if err := os.Mkdir(filepath.Join(dir, "blocked.json"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "blocked.json", "x"), nil, 0644); err != nil {
		t.Fatal(err)
	}

	err = store.Save(context.Background(), sampleRecord("blocked", 0))
	if !errors.Is(err, ErrCheckpointIO) {
		t.Fatalf("expected ErrCheckpointIO, got %v", err)
	}
}

func TestFileStore_Delete(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir(), testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Save(ctx, sampleRecord("gone", 0)); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(ctx, "gone"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := store.Delete(ctx, "gone"); err != nil {
		t.Fatalf("second Delete() error = %v", err)
	}
	if _, err := store.Load(ctx, "gone"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestFileStore_RejectsTraversal(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Load(context.Background(), "../escape"); err == nil {
		t.Error("expected an error for a traversal project id")
	}
}
