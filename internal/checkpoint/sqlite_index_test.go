package checkpoint

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/lamim/folioforge/pkg/models"
)

func entry(id string, completed, planSize int, updated time.Time) models.IndexEntry {
	return models.IndexEntry{
		ProjectID:     id,
		Model:         "m",
		PlanSize:      planSize,
		Completed:     completed,
		Status:        models.StatusRunning,
		CreatedAt:     updated.Add(-time.Hour),
		LastUpdatedAt: updated,
	}
}

func TestSQLiteIndex_IncompleteNewestFirst(t *testing.T) {
	ctx := context.Background()
	index, err := OpenSQLiteIndex(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("OpenSQLiteIndex() error = %v", err)
	}
	defer func() { _ = index.Close() }()

	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	for _, e := range []models.IndexEntry{
		entry("old", 2, 6, base),
		entry("done", 6, 6, base.Add(2*time.Hour)),
		entry("new", 3, 6, base.Add(time.Hour)),
	} {
		if err := index.Upsert(ctx, e); err != nil {
			t.Fatalf("Upsert(%s) error = %v", e.ProjectID, err)
		}
	}

	got, err := index.Incomplete(ctx)
	if err != nil {
		t.Fatalf("Incomplete() error = %v", err)
	}
	if len(got) != 2 || got[0].ProjectID != "new" || got[1].ProjectID != "old" {
		t.Fatalf("Incomplete() = %+v, want [new old]", got)
	}
	if !got[0].LastUpdatedAt.Equal(base.Add(time.Hour)) {
		t.Errorf("LastUpdatedAt = %v", got[0].LastUpdatedAt)
	}

	all, err := index.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].ProjectID != "done" {
		t.Errorf("List() = %+v", all)
	}
}

func TestSQLiteIndex_UpsertUpdatesAndRemove(t *testing.T) {
	ctx := context.Background()
	index, err := OpenSQLiteIndex(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = index.Close() }()

	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	if err := index.Upsert(ctx, entry("p", 1, 6, base)); err != nil {
		t.Fatal(err)
	}
	if err := index.Upsert(ctx, entry("p", 6, 6, base.Add(time.Minute))); err != nil {
		t.Fatal(err)
	}

	incomplete, err := index.Incomplete(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(incomplete) != 0 {
		t.Errorf("finished project still incomplete: %+v", incomplete)
	}

	if err := index.Remove(ctx, "p"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	all, err := index.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 0 {
		t.Errorf("expected empty index, got %+v", all)
	}
}

func TestSQLiteIndex_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.db")

	index, err := OpenSQLiteIndex(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := index.Upsert(ctx, entry("p", 1, 6, time.Now())); err != nil {
		t.Fatal(err)
	}
	if err := index.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := OpenSQLiteIndex(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer func() { _ = reopened.Close() }()
	got, err := reopened.Incomplete(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Errorf("expected entry to survive reopen, got %+v", got)
	}
}
