package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lamim/folioforge/internal/checkpoint"
	"github.com/lamim/folioforge/internal/progress"
	"github.com/lamim/folioforge/pkg/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	s := New(progress.NewTracker(), nil, testLogger())

	rec := get(t, s.Handler(), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestProjectProgress(t *testing.T) {
	tracker := progress.NewTracker()
	tracker.Init("p1")
	tracker.UpdatePhase("p1", models.PhaseDrafting)
	tracker.UpdateAgent("p1", models.AgentArchitect, progress.AgentUpdate{Progress: progress.Percent(100)})
	tracker.UpdateAgent("p1", models.AgentWriter, progress.AgentUpdate{Progress: progress.Percent(50)})
	tracker.Log("p1", models.AgentWriter, models.LogInfo, "Section 3/6 drafted")
	s := New(tracker, nil, testLogger())

	rec := get(t, s.Handler(), "/api/projects/p1/progress")
	require.Equal(t, http.StatusOK, rec.Code)

	var body ProgressResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "p1", body.ProjectID)
	assert.Equal(t, models.PhaseDrafting, body.Phase)
	assert.Equal(t, 38, body.OverallProgress)
	assert.Equal(t, 50, body.Agents[models.AgentWriter].Progress)
	require.Len(t, body.Logs, 1)
	assert.Equal(t, models.LogInfo, body.Logs[0].Level)
	assert.True(t, strings.Contains(rec.Body.String(), `"type":"info"`))
}

func TestProjectProgress_Unknown(t *testing.T) {
	s := New(progress.NewTracker(), nil, testLogger())

	rec := get(t, s.Handler(), "/api/projects/nope/progress")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListProjects(t *testing.T) {
	index, err := checkpoint.OpenSQLiteIndex(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	defer func() { _ = index.Close() }()

	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, index.Upsert(context.Background(), models.IndexEntry{
		ProjectID:     "old",
		Model:         "m",
		PlanSize:      6,
		Completed:     3,
		Status:        models.StatusFailed,
		CreatedAt:     now,
		LastUpdatedAt: now,
	}))

	tracker := progress.NewTracker()
	tracker.Init("live")
	tracker.UpdatePhase("live", models.PhasePlanning)
	s := New(tracker, index, testLogger())

	rec := get(t, s.Handler(), "/api/projects")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Active      []ProjectSummary    `json:"active"`
		Checkpoints []models.IndexEntry `json:"checkpoints"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Active, 1)
	assert.Equal(t, "live", body.Active[0].ProjectID)
	assert.Equal(t, models.PhasePlanning, body.Active[0].Phase)
	require.Len(t, body.Checkpoints, 1)
	assert.Equal(t, "old", body.Checkpoints[0].ProjectID)
	assert.Equal(t, 3, body.Checkpoints[0].Completed)
}

func TestMetricsEndpoint(t *testing.T) {
	s := New(progress.NewTracker(), nil, testLogger())

	rec := get(t, s.Handler(), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
