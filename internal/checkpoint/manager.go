package checkpoint

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/lamim/folioforge/internal/metrics"
	"github.com/lamim/folioforge/pkg/models"
)

// Manager owns the checkpoint of one project. Every mutation is saved
// synchronously before the call returns.
type Manager struct {
	store   Store
	index   Index // optional
	record  *models.CheckpointRecord
	metrics *metrics.Collector
	logger  *slog.Logger
	now     func() time.Time
	mu      sync.Mutex
}

// NewManager wraps an existing record
func NewManager(store Store, index Index, rec *models.CheckpointRecord, collector *metrics.Collector, logger *slog.Logger) *Manager {
	if rec.CompletedSections == nil {
		rec.CompletedSections = []int{}
	}
	return &Manager{
		store:   store,
		index:   index,
		record:  rec.Clone(),
		metrics: collector,
		logger:  logger.With("component", "checkpoint", "project_id", rec.ProjectID),
		now:     time.Now,
	}
}

// Create writes the initial record for a freshly planned project and
// registers it in the index. Failing to register is fatal because an
// unindexed project can never be found for resumption.
func Create(ctx context.Context, store Store, index Index, project models.Project, plan *models.SectionPlan, collector *metrics.Collector, logger *slog.Logger) (*Manager, error) {
	now := time.Now().UTC()
	rec := &models.CheckpointRecord{
		Version:           models.CheckpointVersion,
		ProjectID:         project.ID,
		Model:             project.Model,
		CompletedSections: []int{},
		PlanSize:          plan.Len(),
		PlanHash:          plan.Hash,
		Status:            models.StatusRunning,
		CreatedAt:         project.CreatedAt.UTC(),
		LastUpdatedAt:     now,
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}

	m := NewManager(store, index, rec, collector, logger)
	if err := m.persist(ctx, m.record); err != nil {
		return nil, err
	}
	if index != nil {
		if err := index.Upsert(ctx, models.EntryFromRecord(m.record)); err != nil {
			return nil, &CheckpointIOError{Op: "index", ProjectID: project.ID, Err: err}
		}
	}
	m.logger.Info("Checkpoint created", "plan_size", rec.PlanSize, "backend", store.Backend())
	return m, nil
}

// Record returns a copy of the current record
func (m *Manager) Record() *models.CheckpointRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record.Clone()
}

// IsCompleted reports whether a section index has been committed
func (m *Manager) IsCompleted(index int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Contains(m.record.CompletedSections, index)
}

// MarkSectionComplete appends index and saves. The in-memory record only
// advances once the save succeeded.
func (m *Manager) MarkSectionComplete(ctx context.Context, index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if index < 0 || index >= m.record.PlanSize {
		return fmt.Errorf("%w: section %d outside [0, %d)", ErrInvalidRecord, index, m.record.PlanSize)
	}
	if slices.Contains(m.record.CompletedSections, index) {
		return fmt.Errorf("%w: section %d already completed", ErrInvalidRecord, index)
	}

	next := m.record.Clone()
	next.CompletedSections = append(next.CompletedSections, index)
	next.Status = models.StatusRunning
	next.LastError = ""
	if next.IsComplete() {
		next.Status = models.StatusCompleted
	}
	next.LastUpdatedAt = m.now().UTC()

	if err := m.persist(ctx, next); err != nil {
		return err
	}
	m.record = next
	m.touchIndex(ctx)
	return nil
}

// MarkStatus records a worker outcome without changing completed sections
func (m *Manager) MarkStatus(ctx context.Context, status models.CheckpointStatus, cause error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.record.Clone()
	next.Status = status
	next.LastError = ""
	if cause != nil {
		next.LastError = cause.Error()
	}
	next.LastUpdatedAt = m.now().UTC()

	if err := m.persist(ctx, next); err != nil {
		return err
	}
	m.record = next
	m.touchIndex(ctx)
	return nil
}

func (m *Manager) persist(ctx context.Context, rec *models.CheckpointRecord) error {
	start := time.Now()
	err := m.store.Save(ctx, rec)
	m.metrics.RecordCheckpointWrite(m.store.Backend(), time.Since(start), err == nil)
	if err != nil {
		return err
	}
	m.logger.Debug("Checkpoint saved",
		"completed", len(rec.CompletedSections),
		"status", rec.Status)
	return nil
}

// touchIndex refreshes the index row. The store record is authoritative, so
// a failure here only degrades resume selection and is logged.
func (m *Manager) touchIndex(ctx context.Context) {
	if m.index == nil {
		return
	}
	if err := m.index.Upsert(ctx, models.EntryFromRecord(m.record)); err != nil {
		m.logger.Warn("Failed to update checkpoint index", "error", err)
	}
}
