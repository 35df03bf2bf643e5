package resume

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lamim/folioforge/internal/checkpoint"
	"github.com/lamim/folioforge/internal/planner"
	"github.com/lamim/folioforge/internal/writer"
	"github.com/lamim/folioforge/pkg/models"
)

var (
	// ErrNoResumableProject is returned when no incomplete project can be resumed
	ErrNoResumableProject = errors.New("no resumable project found")
	// ErrPlanMismatch is returned when a project's plan cannot be reconstructed identically
	ErrPlanMismatch = checkpoint.ErrPlanMismatch
)

// Runner continues a validated project. The caller holds the project lock.
type Runner interface {
	Resume(ctx context.Context, project *writer.ProjectDir, plan *models.SectionPlan, rec *models.CheckpointRecord) (*models.RunSummary, error)
}

// Candidate is a project whose checkpoint matches its reconstructed plan
type Candidate struct {
	Project *writer.ProjectDir
	Plan    *models.SectionPlan
	Record  *models.CheckpointRecord
}

// Controller selects interrupted projects and hands them back to the pipeline
type Controller struct {
	store     checkpoint.Store
	index     checkpoint.Index
	locker    checkpoint.Locker
	outputDir string
	runner    Runner
	logger    *slog.Logger
}

// NewController creates a resume controller
func NewController(
	store checkpoint.Store,
	index checkpoint.Index,
	locker checkpoint.Locker,
	outputDir string,
	runner Runner,
	logger *slog.Logger,
) *Controller {
	return &Controller{
		store:     store,
		index:     index,
		locker:    locker,
		outputDir: outputDir,
		runner:    runner,
		logger:    logger.With("component", "resume"),
	}
}

// FindResumable returns the most recently updated incomplete project whose
// checkpoint matches its plan. It does not lock or modify anything.
func (c *Controller) FindResumable(ctx context.Context) (*Candidate, error) {
	candidates, err := c.candidates(ctx)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, ErrNoResumableProject
	}
	return candidates[0], nil
}

// candidates returns every resumable project, newest first
func (c *Controller) candidates(ctx context.Context) ([]*Candidate, error) {
	entries, err := c.index.Incomplete(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query checkpoint index: %w", err)
	}

	var found []*Candidate
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cand, err := c.Load(ctx, entry.ProjectID)
		if err != nil {
			c.logger.Warn("Skipping project",
				"project_id", entry.ProjectID,
				"error", err)
			continue
		}
		if cand.Record.IsComplete() {
			continue
		}
		found = append(found, cand)
	}
	return found, nil
}

// Load reads a project's checkpoint and reconstructs its plan from the
// persisted outline and plan options. The reconstructed plan must hash
// identically to the one the checkpoint was written against.
func (c *Controller) Load(ctx context.Context, projectID string) (*Candidate, error) {
	rec, err := c.store.Load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	project, err := writer.OpenProjectDir(c.outputDir, projectID)
	if err != nil {
		return nil, err
	}
	plan, err := reconstructPlan(project)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPlanMismatch, err)
	}
	if err := checkpoint.ValidateAgainstPlan(rec, plan); err != nil {
		return nil, err
	}
	return &Candidate{Project: project, Plan: plan, Record: rec}, nil
}

// reconstructPlan re-runs the planner over the stored outline. plan.json only
// supplies the options; its sections are never trusted.
func reconstructPlan(project *writer.ProjectDir) (*models.SectionPlan, error) {
	outline, err := project.LoadOutline()
	if err != nil {
		return nil, err
	}
	stored, err := project.LoadPlan()
	if err != nil {
		return nil, err
	}
	return planner.Plan(planner.Normalize(outline), stored.Options)
}

// Resume locks the named project, re-validates it under the lock and
// continues it from its lowest missing section.
func (c *Controller) Resume(ctx context.Context, projectID string) (*models.RunSummary, error) {
	lock, err := c.locker.Acquire(ctx, projectID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			c.logger.Warn("Failed to release project lock", "project_id", projectID, "error", err)
		}
	}()
	ctx, stopWatch := checkpoint.WatchLock(ctx, lock)
	defer stopWatch()

	cand, err := c.Load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if cand.Record.IsComplete() {
		c.logger.Info("Project already complete, re-assembling outputs", "project_id", projectID)
	}
	return c.runner.Resume(ctx, cand.Project, cand.Plan, cand.Record)
}

// ResumeLatest resumes the most recently updated resumable project, skipping
// projects another worker currently holds.
func (c *Controller) ResumeLatest(ctx context.Context) (*models.RunSummary, error) {
	candidates, err := c.candidates(ctx)
	if err != nil {
		return nil, err
	}
	for _, cand := range candidates {
		id := cand.Project.ID()
		summary, err := c.Resume(ctx, id)
		if errors.Is(err, checkpoint.ErrProjectLocked) {
			c.logger.Info("Project is being worked on elsewhere, trying the next one", "project_id", id)
			continue
		}
		return summary, err
	}
	return nil, ErrNoResumableProject
}
