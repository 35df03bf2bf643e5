package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lamim/folioforge/internal/checkpoint"
	"github.com/lamim/folioforge/internal/config"
	"github.com/lamim/folioforge/internal/metrics"
	"github.com/lamim/folioforge/internal/planner"
	"github.com/lamim/folioforge/internal/progress"
	"github.com/lamim/folioforge/internal/writer"
	"github.com/lamim/folioforge/pkg/models"
)

// ErrProjectExists is returned when starting fresh over an existing checkpoint without Force
var ErrProjectExists = errors.New("project already has a checkpoint")

// Generator is the model-backed capability the pipeline needs
type Generator interface {
	SectionGenerator
	GenerateOutline(ctx context.Context, brief, title string, numTopics int) (*models.Outline, error)
}

// SessionLog tees project logs to <project>/session.log
type SessionLog struct {
	Console io.Writer
	Level   slog.Level
}

// Deps are the collaborators of an Orchestrator
type Deps struct {
	Config     *config.Config
	Generator  Generator
	Store      checkpoint.Store
	Index      checkpoint.Index // optional
	Locker     checkpoint.Locker
	Tracker    *progress.Tracker // optional
	Metrics    *metrics.Collector
	SessionLog *SessionLog // optional
	Logger     *slog.Logger
}

// FreshRequest starts a new project
type FreshRequest struct {
	ProjectID string // generated when empty
	Outline   *models.Outline
	// Brief is drafted into an outline by the architect when Outline is nil
	Brief string
	Title string
	// Force re-plans a project that already has a checkpoint, discarding it
	Force      bool
	ConfigPath string
}

// Orchestrator runs the document pipeline: architect, writer, image curator,
// reviewer and assembly.
type Orchestrator struct {
	cfg        *config.Config
	generator  Generator
	store      checkpoint.Store
	index      checkpoint.Index
	locker     checkpoint.Locker
	tracker    *progress.Tracker
	metrics    *metrics.Collector
	sessionLog *SessionLog
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a new orchestrator
func New(deps Deps) *Orchestrator {
	tracker := deps.Tracker
	if tracker == nil {
		tracker = progress.NewTracker()
	}
	return &Orchestrator{
		cfg:        deps.Config,
		generator:  deps.Generator,
		store:      deps.Store,
		index:      deps.Index,
		locker:     deps.Locker,
		tracker:    tracker,
		metrics:    deps.Metrics,
		sessionLog: deps.SessionLog,
		logger:     deps.Logger,
		now:        time.Now,
	}
}

// Tracker returns the progress registry the orchestrator reports to
func (o *Orchestrator) Tracker() *progress.Tracker {
	return o.tracker
}

// StartFresh plans the outline (drafting it first when only a brief is
// given) and drafts every section from index 0.
func (o *Orchestrator) StartFresh(ctx context.Context, req FreshRequest) (*models.RunSummary, error) {
	if req.Outline == nil && strings.TrimSpace(req.Brief) == "" {
		return nil, fmt.Errorf("an outline or a brief is required")
	}
	id := req.ProjectID
	if id == "" {
		id = uuid.NewString()
	}
	if err := writer.ValidateProjectID(id); err != nil {
		return nil, err
	}

	lock, err := o.locker.Acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer o.unlock(lock, id)
	ctx, stopWatch := checkpoint.WatchLock(ctx, lock)
	defer stopWatch()

	replan, err := o.checkExisting(ctx, id, req.Force)
	if err != nil {
		return nil, err
	}

	project, err := writer.CreateProjectDir(o.cfg.Paths.OutputDir, id)
	if err != nil {
		return nil, err
	}
	logger, closeLog := o.projectLogger(project)
	defer closeLog()

	o.tracker.Init(id)
	o.tracker.UpdatePhase(id, models.PhasePlanning)
	logger.Info("Starting project", "output_dir", project.Dir())

	outline, err := o.prepareOutline(ctx, id, req, logger)
	if err != nil {
		o.tracker.Fail(id, models.AgentArchitect, fmt.Sprintf("Outline drafting failed: %v", err))
		o.endPhase(id, err)
		return nil, err
	}

	plan, err := planner.Plan(outline, o.cfg.PlanOptions())
	if err != nil {
		o.tracker.Fail(id, models.AgentArchitect, err.Error())
		o.tracker.UpdatePhase(id, models.PhaseFailed)
		return nil, err
	}

	// The old checkpoint stays valid until a replacement plan exists
	if replan {
		if err := o.discardCheckpoint(ctx, id, logger); err != nil {
			return nil, o.abort(id, err)
		}
	}
	if err := project.ResetOutputs(); err != nil {
		return nil, o.abort(id, err)
	}
	if err := project.SaveOutline(outline); err != nil {
		return nil, o.abort(id, fmt.Errorf("failed to save outline: %w", err))
	}
	if err := project.SavePlan(plan); err != nil {
		return nil, o.abort(id, fmt.Errorf("failed to save plan: %w", err))
	}
	if req.ConfigPath != "" {
		if err := project.BackupConfig(req.ConfigPath); err != nil {
			logger.Warn("Failed to back up config", "error", err)
		}
	}

	mgr, err := checkpoint.Create(ctx, o.store, o.index, models.Project{
		ID:        id,
		Model:     o.cfg.SectionModel().ModelName,
		CreatedAt: o.now(),
	}, plan, o.metrics, logger)
	if err != nil {
		return nil, o.abort(id, err)
	}

	o.tracker.UpdateAgent(id, models.AgentArchitect, progress.AgentUpdate{
		Status:   progress.Status(models.AgentDone),
		Progress: progress.Percent(100),
		Detail:   progress.Detail(fmt.Sprintf("%d sections planned", plan.Len())),
	})
	o.tracker.Log(id, models.AgentArchitect, models.LogSuccess,
		fmt.Sprintf("Planned %d sections across %d topics", plan.Len(), len(outline.Topics)))
	logger.Info("Plan ready",
		"title", plan.DocumentTitle,
		"topics", len(outline.Topics),
		"sections", plan.Len(),
		"plan_hash", plan.Hash)

	return o.run(ctx, project, plan, mgr, logger)
}

// Resume continues a project from the lowest missing section. The caller
// must hold the project's lock and have validated rec against plan.
func (o *Orchestrator) Resume(
	ctx context.Context,
	project *writer.ProjectDir,
	plan *models.SectionPlan,
	rec *models.CheckpointRecord,
) (*models.RunSummary, error) {
	id := project.ID()
	logger, closeLog := o.projectLogger(project)
	defer closeLog()

	next := checkpoint.NextIndex(rec, plan.Len())
	o.tracker.Init(id)
	o.tracker.UpdateAgent(id, models.AgentArchitect, progress.AgentUpdate{
		Status:   progress.Status(models.AgentDone),
		Progress: progress.Percent(100),
		Detail:   progress.Detail(fmt.Sprintf("%d sections planned", plan.Len())),
	})
	o.tracker.Log(id, models.AgentWriter, models.LogInfo,
		fmt.Sprintf("Resuming at section %d of %d", next+1, plan.Len()))
	logger.Info("Resuming project",
		"completed", len(rec.CompletedSections),
		"plan_size", plan.Len(),
		"next_index", next,
		"progress", fmt.Sprintf("%.1f%%", checkpoint.ProgressPercentage(rec)))

	mgr := checkpoint.NewManager(o.store, o.index, rec, o.metrics, logger)
	return o.run(ctx, project, plan, mgr, logger)
}

// run drafts the pending sections, then curates, reviews and assembles
func (o *Orchestrator) run(
	ctx context.Context,
	project *writer.ProjectDir,
	plan *models.SectionPlan,
	mgr *checkpoint.Manager,
	logger *slog.Logger,
) (*models.RunSummary, error) {
	id := project.ID()
	o.tracker.UpdatePhase(id, models.PhaseDrafting)

	worker := NewWorker(project, plan, mgr, o.generator, o.tracker, o.metrics, WorkerOptions{
		Model:           o.cfg.SectionModel().ModelName,
		ContextSections: o.cfg.Generation.ContextSections,
		HideProgressBar: o.cfg.Generation.HideProgressBar,
	}, logger)
	if err := worker.Run(ctx); err != nil {
		if worker.State() == models.WorkerPaused {
			o.tracker.UpdatePhase(id, models.PhasePaused)
		} else {
			o.tracker.UpdatePhase(id, models.PhaseFailed)
		}
		return nil, err
	}

	sections, err := writer.ReadSections(project.SectionsPath(), logger)
	if err != nil {
		return nil, o.abort(id, err)
	}
	rec := mgr.Record()

	o.tracker.UpdatePhase(id, models.PhaseCurating)
	o.tracker.UpdateAgent(id, models.AgentImageCurator, progress.AgentUpdate{Status: progress.Status(models.AgentRunning)})
	cues := CollectImageCues(plan, sections)
	if err := writer.WriteJSONAtomic(project.ImagesPath(), cues); err != nil {
		o.tracker.Fail(id, models.AgentImageCurator, fmt.Sprintf("Failed to write image manifest: %v", err))
		return nil, o.abort(id, err)
	}
	o.tracker.UpdateAgent(id, models.AgentImageCurator, progress.AgentUpdate{
		Status:   progress.Status(models.AgentDone),
		Progress: progress.Percent(100),
		Detail:   progress.Detail(fmt.Sprintf("%d figure suggestions", len(cues))),
	})

	o.tracker.UpdatePhase(id, models.PhaseReviewing)
	o.tracker.UpdateAgent(id, models.AgentReviewer, progress.AgentUpdate{Status: progress.Status(models.AgentRunning)})
	report := Review(id, plan, sections, rec.CompletedSections, o.now())
	if err := writer.WriteJSONAtomic(project.ReviewPath(), report); err != nil {
		o.tracker.Fail(id, models.AgentReviewer, fmt.Sprintf("Failed to write review: %v", err))
		return nil, o.abort(id, err)
	}
	if len(report.MissingBodies) > 0 {
		logger.Warn("Committed sections missing from the section log", "indices", report.MissingBodies)
	}
	if n := len(report.Findings); n > 0 {
		logger.Warn("Review found issues", "findings", n)
		o.tracker.Log(id, models.AgentReviewer, models.LogWarning, fmt.Sprintf("%d sections flagged for review", n))
	}
	o.tracker.UpdateAgent(id, models.AgentReviewer, progress.AgentUpdate{
		Status:   progress.Status(models.AgentDone),
		Progress: progress.Percent(100),
		Detail:   progress.Detail(fmt.Sprintf("%d findings", len(report.Findings))),
	})

	o.tracker.UpdatePhase(id, models.PhaseAssembling)
	if err := project.WriteDocument(plan, sections); err != nil {
		return nil, o.abort(id, fmt.Errorf("failed to write document: %w", err))
	}

	o.tracker.UpdatePhase(id, models.PhaseCompleted)
	o.tracker.Log(id, "", models.LogSuccess, "Document assembled")
	logger.Info("Project completed",
		"sections", report.SectionsRead,
		"words", report.TotalWords,
		"image_cues", len(cues),
		"findings", len(report.Findings),
		"document", project.DocumentPath())

	return &models.RunSummary{
		ProjectID:    id,
		Sections:     report.SectionsRead,
		Words:        report.TotalWords,
		ImageCues:    len(cues),
		Findings:     len(report.Findings),
		DocumentPath: project.DocumentPath(),
	}, nil
}

// prepareOutline returns the normalized outline, drafting it from the brief when needed
func (o *Orchestrator) prepareOutline(ctx context.Context, id string, req FreshRequest, logger *slog.Logger) (models.Outline, error) {
	var outline models.Outline
	if req.Outline != nil {
		outline = *req.Outline
		o.tracker.Log(id, models.AgentArchitect, models.LogInfo, "Using supplied outline")
	} else {
		opts := o.cfg.PlanOptions()
		numTopics := (opts.MinSections + opts.SectionsPerTopic - 1) / opts.SectionsPerTopic
		o.tracker.UpdateAgent(id, models.AgentArchitect, progress.AgentUpdate{
			Status: progress.Status(models.AgentRunning),
			Detail: progress.Detail(fmt.Sprintf("Drafting %d chapters from brief", numTopics)),
		})
		logger.Info("Drafting outline from brief", "topics", numTopics)

		drafted, err := o.generator.GenerateOutline(ctx, req.Brief, req.Title, numTopics)
		if err != nil {
			return models.Outline{}, err
		}
		outline = mergeDuplicateTopics(*drafted)
		o.tracker.Log(id, models.AgentArchitect, models.LogSuccess,
			fmt.Sprintf("Outline drafted with %d chapters", len(outline.Topics)))
	}

	outline = planner.Normalize(outline)
	switch {
	case strings.TrimSpace(req.Title) != "":
		outline.Title = strings.TrimSpace(req.Title)
	case outline.Title == "":
		outline.Title = o.cfg.Generation.DocumentTitle
	}
	if outline.Title == "" {
		outline.Title = "Untitled Document"
	}
	return outline, nil
}

// checkExisting refuses to overwrite an existing checkpoint unless forced.
// It reports whether a forced re-plan will have to discard one.
func (o *Orchestrator) checkExisting(ctx context.Context, id string, force bool) (bool, error) {
	_, err := o.store.Load(ctx, id)
	switch {
	case errors.Is(err, checkpoint.ErrNotFound):
		return false, nil
	case err != nil:
		return false, err
	case !force:
		return false, fmt.Errorf("%w: %s (resume it, or start with --force to re-plan)", ErrProjectExists, id)
	}
	return true, nil
}

// discardCheckpoint deletes the record a re-plan has invalidated
func (o *Orchestrator) discardCheckpoint(ctx context.Context, id string, logger *slog.Logger) error {
	logger.Warn("Re-planning project, discarding its checkpoint")
	if err := o.store.Delete(ctx, id); err != nil {
		return err
	}
	if o.index != nil {
		if err := o.index.Remove(ctx, id); err != nil {
			logger.Warn("Failed to remove index entry", "error", err)
		}
	}
	return nil
}

func (o *Orchestrator) projectLogger(project *writer.ProjectDir) (*slog.Logger, func()) {
	fallback := o.logger.With("project_id", project.ID())
	if o.sessionLog == nil {
		return fallback, func() {}
	}
	logger, closer, err := writer.SetupLogger(project, o.sessionLog.Console, o.sessionLog.Level)
	if err != nil {
		fallback.Warn("Session log unavailable", "error", err)
		return fallback, func() {}
	}
	return logger, func() { _ = closer.Close() }
}

func (o *Orchestrator) unlock(lock checkpoint.Lock, id string) {
	if err := lock.Unlock(); err != nil {
		o.logger.Warn("Failed to release project lock", "project_id", id, "error", err)
	}
}

// abort marks the project failed in the tracker and passes err through
func (o *Orchestrator) abort(id string, err error) error {
	o.tracker.Log(id, "", models.LogError, err.Error())
	o.tracker.UpdatePhase(id, models.PhaseFailed)
	return err
}

// endPhase sets the terminal phase for err
func (o *Orchestrator) endPhase(id string, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		o.tracker.UpdatePhase(id, models.PhasePaused)
		return
	}
	o.tracker.UpdatePhase(id, models.PhaseFailed)
}
