package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/lamim/folioforge/internal/checkpoint"
	"github.com/lamim/folioforge/internal/generation"
	"github.com/lamim/folioforge/internal/metrics"
	"github.com/lamim/folioforge/internal/progress"
	"github.com/lamim/folioforge/internal/util"
	"github.com/lamim/folioforge/internal/writer"
	"github.com/lamim/folioforge/pkg/models"
)

// contextExcerptRunes bounds each previous-section excerpt in a prompt
const contextExcerptRunes = 1200

// SectionGenerator produces the text of one section
type SectionGenerator interface {
	GenerateSection(ctx context.Context, section models.Section, sc generation.SectionContext) (string, error)
}

// Worker drafts the sections of one project in plan order, committing each
// to the section log and the checkpoint before moving on.
type Worker struct {
	project         *writer.ProjectDir
	plan            *models.SectionPlan
	checkpoints     *checkpoint.Manager
	generator       SectionGenerator
	tracker         *progress.Tracker
	metrics         *metrics.Collector
	logger          *slog.Logger
	model           string
	contextSections int
	hideProgressBar bool

	mu    sync.Mutex
	state models.WorkerState
}

// WorkerOptions carries the per-run settings of a Worker
type WorkerOptions struct {
	Model           string
	ContextSections int
	HideProgressBar bool
}

// NewWorker creates an idle worker. tracker and collector may be nil.
func NewWorker(
	project *writer.ProjectDir,
	plan *models.SectionPlan,
	checkpoints *checkpoint.Manager,
	generator SectionGenerator,
	tracker *progress.Tracker,
	collector *metrics.Collector,
	opts WorkerOptions,
	logger *slog.Logger,
) *Worker {
	return &Worker{
		project:         project,
		plan:            plan,
		checkpoints:     checkpoints,
		generator:       generator,
		tracker:         tracker,
		metrics:         collector,
		logger:          logger.With("component", "worker"),
		model:           opts.Model,
		contextSections: opts.ContextSections,
		hideProgressBar: opts.HideProgressBar,
		state:           models.WorkerIdle,
	}
}

// State returns the current lifecycle state
func (w *Worker) State() models.WorkerState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Worker) setState(s models.WorkerState) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = s
}

// Run drafts every pending section. It returns nil once all sections are
// committed, the context error when cancelled (state paused), or the first
// unrecoverable error (state failed). The checkpoint is persisted in every case
// except a lost project lock, which leaves it to the new owner.
func (w *Worker) Run(ctx context.Context) error {
	w.setState(models.WorkerRunning)
	w.metrics.WorkerStarted()
	defer w.metrics.WorkerStopped()

	projectID := w.project.ID()
	planSize := w.plan.Len()

	existing, err := writer.ReadSections(w.project.SectionsPath(), w.logger)
	if err != nil {
		return w.fail(ctx, -1, err)
	}
	sections, err := writer.OpenSectionWriter(w.project.SectionsPath(), w.logger)
	if err != nil {
		return w.fail(ctx, -1, &checkpoint.CheckpointIOError{Op: "open section log", ProjectID: projectID, Err: err})
	}
	defer func() {
		if err := sections.Close(); err != nil {
			w.logger.Warn("Failed to close section log", "error", err)
		}
	}()

	rec := w.checkpoints.Record()
	start := checkpoint.NextIndex(rec, planSize)
	if ctx.Err() != nil {
		return w.pause(ctx, start, false)
	}
	status := models.StatusRunning
	if rec.IsComplete() {
		status = models.StatusCompleted
	}
	if err := w.checkpoints.MarkStatus(ctx, status, nil); err != nil {
		return w.fail(ctx, -1, err)
	}
	completed := len(rec.CompletedSections)

	w.logger.Info("Drafting sections",
		"plan_size", planSize,
		"completed", completed,
		"start_index", start)
	if w.tracker != nil {
		w.tracker.UpdateAgent(projectID, models.AgentWriter, progress.AgentUpdate{
			Status:   progress.Status(models.AgentRunning),
			Progress: progress.Percent(percent(completed, planSize)),
		})
		w.tracker.Log(projectID, models.AgentWriter, models.LogInfo,
			fmt.Sprintf("Drafting %d of %d sections, starting at section %d", planSize-completed, planSize, start+1))
	}

	var bar *progressbar.ProgressBar
	if w.hideProgressBar {
		bar = progressbar.DefaultSilent(int64(planSize), "Drafting sections")
	} else {
		bar = progressbar.Default(int64(planSize), "Drafting sections")
	}
	_ = bar.Set(completed)
	defer func() { _ = bar.Finish() }()

	for i := start; i < planSize; i++ {
		if w.checkpoints.IsCompleted(i) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return w.pause(ctx, i, false)
		}

		section := w.plan.Sections[i]
		if w.tracker != nil {
			w.tracker.UpdateAgent(projectID, models.AgentWriter, progress.AgentUpdate{
				Detail: progress.Detail(fmt.Sprintf("Section %d/%d: %s", i+1, planSize, section.Title)),
			})
		}

		started := time.Now()
		text, err := w.generator.GenerateSection(ctx, section, w.sectionContext(i, existing))
		if err != nil {
			if ctx.Err() != nil {
				return w.pause(ctx, i, true)
			}
			w.metrics.IncrementSection("failed")
			return w.fail(ctx, i, err)
		}

		if checkpoint.LockLost(ctx) {
			return w.pause(ctx, i, true)
		}

		// The section is complete; a stop signal from here on must not tear the commit.
		commitCtx := context.WithoutCancel(ctx)
		record := models.SectionRecord{
			Index:       i,
			Title:       section.Title,
			ParentTopic: section.ParentTopic,
			Content:     text,
			Words:       util.WordCount(text),
			Model:       w.model,
			GeneratedAt: time.Now().UTC(),
		}
		if err := sections.Append(record); err != nil {
			return w.fail(commitCtx, i, &checkpoint.CheckpointIOError{Op: "append section", ProjectID: projectID, Err: err})
		}
		if err := w.checkpoints.MarkSectionComplete(commitCtx, i); err != nil {
			return w.fail(commitCtx, i, err)
		}
		existing[i] = record
		completed++

		w.metrics.IncrementSection("success")
		_ = bar.Add(1)
		w.logger.Debug("Section committed",
			"index", i,
			"words", record.Words,
			"duration", time.Since(started))
		if w.tracker != nil {
			w.tracker.UpdateAgent(projectID, models.AgentWriter, progress.AgentUpdate{
				Progress: progress.Percent(percent(completed, planSize)),
			})
			w.tracker.Log(projectID, models.AgentWriter, models.LogSuccess,
				fmt.Sprintf("Section %d/%d drafted (%d words)", i+1, planSize, record.Words))
		}
	}

	w.setState(models.WorkerCompleted)
	if w.tracker != nil {
		w.tracker.UpdateAgent(projectID, models.AgentWriter, progress.AgentUpdate{
			Status:   progress.Status(models.AgentDone),
			Progress: progress.Percent(100),
			Detail:   progress.Detail(fmt.Sprintf("%d sections drafted", planSize)),
		})
	}
	w.logger.Info("All sections drafted", "plan_size", planSize)
	return nil
}

// sectionContext returns the tails of up to contextSections committed
// sections immediately before index, oldest first
func (w *Worker) sectionContext(index int, existing map[int]models.SectionRecord) generation.SectionContext {
	sc := generation.SectionContext{
		DocumentTitle: w.plan.DocumentTitle,
		TotalSections: w.plan.Len(),
	}
	for i := max(0, index-w.contextSections); i < index && w.contextSections > 0; i++ {
		rec, ok := existing[i]
		if !ok || !w.checkpoints.IsCompleted(i) {
			continue
		}
		sc.Previous = append(sc.Previous, generation.PreviousSection{
			Title:   rec.Title,
			Excerpt: util.TailString(rec.Content, contextExcerptRunes),
		})
	}
	return sc
}

// pause records a cancelled run. The in-flight section, if any, is discarded
// and will be regenerated on resume.
func (w *Worker) pause(ctx context.Context, index int, inFlight bool) error {
	if inFlight {
		w.metrics.IncrementSection("discarded")
	}
	if checkpoint.LockLost(ctx) {
		return w.abandon(ctx, index)
	}
	w.setState(models.WorkerPaused)

	err := fmt.Errorf("paused before section %d: %w", index, ctx.Err())
	if saveErr := w.checkpoints.MarkStatus(context.WithoutCancel(ctx), models.StatusPaused, nil); saveErr != nil {
		w.logger.Error("Failed to persist paused checkpoint", "error", saveErr)
		err = errors.Join(err, saveErr)
	}

	w.logger.Warn("Generation paused", "next_index", index, "in_flight_discarded", inFlight)
	if w.tracker != nil {
		w.tracker.Log(w.project.ID(), models.AgentWriter, models.LogWarning,
			fmt.Sprintf("Paused; resume will continue at section %d", index+1))
	}
	return err
}

// abandon stops after the project lock was lost. Another worker may own the
// checkpoint now, so nothing is written.
func (w *Worker) abandon(ctx context.Context, index int) error {
	w.setState(models.WorkerFailed)
	err := fmt.Errorf("stopped before section %d: %w", index, context.Cause(ctx))
	w.logger.Error("Project lock lost, leaving the checkpoint untouched", "next_index", index)
	if w.tracker != nil {
		w.tracker.Fail(w.project.ID(), models.AgentWriter, fmt.Sprintf("Drafting stopped: %v", err))
	}
	return err
}

// fail records an unrecoverable error, keeping all committed progress
func (w *Worker) fail(ctx context.Context, index int, cause error) error {
	w.setState(models.WorkerFailed)

	err := cause
	if index >= 0 {
		err = fmt.Errorf("section %d: %w", index, cause)
	}
	if saveErr := w.checkpoints.MarkStatus(context.WithoutCancel(ctx), models.StatusFailed, err); saveErr != nil {
		w.logger.Error("Failed to persist failed checkpoint", "error", saveErr)
		err = errors.Join(err, saveErr)
	}

	w.logger.Error("Generation failed",
		"section_index", index,
		"recoverable", generation.Recoverable(cause),
		"error", cause)
	if w.tracker != nil {
		msg := fmt.Sprintf("Drafting stopped: %v", err)
		if generation.Recoverable(cause) {
			msg += " (resume later to continue)"
		}
		w.tracker.Fail(w.project.ID(), models.AgentWriter, msg)
	}
	return err
}

func percent(done, total int) int {
	if total == 0 {
		return 0
	}
	return done * 100 / total
}
