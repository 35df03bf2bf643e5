package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/lamim/folioforge/internal/checkpoint"
	"github.com/lamim/folioforge/internal/config"
	"github.com/lamim/folioforge/internal/metrics"
	"github.com/lamim/folioforge/internal/orchestrator"
	"github.com/lamim/folioforge/internal/planner"
	"github.com/lamim/folioforge/internal/progress"
	"github.com/lamim/folioforge/internal/resume"
	"github.com/lamim/folioforge/internal/server"
	"github.com/lamim/folioforge/internal/writer"
	"github.com/lamim/folioforge/pkg/models"
)

// pipeline is everything a generating command needs
type pipeline struct {
	cfg     *config.Config
	storage *storage
	orch    *orchestrator.Orchestrator
	tracker *progress.Tracker
	logger  *slog.Logger
}

func newPipeline(ctx context.Context) (*pipeline, error) {
	cfg, secrets, err := loadConfig(true)
	if err != nil {
		return nil, err
	}
	logger := consoleLogger()
	collector := metrics.NewCollector(logger)

	st, err := openStorage(ctx, cfg, secrets, logger)
	if err != nil {
		return nil, err
	}
	gen, err := newGenerator(cfg, secrets, collector, logger)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	tracker := progress.NewTracker()
	orch := orchestrator.New(orchestrator.Deps{
		Config:     cfg,
		Generator:  gen,
		Store:      st.store,
		Index:      st.index,
		Locker:     st.locker,
		Tracker:    tracker,
		Metrics:    collector,
		SessionLog: &orchestrator.SessionLog{Console: os.Stdout, Level: logLevel()},
		Logger:     logger,
	})
	return &pipeline{cfg: cfg, storage: st, orch: orch, tracker: tracker, logger: logger}, nil
}

// serveStatus starts the status server when an address is configured and
// returns a function that stops it
func (p *pipeline) serveStatus(ctx context.Context) func() {
	addr := statusAddr
	if addr == "" {
		addr = p.cfg.Status.Addr
	}
	if addr == "" {
		return func() {}
	}

	srvCtx, cancel := context.WithCancel(ctx)
	srv := server.New(p.tracker, p.storage.index, p.logger)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Serve(srvCtx, addr); err != nil {
			p.logger.Error("Status server stopped", "error", err)
		}
	}()
	return func() {
		cancel()
		wg.Wait()
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runProject(cmd *cobra.Command, args []string) error {
	if outlinePath == "" && strings.TrimSpace(briefText) == "" {
		return fmt.Errorf("one of --outline or --brief is required")
	}

	ctx, stop := signalContext()
	defer stop()

	p, err := newPipeline(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = p.storage.Close() }()
	stopStatus := p.serveStatus(ctx)
	defer stopStatus()

	req := orchestrator.FreshRequest{
		ProjectID:  projectID,
		Brief:      briefText,
		Title:      docTitle,
		Force:      force,
		ConfigPath: configPath,
	}
	if outlinePath != "" {
		outline, err := planner.LoadOutline(outlinePath)
		if err != nil {
			return err
		}
		req.Outline = &outline
	}

	p.logger.Info("FolioForge starting",
		"version", Version,
		"config", configPath,
		"output_dir", p.cfg.Paths.OutputDir,
		"backend", p.cfg.Checkpoint.Backend)

	summary, err := p.orch.StartFresh(ctx, req)
	if err != nil {
		return explainFailure(p.logger, req.ProjectID, err)
	}
	printSummary(summary)
	return nil
}

func resumeProject(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	p, err := newPipeline(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = p.storage.Close() }()
	stopStatus := p.serveStatus(ctx)
	defer stopStatus()

	ctrl := resume.NewController(p.storage.store, p.storage.index, p.storage.locker,
		p.cfg.Paths.OutputDir, p.orch, p.logger)

	var (
		summary *models.RunSummary
		id      string
	)
	if len(args) == 1 {
		id = args[0]
		summary, err = ctrl.Resume(ctx, id)
	} else {
		summary, err = ctrl.ResumeLatest(ctx)
	}
	if err != nil {
		if errors.Is(err, resume.ErrNoResumableProject) {
			fmt.Println("Nothing to resume: every indexed project is complete or has a changed plan.")
			return nil
		}
		return explainFailure(p.logger, id, err)
	}
	printSummary(summary)
	return nil
}

// explainFailure logs how to continue after an interrupted or failed run
func explainFailure(logger *slog.Logger, id string, err error) error {
	resumeCmd := "folioforge resume"
	if id != "" {
		resumeCmd += " " + id
	}
	switch {
	case errors.Is(err, context.Canceled):
		logger.Warn("Generation interrupted, progress is checkpointed", "resume_command", resumeCmd)
		return fmt.Errorf("generation interrupted (run %q to continue)", resumeCmd)
	case errors.Is(err, checkpoint.ErrProjectLocked):
		return fmt.Errorf("%w: another folioforge process is working on it", err)
	case errors.Is(err, orchestrator.ErrProjectExists):
		return err
	}
	logger.Error("Generation stopped", "error", err, "resume_command", resumeCmd)
	return fmt.Errorf("generation failed: %w", err)
}

func printSummary(s *models.RunSummary) {
	fmt.Println()
	fmt.Println(color.GreenString("Document complete: %s", s.ProjectID))
	fmt.Printf("  Sections:      %d\n", s.Sections)
	fmt.Printf("  Words:         %d\n", s.Words)
	fmt.Printf("  Image cues:    %d\n", s.ImageCues)
	if s.Findings > 0 {
		fmt.Printf("  Review notes:  %s\n", color.YellowString("%d", s.Findings))
	} else {
		fmt.Printf("  Review notes:  0\n")
	}
	fmt.Printf("  Document:      %s\n", s.DocumentPath)
}

func printPlan(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(false)
	if err != nil {
		return err
	}
	outline, err := planner.LoadOutline(outlinePath)
	if err != nil {
		return err
	}
	if docTitle != "" {
		outline.Title = docTitle
	}
	if outline.Title == "" {
		outline.Title = cfg.Generation.DocumentTitle
	}

	plan, err := planner.Plan(outline, cfg.PlanOptions())
	if err != nil {
		return err
	}

	fmt.Printf("%s\n", color.New(color.Bold).Sprint(plan.DocumentTitle))
	fmt.Printf("%d topics, %d sections, ~%d words per section, plan hash %s\n\n",
		len(outline.Topics), plan.Len(), plan.Options.TargetWords, plan.Hash[:12])
	topic := ""
	for _, s := range plan.Sections {
		if s.ParentTopic != topic {
			topic = s.ParentTopic
			fmt.Println(color.CyanString(topic))
		}
		line := fmt.Sprintf("  %4d  %s", s.Index, s.Title)
		if len(s.Focus) > 0 {
			line += "  [" + strings.Join(s.Focus, ", ") + "]"
		}
		fmt.Println(line)
	}
	return nil
}

// openForInspection opens the checkpoint backend without requiring an API key
func openForInspection(ctx context.Context) (*config.Config, *storage, error) {
	cfg, secrets, err := loadConfig(false)
	if err != nil {
		return nil, nil, err
	}
	st, err := openStorage(ctx, cfg, secrets, consoleLogger())
	if err != nil {
		return nil, nil, err
	}
	return cfg, st, nil
}

func statusColor(status models.CheckpointStatus) string {
	switch status {
	case models.StatusCompleted:
		return color.GreenString("%-10s", status)
	case models.StatusFailed:
		return color.RedString("%-10s", status)
	case models.StatusPaused:
		return color.YellowString("%-10s", status)
	default:
		return color.CyanString("%-10s", status)
	}
}

func listCheckpoints(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	_, st, err := openForInspection(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	entries, err := st.index.List(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No checkpoints found. Start a project with: folioforge run --outline <file>")
		return nil
	}

	fmt.Printf("%-38s %-10s %-12s %-8s %s\n", "PROJECT", "STATUS", "SECTIONS", "PROGRESS", "UPDATED")
	fmt.Println(strings.Repeat("-", 90))
	for _, e := range entries {
		pct := 0.0
		if e.PlanSize > 0 {
			pct = float64(e.Completed) / float64(e.PlanSize) * 100
		}
		fmt.Printf("%-38s %s %-12s %-8s %s\n",
			e.ProjectID,
			statusColor(e.Status),
			fmt.Sprintf("%d/%d", e.Completed, e.PlanSize),
			fmt.Sprintf("%.1f%%", pct),
			e.LastUpdatedAt.Local().Format("2006-01-02 15:04:05"))
	}
	return nil
}

func inspectCheckpoint(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id := args[0]
	if err := writer.ValidateProjectID(id); err != nil {
		return err
	}
	_, st, err := openForInspection(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	rec, err := st.store.Load(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}

	pending := checkpoint.Pending(rec, rec.PlanSize)
	fmt.Printf("Checkpoint for: %s\n", rec.ProjectID)
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Status:          %s\n", statusColor(rec.Status))
	fmt.Printf("Model:           %s\n", rec.Model)
	fmt.Printf("Created At:      %s\n", rec.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Printf("Last Updated At: %s\n", rec.LastUpdatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Printf("Plan Hash:       %s\n", rec.PlanHash)
	fmt.Printf("Sections:        %d / %d completed (%.1f%%)\n",
		len(rec.CompletedSections), rec.PlanSize, checkpoint.ProgressPercentage(rec))
	if rec.LastError != "" {
		fmt.Printf("Last Error:      %s\n", color.RedString(rec.LastError))
	}
	fmt.Println()

	if rec.IsComplete() {
		fmt.Println("This project is complete.")
		return nil
	}
	fmt.Printf("Next section:    %d (%d pending)\n", checkpoint.NextIndex(rec, rec.PlanSize), len(pending))
	fmt.Println("To resume this project, run:")
	fmt.Printf("  folioforge resume %s\n", rec.ProjectID)
	return nil
}

func clearCheckpoint(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id := args[0]
	if err := writer.ValidateProjectID(id); err != nil {
		return err
	}
	cfg, st, err := openForInspection(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	lock, err := st.locker.Acquire(ctx, id)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()

	if err := st.store.Delete(ctx, id); err != nil {
		return err
	}
	if err := st.index.Remove(ctx, id); err != nil {
		return err
	}
	fmt.Printf("Cleared checkpoint for %s\n", id)

	if purge {
		project, err := writer.OpenProjectDir(cfg.Paths.OutputDir, id)
		if errors.Is(err, writer.ErrProjectNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := project.Remove(); err != nil {
			return fmt.Errorf("failed to remove project directory: %w", err)
		}
		fmt.Printf("Removed %s\n", project.Dir())
	}
	return nil
}
