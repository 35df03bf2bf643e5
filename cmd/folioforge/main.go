package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var (
	configPath string
	envFile    string
	verbose    bool
	statusAddr string
	modelName  string
	minDelayMs int
	outputDir  string

	outlinePath string
	briefText   string
	docTitle    string
	projectID   string
	force       bool
	purge       bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "folioforge",
		Short: "FolioForge - resumable long-form document generator",
		Long: `FolioForge expands an outline into a deterministic section plan and drafts
every section with an LLM, one rate-limited call at a time. Progress is
checkpointed after each section so interrupted runs resume where they stopped.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "config.toml", "Path to configuration file")
	pf.StringVar(&envFile, "env-file", ".env", "Path to environment file")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	pf.StringVar(&modelName, "model", "", "Override the model_name of the section model")
	pf.IntVar(&minDelayMs, "min-delay-ms", 0, "Override generation.min_call_delay_ms")
	pf.StringVar(&outputDir, "output-dir", "", "Override paths.output_dir")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Plan an outline and draft every section",
		Long: `Run the complete pipeline for a new project:
1. Architect: read the outline (or draft one from --brief)
2. Plan: expand every topic into a fixed number of sections
3. Writer: draft sections in order, checkpointing each one
4. Image curator and reviewer: collect figure cues and flag weak sections
5. Assemble document.md`,
		RunE: runProject,
	}
	runCmd.Flags().StringVar(&outlinePath, "outline", "", "Outline file (JSON or YAML)")
	runCmd.Flags().StringVar(&briefText, "brief", "", "Free-text brief; the architect drafts the outline")
	runCmd.Flags().StringVar(&docTitle, "title", "", "Document title (overrides the outline title)")
	runCmd.Flags().StringVar(&projectID, "project-id", "", "Project id (default: random UUID)")
	runCmd.Flags().BoolVar(&force, "force", false, "Re-plan a project that already has a checkpoint")
	runCmd.Flags().StringVar(&statusAddr, "status-addr", "", "Serve progress on this address (e.g. 127.0.0.1:8089)")
	runCmd.MarkFlagsMutuallyExclusive("outline", "brief")

	resumeCmd := &cobra.Command{
		Use:   "resume [project-id]",
		Short: "Resume an interrupted project",
		Long:  "Resume the named project, or the most recently updated resumable one when no id is given",
		Args:  cobra.MaximumNArgs(1),
		RunE:  resumeProject,
	}
	resumeCmd.Flags().StringVar(&statusAddr, "status-addr", "", "Serve progress on this address (e.g. 127.0.0.1:8089)")

	planCmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the section plan for an outline without calling the model",
		RunE:  printPlan,
	}
	planCmd.Flags().StringVar(&outlinePath, "outline", "", "Outline file (JSON or YAML)")
	planCmd.Flags().StringVar(&docTitle, "title", "", "Document title (overrides the outline title)")
	_ = planCmd.MarkFlagRequired("outline")

	checkpointCmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Manage checkpoints",
		Long:  "Inspect and clear the checkpoints used to resume interrupted projects",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all projects with a checkpoint",
		RunE:  listCheckpoints,
	}

	inspectCmd := &cobra.Command{
		Use:   "inspect <project-id>",
		Short: "Inspect a checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE:  inspectCheckpoint,
	}

	clearCmd := &cobra.Command{
		Use:   "clear <project-id>",
		Short: "Delete a project's checkpoint",
		Long:  "Delete a project's checkpoint and index entry. With --purge the project directory is removed too.",
		Args:  cobra.ExactArgs(1),
		RunE:  clearCheckpoint,
	}
	clearCmd.Flags().BoolVar(&purge, "purge", false, "Also delete the project's output directory")

	checkpointCmd.AddCommand(listCmd, inspectCmd, clearCmd)
	rootCmd.AddCommand(runCmd, resumeCmd, planCmd, checkpointCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
