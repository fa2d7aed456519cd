package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mikhail/topic-modeler/internal/progress"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the progress of the current run",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	store := newProgressStore(loadEnv())
	run, err := progress.CurrentProgress(cmd.Context(), store)
	if err != nil {
		return fmt.Errorf("failed to read progress: %w", err)
	}
	if run == nil {
		fmt.Println("No runs recorded")
		return nil
	}

	fmt.Printf("Run %s: %s (%.1f%%)\n", run.RunID, run.Status, run.Progress)
	for _, step := range run.Steps {
		marker := " "
		switch step.Status {
		case progress.StepDone:
			marker = "x"
		case progress.StepRunning:
			marker = ">"
		case progress.StepFailed:
			marker = "!"
		case progress.StepSkipped:
			marker = "-"
		}
		fmt.Printf("  [%s] %s\n", marker, step.Title)
	}
	if run.Error != "" {
		fmt.Printf("Error: %s\n", run.Error)
	}
	return nil
}
