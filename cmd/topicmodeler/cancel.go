package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mikhail/topic-modeler/internal/progress"
)

var cancelRunID string

var cancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Request cancellation of a pipeline run",
	Long:  `Set the cancel flag on a run. The pipeline stops cooperatively at the next step or batch boundary. Without --run-id the current run is cancelled.`,
	RunE:  runCancel,
}

func init() {
	cancelCmd.Flags().StringVar(&cancelRunID, "run-id", "", "Run to cancel (defaults to the current run)")
	rootCmd.AddCommand(cancelCmd)
}

func runCancel(cmd *cobra.Command, _ []string) error {
	store := newProgressStore(loadEnv())
	found, err := progress.RequestCancel(cmd.Context(), store, cancelRunID)
	if err != nil {
		return fmt.Errorf("failed to request cancel: %w", err)
	}
	if !found {
		return fmt.Errorf("no matching run")
	}
	fmt.Println("Cancellation requested")
	return nil
}
