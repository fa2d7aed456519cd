package main

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mikhail/topic-modeler/internal/pipeline"
)

var reclusterCmd = &cobra.Command{
	Use:   "recluster",
	Short: "Re-cluster already indexed vectors",
	Long:  `Skip fetching and embedding, and re-run only clustering, title generation and persistence on the vectors already indexed in Qdrant. Use this after changing clustering settings.`,
	RunE:  runRecluster,
}

func init() {
	rootCmd.AddCommand(reclusterCmd)
}

func runRecluster(cmd *cobra.Command, _ []string) error {
	env := loadEnv()
	store := newProgressStore(env)
	runID := uuid.NewString()

	err := runPipeline(cmd.Context(), env, store, runID, true, 0)
	if errors.Is(err, pipeline.ErrCancelled) {
		fmt.Printf("Run %s was cancelled\n", runID)
		return nil
	}
	return err
}
