package main

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mikhail/topic-modeler/internal/pipeline"
)

var runDaysBack int

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full topic modeling pipeline",
	Long:  `Fetch posts, generate embeddings for both vector spaces, index them in Qdrant, cluster into topics, generate titles and save everything to PostgreSQL.`,
	RunE:  runRun,
}

func init() {
	runCmd.Flags().IntVar(&runDaysBack, "days-back", 30, "Only fetch posts newer than this many days (0 = no limit)")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, _ []string) error {
	env := loadEnv()
	store := newProgressStore(env)
	runID := uuid.NewString()

	err := runPipeline(cmd.Context(), env, store, runID, false, runDaysBack)
	if errors.Is(err, pipeline.ErrCancelled) {
		fmt.Printf("Run %s was cancelled\n", runID)
		return nil
	}
	return err
}
