package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/mikhail/topic-modeler/internal/server"
	"github.com/mikhail/topic-modeler/internal/settings"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  `Start an HTTP server that exposes endpoints for starting and cancelling pipeline runs, reading run progress and editing settings.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "Port to listen on")
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	env := loadEnv()
	store := newProgressStore(env)
	settingsStore := settings.NewStore(env.settingsPath)

	runner := func(ctx context.Context, runID string, recluster bool, daysBack int) error {
		return runPipeline(ctx, env, store, runID, recluster, daysBack)
	}

	srv := server.New(server.Config{
		Port:      servePort,
		JWTSecret: env.jwtSecret,
	}, store, settingsStore, runner, nil)
	return srv.Start()
}
