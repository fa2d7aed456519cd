package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/mikhail/topic-modeler/internal/db"
	"github.com/mikhail/topic-modeler/internal/embed"
	"github.com/mikhail/topic-modeler/internal/pipeline"
	"github.com/mikhail/topic-modeler/internal/progress"
	"github.com/mikhail/topic-modeler/internal/settings"
	"github.com/mikhail/topic-modeler/internal/titles"
	"github.com/mikhail/topic-modeler/internal/vectorstore"
)

// appEnv collects process configuration from the environment.
type appEnv struct {
	databaseURL   string
	apiKey        string
	qdrantHost    string
	qdrantPort    int
	redisAddr     string
	redisPassword string
	settingsPath  string
	artifactsDir  string
	jwtSecret     string
}

func loadEnv() appEnv {
	return appEnv{
		databaseURL:   os.Getenv("DATABASE_URL"),
		apiKey:        os.Getenv("GEMINI_API_KEY"),
		qdrantHost:    envOr("QDRANT_HOST", "localhost"),
		qdrantPort:    envIntOr("QDRANT_PORT", 6334),
		redisAddr:     os.Getenv("REDIS_ADDR"),
		redisPassword: os.Getenv("REDIS_PASSWORD"),
		settingsPath:  envOr("SETTINGS_PATH", "config/topic_modeling.json"),
		artifactsDir:  envOr("ARTIFACTS_DIR", "artifacts/topic_modeling"),
		jwtSecret:     os.Getenv("JWT_SECRET"),
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOr(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// newProgressStore picks Redis when configured and falls back to the
// process-local store otherwise.
func newProgressStore(env appEnv) progress.Store {
	if env.redisAddr == "" {
		logrus.Warn("REDIS_ADDR not set, using in-process progress store")
		return progress.NewMemoryStore()
	}
	client := redis.NewClient(&redis.Options{Addr: env.redisAddr, Password: env.redisPassword})
	return progress.NewRedisStore(client)
}

// runPipeline wires the collaborators from the environment and executes one
// run end to end. It is used by the run and recluster commands and by the
// server's run endpoint.
func runPipeline(ctx context.Context, env appEnv, store progress.Store, runID string, recluster bool, daysBack int) error {
	if env.databaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is required")
	}
	log := logrus.WithField("run_id", runID)

	s := settings.NewStore(env.settingsPath).Load()

	database, err := db.Connect(ctx, env.databaseURL)
	if err != nil {
		return err
	}
	defer database.Close()

	index, err := vectorstore.New(vectorstore.Config{
		Host:      env.qdrantHost,
		Port:      env.qdrantPort,
		BatchSize: s.QdrantBatchSize,
	}, log)
	if err != nil {
		return err
	}

	registry := embed.NewRegistry(env.apiKey, nil, log)

	var titleGen pipeline.TitleSource
	release := registry.Release
	if s.UseLLMForTitles {
		gen, err := titles.New(ctx, env.apiKey, titles.Options{
			Model:       s.TitleModel,
			Temperature: s.TitleTemperature,
			MaxTokens:   s.TitleMaxTokens,
			Timeout:     time.Duration(s.TitleTimeoutSec * float64(time.Second)),
			MaxLength:   s.MaxTitleLength,
			SampleCount: s.NumSampleTexts,
		}, log)
		if err != nil {
			return err
		}
		defer gen.Close()
		titleGen = gen
	}

	tracker := progress.NewTracker(store, runID)
	p := pipeline.New(s, tracker, database, registry, index, titleGen, database, pipeline.Options{
		DaysBack:     daysBack,
		ArtifactsDir: env.artifactsDir,
		Release:      release,
	}, log)

	var rep *pipeline.Report
	if recluster {
		rep, err = p.RunClustering(ctx)
	} else {
		rep, err = p.Run(ctx)
	}
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"status": rep.Status,
		"topics": rep.Topics,
		"noise":  rep.NoisePosts,
	}).Info("run finished")
	return nil
}
