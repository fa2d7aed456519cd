// Package main provides the entry point for the topic modeling service.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "topicmodeler",
	Short: "Topic modeling pipeline for channel posts",
	Long:  "Topicmodeler fetches posts from PostgreSQL, embeds them into search and clustering vector spaces, indexes the vectors in Qdrant, groups them into titled topics and saves the result back to PostgreSQL.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if os.Getenv("LOG_LEVEL") == "debug" {
		logrus.SetLevel(logrus.DebugLevel)
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
