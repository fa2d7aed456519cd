package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mikhail/topic-modeler/internal/db"
)

// Report summarizes one pipeline run. It is returned to the caller and
// written as a JSON artifact next to the run's other outputs.
type Report struct {
	RunID          string       `json:"run_id"`
	Status         string       `json:"status"`
	StartedAt      time.Time    `json:"started_at"`
	FinishedAt     *time.Time   `json:"finished_at,omitempty"`
	PostsFetched   int          `json:"posts_fetched"`
	PostsUsable    int          `json:"posts_usable"`
	EmbedFailures  int          `json:"embed_failures"`
	PointsIndexed  int          `json:"points_indexed"`
	Topics         int          `json:"topics"`
	NoisePosts     int          `json:"noise_posts"`
	TitlesLLM      int          `json:"titles_llm"`
	TitlesKeywords int          `json:"titles_keywords"`
	Save           db.SaveStats `json:"save"`
	Error          string       `json:"error,omitempty"`

	embeddingMetas []db.EmbeddingRecord
}

func newReport(runID string) *Report {
	return &Report{RunID: runID, StartedAt: time.Now().UTC()}
}

// write stores the report as artifacts/<dir>/run_<id>.json.
func (r *Report) write(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create artifacts dir: %w", err)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("run_%s.json", r.RunID))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
