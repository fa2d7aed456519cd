// Package progress tracks the state of a topic modeling run so a UI can poll
// it and a user can cancel it. State is persisted with a TTL; every write
// refreshes the TTL so a long run does not expire mid-execution.
package progress

import (
	"time"

	"github.com/mikhail/topic-modeler/internal/settings"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Step statuses.
const (
	StepPending = "pending"
	StepRunning = "running"
	StepDone    = "done"
	StepFailed  = "failed"
	StepSkipped = "skipped"
)

// StepDef is one fixed step of the pipeline as shown to the UI.
type StepDef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// StepDefinitions is the fixed, ordered step list of a full pipeline run.
var StepDefinitions = []StepDef{
	{ID: "fetch_posts", Title: "1. Fetch posts from PostgreSQL"},
	{ID: "search_embeddings", Title: "2. Search-space embeddings"},
	{ID: "clustering_embeddings", Title: "3. Clustering-space embeddings"},
	{ID: "vector_indexing", Title: "4. Qdrant indexing"},
	{ID: "clustering", Title: "5. Topic clustering"},
	{ID: "title_generation", Title: "6. Title generation"},
	{ID: "persistence", Title: "7. Save results to PostgreSQL"},
}

// Step is the live status of one pipeline step.
type Step struct {
	ID      string         `json:"id"`
	Title   string         `json:"title"`
	Status  string         `json:"status"`
	Details map[string]any `json:"details"`
}

// LogEntry is one line of the run's bounded log tail.
type LogEntry struct {
	Timestamp time.Time `json:"ts"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

// Control holds the out-of-band flags a caller can set on a run.
type Control struct {
	CancelRequested bool `json:"cancel_requested"`
}

// Run is the full persisted state of one pipeline execution.
type Run struct {
	RunID      string            `json:"run_id"`
	Status     string            `json:"status"`
	StartedAt  time.Time         `json:"started_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
	Settings   settings.Settings `json:"settings"`
	Control    Control           `json:"control"`
	Steps      []Step            `json:"steps"`
	Progress   float64           `json:"progress"`
	Logs       []LogEntry        `json:"logs"`
	Metrics    map[string]any    `json:"metrics"`
	Result     map[string]any    `json:"result,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// newRun builds a fresh run record with all steps pending.
func newRun(runID string, s settings.Settings, now time.Time) *Run {
	steps := make([]Step, len(StepDefinitions))
	for i, def := range StepDefinitions {
		steps[i] = Step{ID: def.ID, Title: def.Title, Status: StepPending, Details: map[string]any{}}
	}
	return &Run{
		RunID:     runID,
		Status:    StatusRunning,
		StartedAt: now,
		UpdatedAt: now,
		Settings:  s,
		Steps:     steps,
		Progress:  0,
		Logs:      []LogEntry{},
		Metrics:   map[string]any{},
	}
}
