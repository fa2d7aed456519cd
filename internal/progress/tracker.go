package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/mikhail/topic-modeler/internal/settings"
)

const (
	keyPrefix  = "topic_modeling:progress:"
	currentKey = keyPrefix + "current"

	// StateTTL bounds how long a stale run record survives. Every write
	// re-sets it so an active run never expires.
	StateTTL = 48 * time.Hour

	// MaxLogEntries caps the run's log tail (ring-buffer semantics).
	MaxLogEntries = 200
)

// Tracker manages the persisted state of a single pipeline run. It holds a
// working copy of the record but always re-reads the store before answering
// IsCancelRequested, so a concurrent cancel is observed promptly.
type Tracker struct {
	store Store
	runID string
	state *Run
	now   func() time.Time
}

// NewTracker creates a tracker for the given run id; an empty id gets a
// generated one.
func NewTracker(store Store, runID string) *Tracker {
	if runID == "" {
		runID = uuid.NewString()
	}
	return &Tracker{store: store, runID: runID, now: time.Now}
}

// RunID returns this tracker's run id.
func (t *Tracker) RunID() string { return t.runID }

func (t *Tracker) key() string { return keyPrefix + t.runID }

func (t *Tracker) ensureState(ctx context.Context) {
	if t.state != nil {
		return
	}
	raw, ok, err := t.store.Get(ctx, t.key())
	if err != nil || !ok {
		return
	}
	var run Run
	if json.Unmarshal([]byte(raw), &run) == nil {
		t.state = &run
	}
}

func (t *Tracker) saveState(ctx context.Context) {
	if t.state == nil {
		return
	}
	t.state.UpdatedAt = t.now().UTC()
	payload, err := json.Marshal(t.state)
	if err != nil {
		return
	}
	_ = t.store.Set(ctx, t.key(), string(payload), StateTTL)
	_ = t.store.Set(ctx, currentKey, string(payload), StateTTL)
}

// Start creates the run record in running status with all steps pending and
// updates the current-run pointer. The snapshot is immutable for the run.
func (t *Tracker) Start(ctx context.Context, snapshot settings.Settings) {
	t.state = newRun(t.runID, snapshot, t.now().UTC())
	t.saveState(ctx)
}

// UpdateStep transitions one step, merging details into its existing detail
// map, and recomputes progress from the done-step count. Steps only move
// forward: a transition out of done is rejected, so progress never
// regresses. A call before Start is a no-op.
func (t *Tracker) UpdateStep(ctx context.Context, stepID, status string, details map[string]any) {
	t.ensureState(ctx)
	if t.state == nil {
		return
	}
	for i := range t.state.Steps {
		step := &t.state.Steps[i]
		if step.ID != stepID {
			continue
		}
		if step.Status == StepDone && status != StepDone {
			return
		}
		step.Status = status
		if len(details) > 0 {
			if step.Details == nil {
				step.Details = map[string]any{}
			}
			for k, v := range details {
				step.Details[k] = v
			}
		}
		break
	}
	done := 0
	for _, step := range t.state.Steps {
		if step.Status == StepDone {
			done++
		}
	}
	if total := len(t.state.Steps); total > 0 {
		t.state.Progress = math.Round(float64(done)/float64(total)*1000) / 10
	}
	t.saveState(ctx)
}

// Log appends a log entry, trimming the list to the most recent MaxLogEntries.
func (t *Tracker) Log(ctx context.Context, level, message string) {
	t.ensureState(ctx)
	if t.state == nil {
		return
	}
	t.state.Logs = append(t.state.Logs, LogEntry{
		Timestamp: t.now().UTC(),
		Level:     level,
		Message:   message,
	})
	if len(t.state.Logs) > MaxLogEntries {
		t.state.Logs = t.state.Logs[len(t.state.Logs)-MaxLogEntries:]
	}
	t.saveState(ctx)
}

// UpdateMetrics shallow-merges the given map into the run's metrics.
func (t *Tracker) UpdateMetrics(ctx context.Context, metrics map[string]any) {
	t.ensureState(ctx)
	if t.state == nil {
		return
	}
	if t.state.Metrics == nil {
		t.state.Metrics = map[string]any{}
	}
	for k, v := range metrics {
		t.state.Metrics[k] = v
	}
	t.saveState(ctx)
}

// Finish sets the terminal status and end timestamp, storing result and
// error when provided.
func (t *Tracker) Finish(ctx context.Context, status string, result map[string]any, errMsg string) {
	t.ensureState(ctx)
	if t.state == nil {
		return
	}
	t.state.Status = status
	now := t.now().UTC()
	t.state.FinishedAt = &now
	if result != nil {
		t.state.Result = result
	}
	if errMsg != "" {
		t.state.Error = errMsg
	}
	t.saveState(ctx)
}

// IsCancelRequested re-reads the persisted record, never the cached copy, so
// a cancel issued by a concurrent caller is not missed.
func (t *Tracker) IsCancelRequested(ctx context.Context) bool {
	raw, ok, err := t.store.Get(ctx, t.key())
	if err != nil || !ok {
		return false
	}
	var run Run
	if json.Unmarshal([]byte(raw), &run) != nil {
		return false
	}
	return run.Control.CancelRequested
}

// MarkCancelled idempotently moves the run to cancelled status. The step at
// the boundary where the cancel was observed (the first one still pending or
// running) is marked skipped; completed steps and the rest of the queue are
// untouched, keeping the partial progress visible. A partial result, when
// given, is stored on the record.
func (t *Tracker) MarkCancelled(ctx context.Context, result map[string]any) {
	t.ensureState(ctx)
	if t.state == nil {
		return
	}
	t.state.Control.CancelRequested = true
	t.state.Status = StatusCancelled
	for i := range t.state.Steps {
		status := t.state.Steps[i].Status
		if status == StepPending || status == StepRunning {
			t.state.Steps[i].Status = StepSkipped
			break
		}
	}
	if result != nil && t.state.Result == nil {
		t.state.Result = result
	}
	if t.state.FinishedAt == nil {
		now := t.now().UTC()
		t.state.FinishedAt = &now
	}
	t.saveState(ctx)
}

// CurrentProgress reads the run pointed at by the current-run pointer.
// Returns nil when no run has started or the pointer expired.
func CurrentProgress(ctx context.Context, store Store) (*Run, error) {
	raw, ok, err := store.Get(ctx, currentKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read current run: %w", err)
	}
	if !ok {
		return nil, nil
	}
	var run Run
	if err := json.Unmarshal([]byte(raw), &run); err != nil {
		return nil, nil
	}
	return &run, nil
}

// RequestCancel sets the cancel flag on the run with the given id, falling
// back to the current run when the id is empty or unknown. Returns whether a
// matching run record was found.
func RequestCancel(ctx context.Context, store Store, runID string) (bool, error) {
	key := currentKey
	if runID != "" {
		candidate := keyPrefix + runID
		if ok, err := store.Exists(ctx, candidate); err == nil && ok {
			key = candidate
		}
	}
	raw, ok, err := store.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to read run state: %w", err)
	}
	if !ok {
		return false, nil
	}
	var run Run
	if err := json.Unmarshal([]byte(raw), &run); err != nil {
		return false, nil
	}
	run.Control.CancelRequested = true
	payload, err := json.Marshal(&run)
	if err != nil {
		return false, fmt.Errorf("failed to marshal run state: %w", err)
	}
	if err := store.Set(ctx, keyPrefix+run.RunID, string(payload), StateTTL); err != nil {
		return false, fmt.Errorf("failed to persist cancel flag: %w", err)
	}
	_ = store.Set(ctx, currentKey, string(payload), StateTTL)
	return true, nil
}
