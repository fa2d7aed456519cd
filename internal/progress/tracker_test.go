package progress

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikhail/topic-modeler/internal/settings"
)

func newTestTracker(t *testing.T) (*Tracker, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	tr := NewTracker(store, "run-1")
	tr.Start(context.Background(), settings.Default())
	return tr, store
}

func TestStart_InitialState(t *testing.T) {
	tr, store := newTestTracker(t)
	ctx := context.Background()

	run, err := CurrentProgress(ctx, store)
	require.NoError(t, err)
	require.NotNil(t, run)

	assert.Equal(t, "run-1", run.RunID)
	assert.Equal(t, StatusRunning, run.Status)
	assert.Len(t, run.Steps, len(StepDefinitions))
	for _, step := range run.Steps {
		assert.Equal(t, StepPending, step.Status)
	}
	assert.Zero(t, run.Progress)
	assert.False(t, tr.IsCancelRequested(ctx))
}

func TestUpdateStep_ProgressMonotonic(t *testing.T) {
	tr, store := newTestTracker(t)
	ctx := context.Background()

	last := 0.0
	for _, def := range StepDefinitions {
		tr.UpdateStep(ctx, def.ID, StepRunning, nil)
		run, err := CurrentProgress(ctx, store)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, run.Progress, last)

		tr.UpdateStep(ctx, def.ID, StepDone, map[string]any{"count": 1})
		run, err = CurrentProgress(ctx, store)
		require.NoError(t, err)
		assert.Greater(t, run.Progress, last)
		last = run.Progress
	}
	assert.Equal(t, 100.0, last)
}

func TestUpdateStep_MergesDetails(t *testing.T) {
	tr, store := newTestTracker(t)
	ctx := context.Background()

	tr.UpdateStep(ctx, "fetch_posts", StepRunning, map[string]any{"mode": "postgresql"})
	tr.UpdateStep(ctx, "fetch_posts", StepDone, map[string]any{"count": 42})

	run, err := CurrentProgress(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, "postgresql", run.Steps[0].Details["mode"])
	assert.EqualValues(t, 42, run.Steps[0].Details["count"])
}

func TestUpdateStep_NeverLeavesDone(t *testing.T) {
	tr, store := newTestTracker(t)
	ctx := context.Background()

	tr.UpdateStep(ctx, "fetch_posts", StepDone, map[string]any{"fetched": 5})
	tr.UpdateStep(ctx, "fetch_posts", StepRunning, map[string]any{"fetched": 0})
	tr.UpdateStep(ctx, "fetch_posts", StepFailed, nil)

	run, err := CurrentProgress(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, StepDone, run.Steps[0].Status)
	assert.EqualValues(t, 5, run.Steps[0].Details["fetched"])
	assert.Greater(t, run.Progress, 0.0)
}

func TestUpdateStep_BeforeStartIsNoop(t *testing.T) {
	store := NewMemoryStore()
	tr := NewTracker(store, "never-started")
	ctx := context.Background()

	tr.UpdateStep(ctx, "fetch_posts", StepDone, nil)

	ok, err := store.Exists(ctx, keyPrefix+"never-started")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLog_RingBuffer(t *testing.T) {
	tr, store := newTestTracker(t)
	ctx := context.Background()

	for i := 0; i < MaxLogEntries+25; i++ {
		tr.Log(ctx, "info", fmt.Sprintf("entry %d", i))
	}

	run, err := CurrentProgress(ctx, store)
	require.NoError(t, err)
	require.Len(t, run.Logs, MaxLogEntries)
	assert.Equal(t, "entry 25", run.Logs[0].Message)
	assert.Equal(t, fmt.Sprintf("entry %d", MaxLogEntries+24), run.Logs[len(run.Logs)-1].Message)
}

func TestUpdateMetrics_ShallowMerge(t *testing.T) {
	tr, store := newTestTracker(t)
	ctx := context.Background()

	tr.UpdateMetrics(ctx, map[string]any{"posts_indexed": 10, "topics_found": 2})
	tr.UpdateMetrics(ctx, map[string]any{"topics_found": 3})

	run, err := CurrentProgress(ctx, store)
	require.NoError(t, err)
	assert.EqualValues(t, 10, run.Metrics["posts_indexed"])
	assert.EqualValues(t, 3, run.Metrics["topics_found"])
}

func TestFinish_TerminalState(t *testing.T) {
	tr, store := newTestTracker(t)
	ctx := context.Background()

	tr.Finish(ctx, StatusFailed, nil, "clustering engine: not enough posts")

	run, err := CurrentProgress(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, run.Status)
	assert.NotNil(t, run.FinishedAt)
	assert.Contains(t, run.Error, "not enough posts")
}

func TestRequestCancel_CurrentRun(t *testing.T) {
	tr, store := newTestTracker(t)
	ctx := context.Background()

	found, err := RequestCancel(ctx, store, "")
	require.NoError(t, err)
	assert.True(t, found)

	// The tracker observes the flag on a fresh read even though its cached
	// copy predates the cancel.
	assert.True(t, tr.IsCancelRequested(ctx))
}

func TestRequestCancel_ByRunID(t *testing.T) {
	_, store := newTestTracker(t)
	ctx := context.Background()

	found, err := RequestCancel(ctx, store, "run-1")
	require.NoError(t, err)
	assert.True(t, found)

	run, err := CurrentProgress(ctx, store)
	require.NoError(t, err)
	assert.True(t, run.Control.CancelRequested)
}

func TestRequestCancel_UnknownIDFallsBackToCurrent(t *testing.T) {
	tr, store := newTestTracker(t)
	ctx := context.Background()

	found, err := RequestCancel(ctx, store, "no-such-run")
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, tr.IsCancelRequested(ctx))
}

func TestRequestCancel_NoRuns(t *testing.T) {
	store := NewMemoryStore()

	found, err := RequestCancel(context.Background(), store, "")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMarkCancelled_Idempotent(t *testing.T) {
	tr, store := newTestTracker(t)
	ctx := context.Background()

	tr.UpdateStep(ctx, "fetch_posts", StepDone, nil)
	tr.MarkCancelled(ctx, map[string]any{"posts": 10})
	tr.MarkCancelled(ctx, map[string]any{"posts": 99})

	run, err := CurrentProgress(ctx, store)
	require.NoError(t, err)
	assert.True(t, run.Control.CancelRequested)
	assert.Equal(t, StatusCancelled, run.Status)
	// Completed work stays visible, the boundary step is skipped and the
	// rest of the queue is untouched.
	assert.Equal(t, StepDone, run.Steps[0].Status)
	assert.Equal(t, StepSkipped, run.Steps[1].Status)
	assert.Equal(t, StepPending, run.Steps[2].Status)
	// The first partial result wins.
	assert.EqualValues(t, 10, run.Result["posts"])
}

func TestWrites_RefreshTTL(t *testing.T) {
	store := NewMemoryStore()
	base := time.Now()
	store.now = func() time.Time { return base }

	tr := NewTracker(store, "run-ttl")
	tr.now = func() time.Time { return base }
	ctx := context.Background()
	tr.Start(ctx, settings.Default())

	// Just before expiry a write lands and resets the clock.
	base = base.Add(StateTTL - time.Minute)
	tr.Log(ctx, "info", "still alive")

	base = base.Add(StateTTL - time.Minute)
	run, err := CurrentProgress(ctx, store)
	require.NoError(t, err)
	require.NotNil(t, run, "record should have been kept alive by the write")

	// With no further writes it finally expires.
	base = base.Add(2 * StateTTL)
	run, err = CurrentProgress(ctx, store)
	require.NoError(t, err)
	assert.Nil(t, run)
}

func TestCurrentProgress_Empty(t *testing.T) {
	run, err := CurrentProgress(context.Background(), NewMemoryStore())
	require.NoError(t, err)
	assert.Nil(t, run)
}
