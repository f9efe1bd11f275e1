package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maukemana/sync-engine/internal/mapping"
	"github.com/maukemana/sync-engine/internal/models"
)

// newTestOrchestrator builds an Orchestrator with nil repository/image/
// upstream collaborators, valid only for exercising the control-plane logic
// (ControlSync/checkpoint) that never touches them.
func newTestOrchestrator() *Orchestrator {
	return New(nil, mapping.ProductTable, nil, nil, nil, "app-token", "table-id", nil)
}

func TestClaim_SelectiveModeWithoutProductIDsIsRejected(t *testing.T) {
	o := newTestOrchestrator()

	_, err := o.claim(context.Background(), Options{Mode: models.SyncSelective})
	assert.ErrorIs(t, err, ErrMissingProductIDs)
	assert.False(t, o.running, "a rejected claim must not reserve the process-wide slot")
}

func TestClaim_SelectiveModeWithEmptyProductIDsSliceIsRejected(t *testing.T) {
	o := newTestOrchestrator()

	_, err := o.claim(context.Background(), Options{Mode: models.SyncSelective, ProductIDs: []string{}})
	assert.ErrorIs(t, err, ErrMissingProductIDs)
}

func TestControlSync_ConflictsWhenNoSyncRunning(t *testing.T) {
	o := newTestOrchestrator()
	err := o.ControlSync(ActionPause, "")
	assert.ErrorIs(t, err, ErrNoActiveSync)
}

func TestControlSync_RejectsMismatchedSyncID(t *testing.T) {
	o := newTestOrchestrator()
	o.running = true
	o.syncID = "sync-a"

	err := o.ControlSync(ActionPause, "sync-b")
	assert.ErrorIs(t, err, ErrNoActiveSync)
}

func TestControlSync_PauseResumeCancel(t *testing.T) {
	o := newTestOrchestrator()
	o.running = true
	o.syncID = "sync-a"

	require.NoError(t, o.ControlSync(ActionPause, "sync-a"))
	assert.True(t, o.paused.Load())

	require.NoError(t, o.ControlSync(ActionResume, "sync-a"))
	assert.False(t, o.paused.Load())

	require.NoError(t, o.ControlSync(ActionCancel, ""))
	assert.True(t, o.cancelled.Load())
}

func TestControlSync_UnknownActionErrors(t *testing.T) {
	o := newTestOrchestrator()
	o.running = true
	o.syncID = "sync-a"

	err := o.ControlSync(ControlAction("nonsense"), "sync-a")
	assert.Error(t, err)
}

func TestCheckpoint_CancelledReturnsErrCancelledImmediately(t *testing.T) {
	o := newTestOrchestrator()
	o.cancelled.Store(true)

	err := o.checkpoint(context.Background())
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestCheckpoint_PausedBlocksUntilResumed(t *testing.T) {
	o := newTestOrchestrator()
	o.paused.Store(true)

	done := make(chan error, 1)
	go func() { done <- o.checkpoint(context.Background()) }()

	select {
	case <-done:
		t.Fatal("checkpoint returned while still paused")
	case <-time.After(150 * time.Millisecond):
	}

	o.paused.Store(false)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("checkpoint never unblocked after resume")
	}
}

func TestCheckpoint_CancelWhilePausedWinsOverContinuingToWait(t *testing.T) {
	o := newTestOrchestrator()
	o.paused.Store(true)

	done := make(chan error, 1)
	go func() { done <- o.checkpoint(context.Background()) }()

	time.Sleep(50 * time.Millisecond)
	o.cancelled.Store(true)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrCancelled)
	case <-time.After(time.Second):
		t.Fatal("checkpoint never observed the cancel while paused")
	}
}

func TestCheckpoint_ContextCancelledWhilePausedReturnsContextError(t *testing.T) {
	o := newTestOrchestrator()
	o.paused.Store(true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.checkpoint(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("checkpoint never observed context cancellation while paused")
	}
}

func TestResolveOptions_AppliesDocumentedDefaults(t *testing.T) {
	opts := ResolveOptions(RawOptions{Mode: models.SyncFull})

	assert.True(t, opts.DownloadImages)
	assert.True(t, opts.ValidateData)
	assert.False(t, opts.DryRun)
	assert.Equal(t, 50, opts.BatchSize)
	assert.Equal(t, 5, opts.ConcurrentImages)
}

func TestResolveOptions_HonorsExplicitOverrides(t *testing.T) {
	f := false
	bs := 10
	opts := ResolveOptions(RawOptions{Mode: models.SyncIncremental, DownloadImages: &f, BatchSize: &bs})

	assert.False(t, opts.DownloadImages)
	assert.Equal(t, 10, opts.BatchSize)
	assert.True(t, opts.ValidateData, "unset knobs still get their documented default")
}

func TestResolveOptions_IgnoresNonPositiveOverrides(t *testing.T) {
	zero := 0
	opts := ResolveOptions(RawOptions{Mode: models.SyncFull, BatchSize: &zero, ConcurrentImages: &zero})

	assert.Equal(t, 50, opts.BatchSize)
	assert.Equal(t, 5, opts.ConcurrentImages)
}
