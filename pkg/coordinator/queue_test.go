package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/directord/pkg/datastore/memory"
	"github.com/cuemby/directord/pkg/types"
)

func aliveHeartbeats(identities ...string) *HeartbeatTracker {
	h := NewHeartbeatTracker(memory.New(), newMemDriver(), time.Hour)
	now := time.Now()
	for _, id := range identities {
		h.workers[id] = &types.WorkerRecord{Identity: types.Identity(id), ExpiryDeadline: now.Add(time.Hour)}
	}
	return h
}

func waitForSentCount(t *testing.T, drv *memDriver, identity string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(drv.sentTo(identity)) >= n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d frames sent to %s, got %d", n, identity, len(drv.sentTo(identity)))
}

// TestDispatcherGatesNonAsyncJobsUntilPriorTerminal covers the
// per-(identity, parent_id) ordering invariant: job n+1 must not be
// dispatched until job n has gone terminal for that identity, when
// async=false.
func TestDispatcherGatesNonAsyncJobsUntilPriorTerminal(t *testing.T) {
	heartbeats := aliveHeartbeats("nodeA")
	drv := newMemDriver()
	d := NewDispatcher(memory.New(), drv, heartbeats)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	job1 := types.NewJob("job-1", "parent-1", "RUN", types.JobDefinition{Fields: map[string]any{"command": "true"}})
	job2 := types.NewJob("job-2", "parent-1", "RUN", types.JobDefinition{Fields: map[string]any{"command": "true"}})

	require.NoError(t, d.Submit(ctx, job1))
	waitForSentCount(t, drv, "nodeA", 1)

	require.NoError(t, d.Submit(ctx, job2))

	// job2 must stay queued: job1 hasn't gone terminal yet.
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, drv.sentTo("nodeA"), 1, "job2 dispatched before job1 went terminal")

	job1.PerNode[types.Identity("nodeA")] = &types.NodeResult{Identity: "nodeA", State: types.JobSucceeded, Success: true}

	waitForSentCount(t, drv, "nodeA", 2)
}

// TestDispatcherAsyncBypassesGate covers the callback-job override:
// async=true or parent_async_bypass=true must skip ordering entirely.
func TestDispatcherAsyncBypassesGate(t *testing.T) {
	heartbeats := aliveHeartbeats("nodeA")
	drv := newMemDriver()
	d := NewDispatcher(memory.New(), drv, heartbeats)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	job1 := types.NewJob("job-1", "parent-1", "RUN", types.JobDefinition{Fields: map[string]any{"command": "true"}})
	job2 := types.NewJob("job-2", "parent-1", "RUN", types.JobDefinition{Fields: map[string]any{"command": "true"}})
	job2.Async = true

	require.NoError(t, d.Submit(ctx, job1))
	require.NoError(t, d.Submit(ctx, job2))

	// job1 is never marked terminal, yet job2 (async) should still land.
	waitForSentCount(t, drv, "nodeA", 2)
}

func TestDispatcherNoTargetsFailsJob(t *testing.T) {
	heartbeats := aliveHeartbeats() // no alive identities
	drv := newMemDriver()
	store := memory.New()
	d := NewDispatcher(store, drv, heartbeats)
	// The only explicit target is not alive, so resolution stays empty
	// and Submit waits out the full targetGrace (a const) before
	// failing the job.
	job := types.NewJob("job-1", "parent-1", "RUN", types.JobDefinition{
		Fields:  map[string]any{"command": "true"},
		Targets: []string{"ghost"},
	})

	err := d.Submit(context.Background(), job)
	require.Error(t, err)
	assert.Equal(t, types.JobFailed, job.State)
}
