package coordinator

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/directord/pkg/datastore/memory"
	"github.com/cuemby/directord/pkg/driver"
	"github.com/cuemby/directord/pkg/types"
)

func newTestJob(parentID string, targets ...string) *types.Job {
	job := types.NewJob("job-1", parentID, "RUN", types.JobDefinition{Fields: map[string]any{"command": "true"}})
	for _, t := range targets {
		job.Targets = append(job.Targets, types.Identity(t))
	}
	return job
}

func returnFrame(t *testing.T, jobID string, success bool) *driver.Frame {
	t.Helper()
	data, err := json.Marshal(returnPayload{JobID: jobID, Success: success, ExecutionSeconds: 0.1})
	require.NoError(t, err)
	return &driver.Frame{MessageID: jobID, Data: data}
}

// TestReturnManagerNeverDowngradesTerminalState covers Testable
// Property #4: replaying a duplicate return frame after a job has
// already gone terminal must never move it back toward pending.
func TestReturnManagerNeverDowngradesTerminalState(t *testing.T) {
	store := memory.New()
	drv := newMemDriver()
	rm := NewReturnManager(store, drv)

	job := newTestJob("parent-1", "nodeA")
	rm.Track(job)

	require.NoError(t, rm.merge(context.Background(), "nodeA", returnFrame(t, job.JobID, true)))
	require.Equal(t, types.JobSucceeded, job.PerNode[types.Identity("nodeA")].State)
	require.True(t, job.Terminal())

	// A duplicate, stale frame claiming failure arrives after the
	// terminal success was already recorded.
	require.NoError(t, rm.merge(context.Background(), "nodeA", returnFrame(t, job.JobID, false)))
	assert.Equal(t, types.JobSucceeded, job.PerNode[types.Identity("nodeA")].State)
	assert.True(t, job.PerNode[types.Identity("nodeA")].Success)
}

func TestReturnManagerAggregatesAcrossTargets(t *testing.T) {
	store := memory.New()
	drv := newMemDriver()
	rm := NewReturnManager(store, drv)

	job := newTestJob("parent-1", "nodeA", "nodeB")
	rm.Track(job)

	require.NoError(t, rm.merge(context.Background(), "nodeA", returnFrame(t, job.JobID, true)))
	assert.False(t, job.Terminal())

	require.NoError(t, rm.merge(context.Background(), "nodeB", returnFrame(t, job.JobID, false)))
	assert.True(t, job.Terminal())
	assert.Equal(t, types.JobFailed, job.State)
}

func TestReturnManagerRoundtripSecondsSetFromTransmittedAt(t *testing.T) {
	store := memory.New()
	drv := newMemDriver()
	rm := NewReturnManager(store, drv)

	job := newTestJob("parent-1", "nodeA")
	job.TransmittedAt = time.Now().Add(-50 * time.Millisecond)
	rm.Track(job)

	require.NoError(t, rm.merge(context.Background(), "nodeA", returnFrame(t, job.JobID, true)))
	assert.Greater(t, job.PerNode[types.Identity("nodeA")].RoundtripSeconds, 0.0)
}
