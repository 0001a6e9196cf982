// Package coordinator implements Directord's server-side control
// plane: the heartbeat tracker, job dispatcher, return manager,
// profiling and the local control socket, all supervised as one
// errgroup.Group of long-running roles.
package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/cuemby/directord/pkg/datastore"
	"github.com/cuemby/directord/pkg/driver"
	"github.com/cuemby/directord/pkg/log"
	"github.com/cuemby/directord/pkg/metrics"
	"github.com/cuemby/directord/pkg/types"
)

// Config holds the subset of pkg/config's Config the coordinator needs.
type Config struct {
	SocketPath       string
	HeartbeatLiveness time.Duration // HEARTBEAT_INTERVAL * HEARTBEAT_LIVENESS
}

// Coordinator wires the heartbeat tracker, dispatcher, return manager
// and local socket together and implements metrics.Source so a
// metrics.Collector can poll it.
type Coordinator struct {
	store datastore.Store
	drv   driver.Driver
	cfg   Config

	heartbeats *HeartbeatTracker
	dispatcher *Dispatcher
	returns    *ReturnManager
	socket     *Socket

	collector *metrics.Collector
}

// New constructs a Coordinator over store/drv with cfg.
func New(store datastore.Store, drv driver.Driver, cfg Config) *Coordinator {
	heartbeats := NewHeartbeatTracker(store, drv, cfg.HeartbeatLiveness)
	dispatcher := NewDispatcher(store, drv, heartbeats)
	returns := NewReturnManager(store, drv)

	c := &Coordinator{
		store:      store,
		drv:        drv,
		cfg:        cfg,
		heartbeats: heartbeats,
		dispatcher: dispatcher,
		returns:    returns,
	}
	c.socket = NewSocket(cfg.SocketPath, c)
	c.collector = metrics.NewCollector(c)
	returns.OnCallback(c.submitCallback)
	return c
}

// submitCallback wraps a callback job's definition into a new Job
// with its own parent id and hands it to Submit; callbacks bypass the
// async ordering gate by construction (def.ParentAsyncBypass is set by
// the caller).
func (c *Coordinator) submitCallback(ctx context.Context, verb string, def types.JobDefinition) error {
	job := types.NewJob(uuid.NewString(), uuid.NewString(), verb, def)
	return c.Submit(ctx, job)
}

// Run starts every coordinator role and blocks until ctx is cancelled
// or one role returns an error, tearing down the rest.
func (c *Coordinator) Run(ctx context.Context) error {
	logger := log.WithComponent("coordinator")
	c.collector.Start()
	defer c.collector.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.heartbeats.Run(gctx) })
	g.Go(func() error { return c.returns.Run(gctx) })
	g.Go(func() error { return c.socket.Run(gctx) })

	logger.Info().Msg("coordinator started")
	err := g.Wait()
	logger.Info().Msg("coordinator stopped")
	return err
}

// Submit tracks job for return merging and hands it to the dispatcher.
func (c *Coordinator) Submit(ctx context.Context, job *types.Job) error {
	c.returns.Track(job)
	return c.dispatcher.Submit(ctx, job)
}

// JobByID returns a persisted job by id, for job_info/poll_job.
func (c *Coordinator) JobByID(ctx context.Context, id string) (*types.Job, error) {
	data, ok, err := c.store.Get(ctx, jobTable, id)
	if err != nil {
		return nil, fmt.Errorf("coordinator: get job %s: %w", id, err)
	}
	if !ok {
		return nil, fmt.Errorf("coordinator: job %s not found", id)
	}
	var job types.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("coordinator: unmarshal job %s: %w", id, err)
	}
	return &job, nil
}

// ListJobs returns every persisted job, for list_jobs.
func (c *Coordinator) ListJobs(ctx context.Context) ([]*types.Job, error) {
	it, err := c.store.Scan(ctx, jobTable, "")
	if err != nil {
		return nil, fmt.Errorf("coordinator: scan jobs: %w", err)
	}
	defer it.Close()

	var out []*types.Job
	for it.Next() {
		var job types.Job
		if err := json.Unmarshal(it.Value(), &job); err != nil {
			continue
		}
		out = append(out, &job)
	}
	return out, it.Err()
}

// PurgeJobs deletes every persisted job record; worker records are untouched.
func (c *Coordinator) PurgeJobs(ctx context.Context) error {
	it, err := c.store.Scan(ctx, jobTable, "")
	if err != nil {
		return fmt.Errorf("coordinator: scan jobs: %w", err)
	}
	defer it.Close()
	var ids []string
	for it.Next() {
		ids = append(ids, it.Key())
	}
	if err := it.Err(); err != nil {
		return err
	}
	for _, id := range ids {
		if err := c.store.Delete(ctx, jobTable, id); err != nil {
			return fmt.Errorf("coordinator: delete job %s: %w", id, err)
		}
	}
	return nil
}

// PurgeNodes clears every retained worker record.
func (c *Coordinator) PurgeNodes() {
	c.heartbeats.Purge()
}

// ListNodes returns every retained worker record.
func (c *Coordinator) ListNodes() []*types.WorkerRecord {
	return c.heartbeats.List()
}

// WorkerCounts implements metrics.Source.
func (c *Coordinator) WorkerCounts() map[types.NodeStatus]int { return c.heartbeats.WorkerCounts() }

// JobCounts implements metrics.Source.
func (c *Coordinator) JobCounts() map[types.JobState]int { return c.returns.JobCounts() }

// QueueDepths implements metrics.Source.
func (c *Coordinator) QueueDepths() map[string]int { return c.dispatcher.QueueDepths() }
