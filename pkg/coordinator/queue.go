package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/directord/pkg/datastore"
	"github.com/cuemby/directord/pkg/driver"
	"github.com/cuemby/directord/pkg/log"
	"github.com/cuemby/directord/pkg/metrics"
	"github.com/cuemby/directord/pkg/types"
)

const jobTable = "jobs"

// targetGrace is how long the dispatcher waits for an empty resolved
// target set to become non-empty before declaring no_targets
// (spec.md §4.2 step 1).
const targetGrace = 5 * time.Second

// Dispatcher resolves targets, fingerprints and dispatches jobs,
// enforcing the per-identity async ordering gate.
type Dispatcher struct {
	store      datastore.Store
	drv        driver.Driver
	heartbeats *HeartbeatTracker

	mu sync.Mutex
	// queues is one bounded channel per identity; the dispatcher
	// drains each independently so one slow identity never blocks
	// another (spec.md §5 "per-identity queues are independent").
	queues map[string]chan *dispatchTask
	// gate tracks, per (identity, parent_id), whether the previous
	// non-async job has gone terminal yet.
	gate map[string]*gateState
}

type gateState struct {
	lastJob *types.Job
}

type dispatchTask struct {
	job      *types.Job
	identity string
}

// NewDispatcher constructs a Dispatcher over store/drv, consulting
// heartbeats to resolve a job's alive target set.
func NewDispatcher(store datastore.Store, drv driver.Driver, heartbeats *HeartbeatTracker) *Dispatcher {
	return &Dispatcher{
		store:      store,
		drv:        drv,
		heartbeats: heartbeats,
		queues:     make(map[string]chan *dispatchTask),
		gate:       make(map[string]*gateState),
	}
}

// Submit resolves job's targets and schedules it for per-identity
// dispatch; it returns once the job is queued, not once it's
// delivered.
func (d *Dispatcher) Submit(ctx context.Context, job *types.Job) error {
	targets := d.resolveTargets(job)
	if len(targets) == 0 {
		deadline := time.Now().Add(targetGrace)
		for len(targets) == 0 && time.Now().Before(deadline) {
			time.Sleep(100 * time.Millisecond)
			targets = d.resolveTargets(job)
		}
	}
	if len(targets) == 0 {
		job.State = types.JobFailed
		_ = d.persist(ctx, job)
		return fmt.Errorf("coordinator: job %s: no_targets", job.JobID)
	}

	job.Targets = targets
	job.State = types.JobDispatched
	if err := d.persist(ctx, job); err != nil {
		return err
	}

	for _, identity := range targets {
		d.enqueue(ctx, job, string(identity))
	}
	return nil
}

func (d *Dispatcher) resolveTargets(job *types.Job) []types.Identity {
	explicit := job.Definition.Targets
	restrict := job.Definition.Restrict

	var pool []string
	if len(explicit) > 0 {
		pool = explicit
	} else {
		pool = d.heartbeats.AliveIdentities()
	}
	if len(restrict) > 0 {
		pool = intersect(pool, restrict)
	}

	out := make([]types.Identity, 0, len(pool))
	for _, id := range pool {
		if d.heartbeats.Alive(id) {
			out = append(out, types.Identity(id))
		}
	}
	return out
}

func intersect(a, b []string) []string {
	set := make(map[string]bool, len(b))
	for _, s := range b {
		set[s] = true
	}
	var out []string
	for _, s := range a {
		if set[s] {
			out = append(out, s)
		}
	}
	return out
}

// enqueue places job on identity's FIFO queue, starting that queue's
// worker goroutine on first use.
func (d *Dispatcher) enqueue(ctx context.Context, job *types.Job, identity string) {
	d.mu.Lock()
	q, ok := d.queues[identity]
	if !ok {
		q = make(chan *dispatchTask, 256)
		d.queues[identity] = q
		go d.drainQueue(ctx, identity, q)
	}
	d.mu.Unlock()

	select {
	case q <- &dispatchTask{job: job, identity: identity}:
	case <-ctx.Done():
	}
}

// drainQueue is the per-identity FIFO dispatch loop: concurrent across
// identities, strictly ordered within one.
func (d *Dispatcher) drainQueue(ctx context.Context, identity string, q chan *dispatchTask) {
	logger := log.WithIdentity(identity)
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-q:
			d.waitForGate(ctx, task)
			if err := d.send(ctx, task); err != nil {
				logger.Warn().Err(err).Str("job_id", task.job.JobID).Msg("dispatch failed")
			}
		}
	}
}

// waitForGate blocks until the async ordering gate permits dispatch of
// task: if the job's parent is non-async and a prior job for the same
// (identity, parent_id) hasn't gone terminal, wait for it. A job with
// ParentAsyncBypass set (callback jobs) skips the gate entirely.
func (d *Dispatcher) waitForGate(ctx context.Context, task *dispatchTask) {
	job := task.job
	if job.Async || job.Definition.ParentAsyncBypass {
		return
	}
	key := task.identity + "/" + job.ParentID

	d.mu.Lock()
	g, ok := d.gate[key]
	if !ok {
		g = &gateState{}
		d.gate[key] = g
	}
	prior := g.lastJob
	g.lastJob = job
	d.mu.Unlock()

	if prior == nil {
		return
	}
	waitUntilTerminal(ctx, prior)
}

func waitUntilTerminal(ctx context.Context, job *types.Job) {
	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()
	for {
		if job.Terminal() {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (d *Dispatcher) send(ctx context.Context, task *dispatchTask) error {
	job := task.job
	data, err := json.Marshal(job.Definition)
	if err != nil {
		return fmt.Errorf("coordinator: marshal definition: %w", err)
	}
	frame := &driver.Frame{
		MessageID: job.JobID,
		Channel:   driver.ChannelJob,
		Command:   job.Verb,
		Data:      data,
		Identity:  task.identity,
		JobSHA:    job.JobSHA,
	}
	job.TransmittedAt = time.Now()
	metrics.DispatchLatency.Observe(job.TransmittedAt.Sub(job.CreatedAt).Seconds())
	if err := driver.SendWithRetry(ctx, driver.DefaultRetryPolicy, string(driver.ChannelJob), func(ctx context.Context) error {
		return d.drv.Send(ctx, task.identity, frame)
	}); err != nil {
		metrics.NackedFramesTotal.WithLabelValues(string(driver.ChannelJob)).Inc()
		job.PerNode[types.Identity(task.identity)] = &types.NodeResult{
			Identity: types.Identity(task.identity),
			State:    types.JobNacked,
		}
		_ = d.persist(ctx, job)
		return err
	}
	_ = d.persist(ctx, job)
	return nil
}

// QueueDepths implements metrics.Source: the current backlog per
// identity's dispatch queue.
func (d *Dispatcher) QueueDepths() map[string]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]int, len(d.queues))
	for identity, q := range d.queues {
		out[identity] = len(q)
	}
	return out
}

func (d *Dispatcher) persist(ctx context.Context, job *types.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("coordinator: marshal job: %w", err)
	}
	return d.store.Put(ctx, jobTable, job.JobID, data)
}
