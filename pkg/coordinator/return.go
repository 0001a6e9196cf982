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

// returnPayload is the wire shape a client's result emitter sends on
// ChannelReturn (spec.md §4.3 "Result emitter").
type returnPayload struct {
	JobID            string  `json:"job_id"`
	Identity         string  `json:"identity"`
	Stdout           string  `json:"stdout"`
	Stderr           string  `json:"stderr"`
	Info             string  `json:"info"`
	Success          bool    `json:"success"`
	ExecutionSeconds float64 `json:"execution_seconds"`
	TimedOut         bool    `json:"timed_out"`
}

// ReturnManager merges return frames into job state, keyed by
// (job_id, identity), enforcing "upgrade PENDING->terminal but never
// downgrade terminal->pending" (spec.md §4.2).
type ReturnManager struct {
	store datastore.Store
	drv   driver.Driver

	mu   sync.Mutex
	jobs map[string]*types.Job // job_id -> in-flight job, populated by Track

	// onCallback resubmits a component-generated callback job spec
	// (spec.md §4.3 "components may spawn callback jobs"), set by the
	// owning Coordinator once it exists.
	onCallback func(ctx context.Context, verb string, def types.JobDefinition) error
}

// callbackJobSpec is the shape a component's NodeResult.Info["callback"]
// entry carries: a full verb + definition, since JobDefinition alone
// doesn't name which component should run it.
type callbackJobSpec struct {
	Verb       string             `json:"verb"`
	Definition types.JobDefinition `json:"definition"`
}

// NewReturnManager constructs a ReturnManager over store, reading
// return frames from drv.
func NewReturnManager(store datastore.Store, drv driver.Driver) *ReturnManager {
	return &ReturnManager{
		store: store,
		drv:   drv,
		jobs:  make(map[string]*types.Job),
	}
}

// OnCallback registers fn to be invoked whenever a return frame
// carries a callback job spec.
func (r *ReturnManager) OnCallback(fn func(ctx context.Context, verb string, def types.JobDefinition) error) {
	r.onCallback = fn
}

// Track registers job so its PerNode results can be merged as return
// frames arrive; Coordinator.Submit calls this before handing the job
// to the dispatcher.
func (r *ReturnManager) Track(job *types.Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.JobID] = job
}

// Run reads return frames until ctx is cancelled, merging each into
// its job's per-node results.
func (r *ReturnManager) Run(ctx context.Context) error {
	logger := log.WithComponent("return")
	for {
		identity, f, err := r.drv.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("coordinator: return receive: %w", err)
		}
		if f.Channel != driver.ChannelReturn {
			continue
		}
		if err := r.merge(ctx, identity, f); err != nil {
			logger.Warn().Err(err).Str("job_id", f.MessageID).Msg("merge return frame failed")
		}
	}
}

func (r *ReturnManager) merge(ctx context.Context, identity string, f *driver.Frame) error {
	var payload returnPayload
	if err := json.Unmarshal(f.Data, &payload); err != nil {
		return fmt.Errorf("unmarshal return payload: %w", err)
	}

	r.mu.Lock()
	job, ok := r.jobs[f.MessageID]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("return frame for unknown job %s", f.MessageID)
	}

	now := time.Now()
	state := types.JobSucceeded
	switch {
	case payload.TimedOut:
		state = types.JobTimedOut
	case !payload.Success:
		state = types.JobFailed
	}

	result := &types.NodeResult{
		Identity:         types.Identity(identity),
		State:            state,
		Stdout:           payload.Stdout,
		Stderr:           payload.Stderr,
		Success:          payload.Success,
		ExecutionSeconds: payload.ExecutionSeconds,
	}
	var info map[string]string
	if payload.Info != "" {
		if err := json.Unmarshal([]byte(payload.Info), &info); err == nil {
			result.Info = info
		} else {
			info = nil
			result.Info = map[string]string{"info": payload.Info}
		}
	}
	if !job.TransmittedAt.IsZero() {
		result.RoundtripSeconds = now.Sub(job.TransmittedAt).Seconds()
		metrics.RoundtripDuration.WithLabelValues(job.Verb).Observe(result.RoundtripSeconds)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, had := job.PerNode[types.Identity(identity)]
	if had && existing.State.Terminal() && result.State != existing.State {
		// A terminal result is only replaced by a frame with the same
		// outcome: it never moves back toward pending or flips to a
		// different terminal state.
		return nil
	}
	job.PerNode[types.Identity(identity)] = result
	if job.ReturnedAt.Before(now) {
		job.ReturnedAt = now
	}
	if job.Terminal() {
		job.State = aggregateState(job)
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := r.store.Put(ctx, jobTable, job.JobID, data); err != nil {
		return err
	}

	if r.onCallback != nil {
		if raw, ok := info["callback"]; ok && raw != "" {
			var callback callbackJobSpec
			if err := json.Unmarshal([]byte(raw), &callback); err == nil && callback.Verb != "" {
				callback.Definition.ParentAsyncBypass = true
				if err := r.onCallback(ctx, callback.Verb, callback.Definition); err != nil {
					return fmt.Errorf("resubmit callback job: %w", err)
				}
			}
		}
	}
	return nil
}

// aggregateState rolls every per-node result into one job-level state:
// SUCCEEDED only if every node succeeded, otherwise the state of the
// first non-succeeding node encountered.
func aggregateState(job *types.Job) types.JobState {
	state := types.JobSucceeded
	for _, id := range job.Targets {
		res, ok := job.PerNode[id]
		if !ok {
			continue
		}
		if !res.Success {
			return res.State
		}
	}
	return state
}

// JobCounts implements metrics.Source.
func (r *ReturnManager) JobCounts() map[types.JobState]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := map[types.JobState]int{}
	for _, job := range r.jobs {
		counts[job.State]++
	}
	return counts
}
