package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/directord/pkg/datastore"
	"github.com/cuemby/directord/pkg/driver"
	"github.com/cuemby/directord/pkg/log"
	"github.com/cuemby/directord/pkg/types"
)

const workerTable = "workers"

// heartbeatPayload is the wire shape a client's HeartbeatSend carries.
type heartbeatPayload struct {
	Version      string        `json:"version"`
	HostUptime   time.Duration `json:"host_uptime"`
	AgentUptime  time.Duration `json:"agent_uptime"`
	Capabilities []string      `json:"capabilities"`
}

// HeartbeatTracker upserts WorkerRecord on every heartbeat frame and
// periodically sweeps expired identities out of the alive set
// (spec.md §4.2).
type HeartbeatTracker struct {
	store    datastore.Store
	drv      driver.Driver
	liveness time.Duration // HEARTBEAT_INTERVAL * HEARTBEAT_LIVENESS

	mu      sync.RWMutex
	workers map[string]*types.WorkerRecord
	expired map[string]bool // identities already logged as evicted, to avoid repeat log spam
	logger  zerolog.Logger
}

// NewHeartbeatTracker constructs a tracker backed by store, reading
// heartbeat frames from drv. liveness is the interval after which a
// worker missing heartbeats is considered expired.
func NewHeartbeatTracker(store datastore.Store, drv driver.Driver, liveness time.Duration) *HeartbeatTracker {
	return &HeartbeatTracker{
		store:    store,
		drv:      drv,
		liveness: liveness,
		workers:  make(map[string]*types.WorkerRecord),
		expired:  make(map[string]bool),
		logger:   log.WithComponent("heartbeat"),
	}
}

// Run reads heartbeat frames until ctx is cancelled, upserting worker
// records, and sweeps expired records once per second.
func (h *HeartbeatTracker) Run(ctx context.Context) error {
	sweep := time.NewTicker(time.Second)
	defer sweep.Stop()

	readErrs := make(chan error, 1)
	go func() {
		for {
			identity, f, err := h.drv.HeartbeatRecv(ctx)
			if err != nil {
				readErrs <- err
				return
			}
			h.upsert(identity, f.Data)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErrs:
			if ctx.Err() != nil {
				return nil
			}
			h.logger.Warn().Err(err).Msg("heartbeat receive failed")
			return fmt.Errorf("coordinator: heartbeat receive: %w", err)
		case <-sweep.C:
			h.sweepExpired()
		}
	}
}

func (h *HeartbeatTracker) upsert(identity string, data []byte) {
	var payload heartbeatPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return
	}
	now := time.Now()

	h.mu.Lock()
	defer h.mu.Unlock()
	rec, ok := h.workers[identity]
	if !ok {
		rec = &types.WorkerRecord{Identity: types.Identity(identity)}
		h.workers[identity] = rec
	}
	rec.LastSeen = now
	rec.ExpiryDeadline = now.Add(h.liveness)
	rec.Version = payload.Version
	rec.HostUptime = payload.HostUptime
	rec.AgentUptime = payload.AgentUptime
	rec.Capabilities = payload.Capabilities

	h.persist(rec)
}

func (h *HeartbeatTracker) persist(rec *types.WorkerRecord) {
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	_ = h.store.Put(context.Background(), workerTable, string(rec.Identity), data)
}

// sweepExpired identifies identities whose deadline has just passed
// and logs the transition once; eviction from the alive set itself is
// implicit, since every dispatch and metrics read consults Alive().
func (h *HeartbeatTracker) sweepExpired() {
	now := time.Now()
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, rec := range h.workers {
		if rec.Alive(now) {
			delete(h.expired, id)
			continue
		}
		if !h.expired[id] {
			h.expired[id] = true
			h.logger.Warn().Str("identity", id).Msg("worker expired")
		}
	}
}

// Alive reports whether identity is currently considered alive.
func (h *HeartbeatTracker) Alive(identity string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	rec, ok := h.workers[identity]
	return ok && rec.Alive(time.Now())
}

// AliveIdentities returns every identity currently considered alive.
func (h *HeartbeatTracker) AliveIdentities() []string {
	now := time.Now()
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []string
	for id, rec := range h.workers {
		if rec.Alive(now) {
			out = append(out, id)
		}
	}
	return out
}

// List returns every retained worker record (alive or expired), for
// list_nodes.
func (h *HeartbeatTracker) List() []*types.WorkerRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*types.WorkerRecord, 0, len(h.workers))
	for _, rec := range h.workers {
		out = append(out, rec)
	}
	return out
}

// Purge removes every retained worker record (purge-nodes).
func (h *HeartbeatTracker) Purge() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.workers = make(map[string]*types.WorkerRecord)
}

// WorkerCounts implements metrics.Source.
func (h *HeartbeatTracker) WorkerCounts() map[types.NodeStatus]int {
	now := time.Now()
	h.mu.RLock()
	defer h.mu.RUnlock()
	counts := map[types.NodeStatus]int{types.NodeStatusAlive: 0, types.NodeStatusExpired: 0}
	for _, rec := range h.workers {
		if rec.Alive(now) {
			counts[types.NodeStatusAlive]++
		} else {
			counts[types.NodeStatusExpired]++
		}
	}
	return counts
}
