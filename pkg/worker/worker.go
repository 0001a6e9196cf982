package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cuemby/directord/pkg/cache"
	"github.com/cuemby/directord/pkg/component"
	"github.com/cuemby/directord/pkg/driver"
	"github.com/cuemby/directord/pkg/log"
)

// Config holds worker configuration.
type Config struct {
	Identity          string
	Version           string
	HeartbeatInterval time.Duration
	// NoBlockPoolSize bounds the worker pool jobs with no_block=true
	// run on, separate from the single-consumer default executor loop
	// (spec.md §5, default 4).
	NoBlockPoolSize int
}

// Worker is a single client's in-process state: its driver connection,
// job ingest queue, executor loop and result emitter.
type Worker struct {
	cfg Config
	drv driver.Driver

	startedAt time.Time

	ingest   *ingestQueue
	results  *resultEmitter
	executor *executor

	stopCh chan struct{}
}

// New constructs a Worker over drv, using c for every component's
// local caches.
func New(drv driver.Driver, c *cache.Cache, cfg Config) *Worker {
	if cfg.NoBlockPoolSize <= 0 {
		cfg.NoBlockPoolSize = 4
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 60 * time.Second
	}

	results := newResultEmitter(drv, cfg.Identity)
	ingest := newIngestQueue()
	exec := newExecutor(cfg, c, results)

	return &Worker{
		cfg:       cfg,
		drv:       drv,
		startedAt: time.Now(),
		ingest:    ingest,
		results:   results,
		executor:  exec,
		stopCh:    make(chan struct{}),
	}
}

// Run starts the heartbeat emitter, job ingest loop and executor loop,
// blocking until ctx is cancelled or one of them fails.
func (w *Worker) Run(ctx context.Context) error {
	logger := log.WithIdentity(w.cfg.Identity)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return w.heartbeatLoop(gctx) })
	g.Go(func() error { return w.ingestLoop(gctx) })
	g.Go(func() error { return w.executor.run(gctx, w.ingest) })

	logger.Info().Msg("worker started")
	err := g.Wait()
	logger.Info().Msg("worker stopped")
	return err
}

// heartbeatLoop sends identity+version+uptime every HeartbeatInterval,
// jittered by ±10% to avoid thundering herd (spec.md §4.3).
func (w *Worker) heartbeatLoop(ctx context.Context) error {
	logger := log.WithIdentity(w.cfg.Identity)
	for {
		wait := jitter(w.cfg.HeartbeatInterval)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
			if err := w.sendHeartbeat(ctx); err != nil {
				logger.Warn().Err(err).Msg("heartbeat send failed")
			}
		}
	}
}

func (w *Worker) sendHeartbeat(ctx context.Context) error {
	payload := heartbeatPayload{
		Version:      w.cfg.Version,
		HostUptime:   time.Since(w.startedAt),
		AgentUptime:  time.Since(w.startedAt),
		Capabilities: component.Capabilities(),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("worker: marshal heartbeat: %w", err)
	}
	frame := &driver.Frame{Channel: driver.ChannelHeartbeat, Data: data, Identity: w.cfg.Identity}
	return w.drv.HeartbeatSend(ctx, w.cfg.Identity, frame)
}

// ingestLoop is the single consumer of the job channel: it resolves a
// job's restrict list, silently drops frames this identity isn't
// targeted by, and enqueues everything else onto the FIFO for the
// executor loop.
func (w *Worker) ingestLoop(ctx context.Context) error {
	logger := log.WithIdentity(w.cfg.Identity)
	for {
		_, f, err := w.drv.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("worker: ingest receive: %w", err)
		}
		if f.Channel != driver.ChannelJob {
			continue
		}
		if !w.ingest.admit(w.cfg.Identity, f) {
			continue // duplicate (job_id, identity), or restrict excludes us
		}
		logger.Debug().Str("job_id", f.MessageID).Str("verb", f.Command).Msg("job ingested")
		w.ingest.push(f)
	}
}

// heartbeatPayload is the wire shape sent on ChannelHeartbeat.
type heartbeatPayload struct {
	Version      string        `json:"version"`
	HostUptime   time.Duration `json:"host_uptime"`
	AgentUptime  time.Duration `json:"agent_uptime"`
	Capabilities []string      `json:"capabilities"`
}

// jitter returns d randomized by up to ±10%, to avoid a thundering
// herd of heartbeats when many clients start together.
func jitter(d time.Duration) time.Duration {
	spread := float64(d) * 0.1
	offset := (rand.Float64()*2 - 1) * spread
	return d + time.Duration(offset)
}
