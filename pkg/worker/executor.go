package worker

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/cuemby/directord/pkg/cache"
	"github.com/cuemby/directord/pkg/component"
	"github.com/cuemby/directord/pkg/driver"
	"github.com/cuemby/directord/pkg/log"
	"github.com/cuemby/directord/pkg/metrics"
	"github.com/cuemby/directord/pkg/types"
)

// jobOutcome is what jobs_cache stores per job_sha, so a repeated
// run_once submission can report the cached outcome without
// re-invoking the component (spec.md §4.3 step 3).
type jobOutcome struct {
	Success          bool    `json:"success"`
	Stdout           string  `json:"stdout"`
	Stderr           string  `json:"stderr"`
	ExecutionSeconds float64 `json:"execution_seconds"`
}

// executor is the single cooperative consumer over the ingest FIFO;
// jobs with no_block=true instead run on a bounded semaphore pool so
// they can't stall the ordered path (spec.md §5).
type executor struct {
	cfg     Config
	cache   *cache.Cache
	results *resultEmitter

	pool chan struct{}
}

func newExecutor(cfg Config, c *cache.Cache, results *resultEmitter) *executor {
	return &executor{
		cfg:     cfg,
		cache:   c,
		results: results,
		pool:    make(chan struct{}, cfg.NoBlockPoolSize),
	}
}

func (e *executor) run(ctx context.Context, ingest *ingestQueue) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case f := <-ingest.queue:
			f := f
			if noBlock(f) {
				e.pool <- struct{}{}
				go func() {
					defer func() { <-e.pool }()
					e.execute(ctx, f)
				}()
				continue
			}
			e.execute(ctx, f)
		}
	}
}

func noBlock(f *driver.Frame) bool {
	var probe struct {
		NoBlock bool `json:"NoBlock"`
	}
	_ = json.Unmarshal(f.Data, &probe)
	return probe.NoBlock
}

// execute runs the five executor steps spec.md §4.3 names for one job
// frame: component lookup, template rendering (delegated to the
// component's Client), cache-policy short circuit, timeout
// enforcement (delegated to the component), stdout_arg storage and
// the unconditional jobs_cache write.
func (e *executor) execute(ctx context.Context, f *driver.Frame) {
	logger := log.WithIdentity(e.cfg.Identity).With().Str("job_id", f.MessageID).Str("verb", f.Command).Logger()

	var def types.JobDefinition
	if err := json.Unmarshal(f.Data, &def); err != nil {
		logger.Warn().Err(err).Msg("unmarshal job definition")
		return
	}

	comp, err := component.Lookup(f.Command)
	if err != nil {
		logger.Warn().Err(err).Msg("unknown verb")
		e.results.send(ctx, f.MessageID, &types.NodeResult{State: types.JobFailed, Stderr: err.Error()})
		return
	}

	if !def.SkipCache && def.RunOnce {
		if cached, ok := e.cachedOutcome(ctx, f.JobSHA); ok && cached.Success {
			logger.Debug().Msg("job_sha cache hit, skipping execution")
			e.results.send(ctx, f.MessageID, &types.NodeResult{
				State:            types.JobSucceeded,
				Success:          true,
				Stdout:           cached.Stdout,
				Stderr:           cached.Stderr,
				ExecutionSeconds: 0,
			})
			return
		}
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if def.TimeoutSeconds > 0 {
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(def.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	rt := &component.Runtime{Identity: e.cfg.Identity, Cache: e.cache}
	result, err := comp.Client(runCtx, rt, &def)
	if err != nil {
		logger.Warn().Err(err).Msg("component execution error")
		result = &types.NodeResult{State: types.JobFailed, Stderr: err.Error()}
	}
	metrics.ExecutionDuration.WithLabelValues(f.Command).Observe(result.ExecutionSeconds)

	if result.Success && def.StdoutArg != "" {
		if err := e.cache.Put(ctx, cache.TagArgs, def.StdoutArg, strings.TrimRight(result.Stdout, " \t\n\r\v\f")); err != nil {
			logger.Warn().Err(err).Msg("store stdout_arg")
		}
	}

	outcome := jobOutcome{Success: result.Success, Stdout: result.Stdout, Stderr: result.Stderr, ExecutionSeconds: result.ExecutionSeconds}
	if err := e.cache.Put(ctx, cache.TagJobs, f.JobSHA, outcome); err != nil {
		logger.Warn().Err(err).Msg("write jobs_cache")
	}

	// A component may return a callback job spec in result.Info["callback"];
	// it rides back to the coordinator inside the normal return frame,
	// where the return manager resubmits it with parent_async_bypass=true
	// (spec.md §4.3 "components may spawn callback jobs").
	e.results.send(ctx, f.MessageID, result)
}

func (e *executor) cachedOutcome(ctx context.Context, jobSHA string) (jobOutcome, bool) {
	var out jobOutcome
	ok, err := e.cache.Get(ctx, cache.TagJobs, jobSHA, 0, &out)
	if err != nil {
		return jobOutcome{}, false
	}
	return out, ok
}

