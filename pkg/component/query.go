package component

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/directord/pkg/cache"
	"github.com/cuemby/directord/pkg/types"
)

func init() {
	Register(&queryComponent{})
	Register(&queryWaitComponent{})
	Register(&jobWaitComponent{})
}

// queryComponent implements QUERY: publish this identity's value for
// key into the accumulative query cache so other orchestration steps
// (via QUERY_WAIT, or an operator's poll) can read
// what every identity reported.
type queryComponent struct{}

func (queryComponent) Verb() string { return "QUERY" }

func (queryComponent) Args() ArgsSpec {
	return ArgsSpec{Positional: []string{"key", "value"}}
}

func (queryComponent) Server(ctx context.Context, def *types.JobDefinition) error {
	if _, err := argKey(def.Fields, "key"); err != nil {
		return err
	}
	_, err := argKey(def.Fields, "value")
	return err
}

func (queryComponent) Client(ctx context.Context, rt *Runtime, def *types.JobDefinition) (*types.NodeResult, error) {
	key, err := argKey(def.Fields, "key")
	if err != nil {
		return failResult(rt, err), nil
	}
	value, err := argKey(def.Fields, "value")
	if err != nil {
		return failResult(rt, err), nil
	}
	value = renderTemplate(ctx, rt, value)
	if err := rt.Cache.AppendQuery(ctx, key, rt.Identity, value); err != nil {
		return failResult(rt, err), nil
	}
	return &types.NodeResult{
		Identity: types.Identity(rt.Identity),
		Success:  true,
		State:    types.JobSucceeded,
		Stdout:   value,
	}, nil
}

// queryWaitComponent implements QUERY_WAIT: block until every identity
// named in "targets" has published a value for "key" via QUERY, or
// timeout_seconds elapses.
type queryWaitComponent struct{}

func (queryWaitComponent) Verb() string { return "QUERY_WAIT" }

func (queryWaitComponent) Args() ArgsSpec {
	return ArgsSpec{Positional: []string{"key"}, Flags: []string{"targets", "poll_interval_ms"}}
}

func (queryWaitComponent) Server(ctx context.Context, def *types.JobDefinition) error {
	_, err := argKey(def.Fields, "key")
	return err
}

func (queryWaitComponent) Client(ctx context.Context, rt *Runtime, def *types.JobDefinition) (*types.NodeResult, error) {
	key, err := argKey(def.Fields, "key")
	if err != nil {
		return failResult(rt, err), nil
	}
	targets := stringSlice(def.Fields["targets"])

	interval := 500 * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		values, err := rt.Cache.Query(ctx, key)
		if err != nil {
			return failResult(rt, err), nil
		}
		if allPresent(values, targets) {
			return &types.NodeResult{
				Identity: types.Identity(rt.Identity),
				Success:  true,
				State:    types.JobSucceeded,
				Info:     values,
			}, nil
		}
		select {
		case <-ctx.Done():
			return &types.NodeResult{
				Identity: types.Identity(rt.Identity),
				Success:  false,
				State:    types.JobTimedOut,
			}, nil
		case <-ticker.C:
		}
	}
}

// jobWaitComponent implements JOB_WAIT: block until job_sha has a
// cached outcome (written by the executor's jobs_cache step), or
// timeout_seconds elapses.
type jobWaitComponent struct{}

func (jobWaitComponent) Verb() string { return "JOB_WAIT" }

func (jobWaitComponent) Args() ArgsSpec {
	return ArgsSpec{Positional: []string{"job_sha"}}
}

func (jobWaitComponent) Server(ctx context.Context, def *types.JobDefinition) error {
	_, err := argKey(def.Fields, "job_sha")
	return err
}

func (jobWaitComponent) Client(ctx context.Context, rt *Runtime, def *types.JobDefinition) (*types.NodeResult, error) {
	sha, err := argKey(def.Fields, "job_sha")
	if err != nil {
		return failResult(rt, err), nil
	}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		var outcome map[string]any
		if ok, err := rt.Cache.Get(ctx, cache.TagJobs, sha, 0, &outcome); err != nil {
			return failResult(rt, err), nil
		} else if ok {
			return &types.NodeResult{
				Identity: types.Identity(rt.Identity),
				Success:  true,
				State:    types.JobSucceeded,
			}, nil
		}
		select {
		case <-ctx.Done():
			return &types.NodeResult{
				Identity: types.Identity(rt.Identity),
				Success:  false,
				State:    types.JobTimedOut,
			}, nil
		case <-ticker.C:
		}
	}
}

func stringSlice(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			out = append(out, fmt.Sprintf("%v", e))
		}
		return out
	default:
		return nil
	}
}

func allPresent(values map[string]string, targets []string) bool {
	if len(targets) == 0 {
		return len(values) > 0
	}
	for _, t := range targets {
		if _, ok := values[t]; !ok {
			return false
		}
	}
	return true
}
