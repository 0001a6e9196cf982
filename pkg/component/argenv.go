package component

import (
	"context"
	"fmt"
	"os"

	"github.com/cuemby/directord/pkg/cache"
	"github.com/cuemby/directord/pkg/types"
)

func init() {
	Register(&argComponent{})
	Register(&envComponent{})
}

// argComponent implements ARG: stash a value in the client's argument
// cache for later RUN/ADD/COPY template rendering.
type argComponent struct{}

func (argComponent) Verb() string { return "ARG" }

func (argComponent) Args() ArgsSpec {
	return ArgsSpec{Positional: []string{"name", "value"}}
}

func (argComponent) Server(ctx context.Context, def *types.JobDefinition) error {
	if _, err := argKey(def.Fields, "name"); err != nil {
		return err
	}
	if _, ok := def.Fields["value"]; !ok {
		return fmt.Errorf("component arg: missing required field %q", "value")
	}
	return nil
}

func (argComponent) Client(ctx context.Context, rt *Runtime, def *types.JobDefinition) (*types.NodeResult, error) {
	name, err := argKey(def.Fields, "name")
	if err != nil {
		return failResult(rt, err), nil
	}
	value := fmt.Sprintf("%v", def.Fields["value"])
	if err := rt.Cache.Put(ctx, cache.TagArgs, name, value); err != nil {
		return failResult(rt, err), nil
	}
	return &types.NodeResult{
		Identity: types.Identity(rt.Identity),
		Success:  true,
		State:    types.JobSucceeded,
		Stdout:   value,
	}, nil
}

// envComponent implements ENV: stash a value in the client's
// environment cache and export it to the worker process so subsequent
// RUN invocations inherit it.
type envComponent struct{}

func (envComponent) Verb() string { return "ENV" }

func (envComponent) Args() ArgsSpec {
	return ArgsSpec{Positional: []string{"name", "value"}}
}

func (envComponent) Server(ctx context.Context, def *types.JobDefinition) error {
	if _, err := argKey(def.Fields, "name"); err != nil {
		return err
	}
	if _, err := argKey(def.Fields, "value"); err != nil {
		return err
	}
	return nil
}

func (envComponent) Client(ctx context.Context, rt *Runtime, def *types.JobDefinition) (*types.NodeResult, error) {
	name, err := argKey(def.Fields, "name")
	if err != nil {
		return failResult(rt, err), nil
	}
	value, err := argKey(def.Fields, "value")
	if err != nil {
		return failResult(rt, err), nil
	}
	value = renderTemplate(ctx, rt, value)
	if err := rt.Cache.Put(ctx, cache.TagEnvs, name, value); err != nil {
		return failResult(rt, err), nil
	}
	if err := os.Setenv(name, value); err != nil {
		return failResult(rt, err), nil
	}
	return &types.NodeResult{
		Identity: types.Identity(rt.Identity),
		Success:  true,
		State:    types.JobSucceeded,
	}, nil
}

// failResult builds a failed NodeResult for a component-local error
// (malformed definition caught late, cache I/O failure), distinct from
// the process-level error a Client method itself returns.
func failResult(rt *Runtime, err error) *types.NodeResult {
	return &types.NodeResult{
		Identity: types.Identity(rt.Identity),
		Success:  false,
		State:    types.JobFailed,
		Stderr:   err.Error(),
	}
}
