package component

import (
	"context"
	"fmt"
	"os"

	"github.com/cuemby/directord/pkg/cache"
	"github.com/cuemby/directord/pkg/types"
)

func init() {
	Register(&cacheFileComponent{})
	Register(&cacheEvictComponent{})
}

// cacheFileComponent implements CACHEFILE: read a local file's
// contents into the client's argument cache under name, so later RUN
// templates can reference {{name}} without re-reading the file.
type cacheFileComponent struct{}

func (cacheFileComponent) Verb() string { return "CACHEFILE" }

func (cacheFileComponent) Args() ArgsSpec {
	return ArgsSpec{Positional: []string{"name", "path"}}
}

func (cacheFileComponent) Server(ctx context.Context, def *types.JobDefinition) error {
	if _, err := argKey(def.Fields, "name"); err != nil {
		return err
	}
	_, err := argKey(def.Fields, "path")
	return err
}

func (cacheFileComponent) Client(ctx context.Context, rt *Runtime, def *types.JobDefinition) (*types.NodeResult, error) {
	name, err := argKey(def.Fields, "name")
	if err != nil {
		return failResult(rt, err), nil
	}
	path, err := argKey(def.Fields, "path")
	if err != nil {
		return failResult(rt, err), nil
	}
	path = renderTemplate(ctx, rt, path)
	data, err := os.ReadFile(path)
	if err != nil {
		return failResult(rt, fmt.Errorf("component cachefile: read %s: %w", path, err)), nil
	}
	if err := rt.Cache.Put(ctx, cache.TagArgs, name, string(data)); err != nil {
		return failResult(rt, err), nil
	}
	return &types.NodeResult{
		Identity: types.Identity(rt.Identity),
		Success:  true,
		State:    types.JobSucceeded,
	}, nil
}

// cacheEvictComponent implements CACHEEVICT: remove entries from one
// cache partition, or every partition when tag is "all".
type cacheEvictComponent struct{}

func (cacheEvictComponent) Verb() string { return "CACHEEVICT" }

func (cacheEvictComponent) Args() ArgsSpec {
	return ArgsSpec{Positional: []string{"tag"}}
}

func (cacheEvictComponent) Server(ctx context.Context, def *types.JobDefinition) error {
	tag, err := argKey(def.Fields, "tag")
	if err != nil {
		return err
	}
	switch cache.Tag(tag) {
	case cache.TagJobs, cache.TagParents, cache.TagArgs, cache.TagEnvs, cache.TagQuery, cache.TagAll:
		return nil
	default:
		return fmt.Errorf("component cacheevict: unknown tag %q", tag)
	}
}

func (cacheEvictComponent) Client(ctx context.Context, rt *Runtime, def *types.JobDefinition) (*types.NodeResult, error) {
	tag, err := argKey(def.Fields, "tag")
	if err != nil {
		return failResult(rt, err), nil
	}
	if err := rt.Cache.Evict(ctx, cache.Tag(tag)); err != nil {
		return failResult(rt, err), nil
	}
	return &types.NodeResult{
		Identity: types.Identity(rt.Identity),
		Success:  true,
		State:    types.JobSucceeded,
	}, nil
}
