package component

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cuemby/directord/pkg/cache"
	"github.com/cuemby/directord/pkg/types"
)

// workdirCacheKey is a reserved argument-cache entry WORKDIR writes
// and RUN reads; it can't collide with a user ARG name since DSL
// identifiers never contain NUL.
const workdirCacheKey = "\x00workdir"

func init() {
	Register(&addCopyComponent{verb: "ADD"})
	Register(&addCopyComponent{verb: "COPY"})
	Register(&workdirComponent{})
}

// addCopyComponent implements ADD and COPY: copy a local file from src
// to dest, optionally running it through template rendering first
// (blueprint=true).
type addCopyComponent struct{ verb string }

func (c *addCopyComponent) Verb() string { return c.verb }

func (c *addCopyComponent) Args() ArgsSpec {
	return ArgsSpec{Positional: []string{"src", "dest"}, Flags: []string{"blueprint", "mode"}}
}

func (c *addCopyComponent) Server(ctx context.Context, def *types.JobDefinition) error {
	if _, err := argKey(def.Fields, "src"); err != nil {
		return err
	}
	if _, err := argKey(def.Fields, "dest"); err != nil {
		return err
	}
	return nil
}

func (c *addCopyComponent) Client(ctx context.Context, rt *Runtime, def *types.JobDefinition) (*types.NodeResult, error) {
	src, err := argKey(def.Fields, "src")
	if err != nil {
		return failResult(rt, err), nil
	}
	dest, err := argKey(def.Fields, "dest")
	if err != nil {
		return failResult(rt, err), nil
	}
	blueprint, _ := def.Fields["blueprint"].(bool)

	data, err := os.ReadFile(src)
	if err != nil {
		return failResult(rt, fmt.Errorf("component %s: read %s: %w", c.verb, src, err)), nil
	}
	if blueprint {
		data = []byte(renderTemplate(ctx, rt, string(data)))
	}

	mode := os.FileMode(0644)
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return failResult(rt, fmt.Errorf("component %s: mkdir %s: %w", c.verb, filepath.Dir(dest), err)), nil
	}
	if err := writeFileAtomic(dest, data, mode); err != nil {
		return failResult(rt, fmt.Errorf("component %s: write %s: %w", c.verb, dest, err)), nil
	}
	return &types.NodeResult{
		Identity: types.Identity(rt.Identity),
		Success:  true,
		State:    types.JobSucceeded,
		Stdout:   dest,
	}, nil
}

func writeFileAtomic(dest string, data []byte, mode os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".directord-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), mode); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}

// workdirComponent implements WORKDIR: set the working directory
// subsequent RUN invocations on this client execute in.
type workdirComponent struct{}

func (workdirComponent) Verb() string { return "WORKDIR" }

func (workdirComponent) Args() ArgsSpec {
	return ArgsSpec{Positional: []string{"path"}}
}

func (workdirComponent) Server(ctx context.Context, def *types.JobDefinition) error {
	_, err := argKey(def.Fields, "path")
	return err
}

func (workdirComponent) Client(ctx context.Context, rt *Runtime, def *types.JobDefinition) (*types.NodeResult, error) {
	path, err := argKey(def.Fields, "path")
	if err != nil {
		return failResult(rt, err), nil
	}
	path = renderTemplate(ctx, rt, path)
	if info, err := os.Stat(path); err != nil || !info.IsDir() {
		return failResult(rt, fmt.Errorf("component workdir: %s is not a directory", path)), nil
	}
	if err := rt.Cache.Put(ctx, cache.TagArgs, workdirCacheKey, path); err != nil {
		return failResult(rt, err), nil
	}
	return &types.NodeResult{
		Identity: types.Identity(rt.Identity),
		Success:  true,
		State:    types.JobSucceeded,
	}, nil
}
