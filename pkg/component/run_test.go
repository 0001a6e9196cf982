package component

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/directord/pkg/cache"
	"github.com/cuemby/directord/pkg/datastore/memory"
	"github.com/cuemby/directord/pkg/types"
)

func newRuntime() *Runtime {
	return &Runtime{
		Identity: "nodeA",
		Cache:    cache.New(memory.New(), time.Hour),
	}
}

func TestRunEchoSucceeds(t *testing.T) {
	rt := newRuntime()
	def := &types.JobDefinition{Fields: map[string]any{"command": "echo hello world"}}

	result, err := runComponent{}.Client(context.Background(), rt, def)

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, types.JobSucceeded, result.State)
	assert.Equal(t, "hello world\n", result.Stdout)
	assert.Greater(t, result.ExecutionSeconds, 0.0)
}

func TestRunTimesOutAndKillsChild(t *testing.T) {
	rt := newRuntime()
	def := &types.JobDefinition{Fields: map[string]any{"command": "sleep 10"}}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	result, err := runComponent{}.Client(ctx, rt, def)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, types.JobTimedOut, result.State)
	// The grace period forcefully kills the child well before sleep 10
	// would return on its own.
	assert.Less(t, elapsed, 6*time.Second)
}

func TestRunRendersArgTemplate(t *testing.T) {
	rt := newRuntime()
	require.NoError(t, rt.Cache.Put(context.Background(), cache.TagArgs, "who", "world"))
	def := &types.JobDefinition{Fields: map[string]any{"command": "echo {{who}}"}}

	result, err := runComponent{}.Client(context.Background(), rt, def)

	require.NoError(t, err)
	assert.Equal(t, "world\n", result.Stdout)
}

func TestRunServerRejectsEmptyCommand(t *testing.T) {
	def := &types.JobDefinition{Fields: map[string]any{"command": "   "}}
	err := runComponent{}.Server(context.Background(), def)
	assert.Error(t, err)
}

func TestRunHonorsWorkdir(t *testing.T) {
	rt := newRuntime()
	require.NoError(t, rt.Cache.Put(context.Background(), cache.TagArgs, workdirCacheKey, "/tmp"))
	def := &types.JobDefinition{Fields: map[string]any{"command": "pwd"}}

	result, err := runComponent{}.Client(context.Background(), rt, def)

	require.NoError(t, err)
	assert.Contains(t, result.Stdout, "/tmp")
}
