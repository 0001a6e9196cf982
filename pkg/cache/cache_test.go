package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/directord/pkg/datastore/memory"
)

type outcome struct {
	Success bool   `json:"success"`
	Stdout  string `json:"stdout"`
}

func TestPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := New(memory.New(), time.Hour)

	require.NoError(t, c.Put(ctx, TagJobs, "sha-1", outcome{Success: true, Stdout: "ok"}))

	var got outcome
	hit, err := c.Get(ctx, TagJobs, "sha-1", 0, &got)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, outcome{Success: true, Stdout: "ok"}, got)
}

func TestGetMissOnUnknownKey(t *testing.T) {
	ctx := context.Background()
	c := New(memory.New(), time.Hour)

	hit, err := c.Get(ctx, TagJobs, "missing", 0, nil)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestTTLExpiryIsLazy(t *testing.T) {
	ctx := context.Background()
	c := New(memory.New(), time.Hour)

	require.NoError(t, c.Put(ctx, TagArgs, "k", "v"))

	hit, err := c.Get(ctx, TagArgs, "k", time.Nanosecond, nil)
	require.NoError(t, err)
	assert.False(t, hit, "entry older than a nanosecond TTL must report a miss")

	hit, err = c.Get(ctx, TagArgs, "k", time.Hour, nil)
	require.NoError(t, err)
	assert.True(t, hit, "same entry is a hit under a generous TTL")
}

func TestAccumulativeQueryCache(t *testing.T) {
	ctx := context.Background()
	c := New(memory.New(), time.Hour)

	require.NoError(t, c.AppendQuery(ctx, "uptime", "node1", "3d"))
	require.NoError(t, c.AppendQuery(ctx, "uptime", "node2", "1d"))

	values, err := c.Query(ctx, "uptime")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"node1": "3d", "node2": "1d"}, values)
}

func TestCacheEvictByTag(t *testing.T) {
	ctx := context.Background()
	c := New(memory.New(), time.Hour)

	require.NoError(t, c.Put(ctx, TagJobs, "a", "1"))
	require.NoError(t, c.Put(ctx, TagArgs, "b", "2"))

	require.NoError(t, c.Evict(ctx, TagJobs))

	hit, err := c.Get(ctx, TagJobs, "a", 0, nil)
	require.NoError(t, err)
	assert.False(t, hit)

	hit, err = c.Get(ctx, TagArgs, "b", 0, nil)
	require.NoError(t, err)
	assert.True(t, hit, "evicting jobs must not touch args")
}

func TestCacheEvictAllClearsEveryTag(t *testing.T) {
	ctx := context.Background()
	c := New(memory.New(), time.Hour)

	require.NoError(t, c.Put(ctx, TagJobs, "a", "1"))
	require.NoError(t, c.Put(ctx, TagArgs, "b", "2"))
	require.NoError(t, c.Put(ctx, TagEnvs, "c", "3"))
	require.NoError(t, c.AppendQuery(ctx, "q", "node1", "v"))

	require.NoError(t, c.Evict(ctx, TagAll))

	for tag, key := range map[Tag]string{TagJobs: "a", TagArgs: "b", TagEnvs: "c"} {
		hit, err := c.Get(ctx, tag, key, 0, nil)
		require.NoError(t, err)
		assert.False(t, hit)
	}
	values, err := c.Query(ctx, "q")
	require.NoError(t, err)
	assert.Empty(t, values)
}
