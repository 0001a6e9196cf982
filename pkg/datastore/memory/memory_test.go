package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGetDelete(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, ok, err := s.Get(ctx, "jobs", "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, "jobs", "job-1", []byte("hello")))
	v, ok, err := s.Get(ctx, "jobs", "job-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), v)

	require.NoError(t, s.Delete(ctx, "jobs", "job-1"))
	_, ok, err = s.Get(ctx, "jobs", "job-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestScanPrefix(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.Put(ctx, "args", "node1/foo", []byte("1")))
	require.NoError(t, s.Put(ctx, "args", "node1/bar", []byte("2")))
	require.NoError(t, s.Put(ctx, "args", "node2/baz", []byte("3")))

	it, err := s.Scan(ctx, "args", "node1/")
	require.NoError(t, err)

	var keys []string
	for it.Next() {
		keys = append(keys, it.Key())
	}
	require.NoError(t, it.Err())
	assert.ElementsMatch(t, []string{"node1/foo", "node1/bar"}, keys)
}

func TestGetReturnsCopyNotAlias(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Put(ctx, "t", "k", []byte("abc")))

	v, _, err := s.Get(ctx, "t", "k")
	require.NoError(t, err)
	v[0] = 'z'

	v2, _, err := s.Get(ctx, "t", "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), v2)
}
