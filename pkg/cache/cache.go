// Package cache implements the client-local TTL caches named in
// spec.md: jobs, parents, args, envs and the accumulative query cache,
// all backed by a datastore.Store so any backend (memory, file,
// redis) can serve them. TTL evaluation is lazy: an entry's
// freshness is checked on read, never swept in the background.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cuemby/directord/pkg/datastore"
)

// Tag names one of the cache partitions CACHEEVICT can address.
type Tag string

const (
	TagJobs    Tag = "jobs"
	TagParents Tag = "parents"
	TagArgs    Tag = "args"
	TagEnvs    Tag = "envs"
	TagQuery   Tag = "query"
	TagAll     Tag = "all"
)

var allTags = []Tag{TagJobs, TagParents, TagArgs, TagEnvs, TagQuery}

// entry is the envelope every cached value is wrapped in so Cache can
// evaluate cache_ttl lazily without a background sweep.
type entry struct {
	WrittenAt time.Time       `json:"written_at"`
	Value     json.RawMessage `json:"value"`
}

// Cache is the client's local cache store, one table per Tag.
type Cache struct {
	store      datastore.Store
	defaultTTL time.Duration
}

// New wraps store with Directord's default cache_ttl (spec.md §6,
// default 43200 seconds).
func New(store datastore.Store, defaultTTL time.Duration) *Cache {
	return &Cache{store: store, defaultTTL: defaultTTL}
}

// Put writes value under tag/key, stamped with the current time. TTL
// is evaluated on Get, not at write time, so Put never fails due to
// staleness.
func (c *Cache) Put(ctx context.Context, tag Tag, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: marshal %s/%s: %w", tag, key, err)
	}
	e := entry{WrittenAt: time.Now(), Value: raw}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("cache: marshal entry %s/%s: %w", tag, key, err)
	}
	return c.store.Put(ctx, string(tag), key, data)
}

// Get returns value and true if tag/key exists and has not expired
// under ttl (or the Cache's default if ttl is zero). An expired entry
// is reported as a miss but left in the store.
func (c *Cache) Get(ctx context.Context, tag Tag, key string, ttl time.Duration, out any) (bool, error) {
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	data, ok, err := c.store.Get(ctx, string(tag), key)
	if err != nil {
		return false, fmt.Errorf("cache: get %s/%s: %w", tag, key, err)
	}
	if !ok {
		return false, nil
	}
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return false, fmt.Errorf("cache: unmarshal entry %s/%s: %w", tag, key, err)
	}
	if time.Since(e.WrittenAt) > ttl {
		return false, nil
	}
	if out != nil {
		if err := json.Unmarshal(e.Value, out); err != nil {
			return false, fmt.Errorf("cache: unmarshal value %s/%s: %w", tag, key, err)
		}
	}
	return true, nil
}

// AppendQuery implements the accumulative query cache: query[key][identity] = value.
func (c *Cache) AppendQuery(ctx context.Context, key, identity string, value string) error {
	table := string(TagQuery)
	data, ok, err := c.store.Get(ctx, table, key)
	if err != nil {
		return fmt.Errorf("cache: read query/%s: %w", key, err)
	}
	var e entry
	values := map[string]string{}
	if ok {
		if err := json.Unmarshal(data, &e); err != nil {
			return fmt.Errorf("cache: unmarshal query entry %s: %w", key, err)
		}
		if err := json.Unmarshal(e.Value, &values); err != nil {
			return fmt.Errorf("cache: unmarshal query values %s: %w", key, err)
		}
	}
	values[identity] = value

	raw, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("cache: marshal query values %s: %w", key, err)
	}
	e = entry{WrittenAt: time.Now(), Value: raw}
	out, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("cache: marshal query entry %s: %w", key, err)
	}
	return c.store.Put(ctx, table, key, out)
}

// Query returns the accumulated per-identity values for key.
func (c *Cache) Query(ctx context.Context, key string) (map[string]string, error) {
	data, ok, err := c.store.Get(ctx, string(TagQuery), key)
	if err != nil {
		return nil, fmt.Errorf("cache: read query/%s: %w", key, err)
	}
	if !ok {
		return map[string]string{}, nil
	}
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("cache: unmarshal query entry %s: %w", key, err)
	}
	values := map[string]string{}
	if err := json.Unmarshal(e.Value, &values); err != nil {
		return nil, fmt.Errorf("cache: unmarshal query values %s: %w", key, err)
	}
	return values, nil
}

// Evict implements CACHEEVICT: tag removes one partition's entries,
// TagAll removes every entry across every tag.
func (c *Cache) Evict(ctx context.Context, tag Tag) error {
	tags := []Tag{tag}
	if tag == TagAll {
		tags = allTags
	}
	for _, t := range tags {
		it, err := c.store.Scan(ctx, string(t), "")
		if err != nil {
			return fmt.Errorf("cache: scan %s: %w", t, err)
		}
		var keys []string
		for it.Next() {
			keys = append(keys, it.Key())
		}
		if err := it.Err(); err != nil {
			return fmt.Errorf("cache: scan %s: %w", t, err)
		}
		_ = it.Close()
		for _, k := range keys {
			if err := c.store.Delete(ctx, string(t), k); err != nil {
				return fmt.Errorf("cache: delete %s/%s: %w", t, k, err)
			}
		}
	}
	return nil
}
