// Package redis is Directord's optional remote-KV datastore backend,
// selected by an RFC-1738 "redis://" config URL exactly as spec.md
// names it. Tables become key prefixes ("table:key"); Scan uses SCAN
// cursor iteration rather than KEYS so a large table never blocks the
// server's event loop.
package redis

import (
	"context"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/cuemby/directord/pkg/datastore"
)

func init() {
	datastore.Register("redis", func(url string) (datastore.Store, error) {
		return New(url)
	})
}

// Store implements datastore.Store over a single Redis connection.
type Store struct {
	client *goredis.Client
}

// New parses url (e.g. "redis://:password@localhost:6379/0") and
// opens a client against it.
func New(url string) (*Store, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("datastore/redis: parse url: %w", err)
	}
	return &Store{client: goredis.NewClient(opts)}, nil
}

func composite(table, key string) string {
	return table + ":" + key
}

func (s *Store) Get(ctx context.Context, table, key string) ([]byte, bool, error) {
	v, err := s.client.Get(ctx, composite(table, key)).Bytes()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("datastore/redis: get %s/%s: %w", table, key, err)
	}
	return v, true, nil
}

func (s *Store) Put(ctx context.Context, table, key string, value []byte) error {
	if err := s.client.Set(ctx, composite(table, key), value, 0).Err(); err != nil {
		return fmt.Errorf("datastore/redis: set %s/%s: %w", table, key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, table, key string) error {
	if err := s.client.Del(ctx, composite(table, key)).Err(); err != nil {
		return fmt.Errorf("datastore/redis: del %s/%s: %w", table, key, err)
	}
	return nil
}

func (s *Store) Scan(ctx context.Context, table, prefix string) (datastore.Iterator, error) {
	matchPattern := composite(table, prefix) + "*"
	var keys []string
	var cursor uint64
	for {
		batch, next, err := s.client.Scan(ctx, cursor, matchPattern, 256).Result()
		if err != nil {
			return nil, fmt.Errorf("datastore/redis: scan %s: %w", matchPattern, err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}

	values := make([][]byte, 0, len(keys))
	plainKeys := make([]string, 0, len(keys))
	for _, k := range keys {
		v, err := s.client.Get(ctx, k).Bytes()
		if err != nil && err != goredis.Nil {
			return nil, fmt.Errorf("datastore/redis: get during scan %s: %w", k, err)
		}
		plainKeys = append(plainKeys, strings.TrimPrefix(k, table+":"))
		values = append(values, v)
	}

	return &iterator{keys: plainKeys, values: values, idx: -1}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

type iterator struct {
	keys   []string
	values [][]byte
	idx    int
}

func (it *iterator) Next() bool {
	it.idx++
	return it.idx < len(it.keys)
}

func (it *iterator) Key() string   { return it.keys[it.idx] }
func (it *iterator) Value() []byte { return it.values[it.idx] }
func (it *iterator) Err() error    { return nil }
func (it *iterator) Close() error  { return nil }
