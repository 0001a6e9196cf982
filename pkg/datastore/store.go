// Package datastore defines the pluggable key/value storage contract
// used by both the coordinator (worker records, job state) and the
// client (local caches). Every backend guarantees atomicity for a
// single key's Put/Delete; cross-key transactions are not part of the
// contract.
package datastore

import (
	"context"
	"fmt"
)

// Store is implemented by memory.Store, file.Store and the optional
// redis.Store.
type Store interface {
	Get(ctx context.Context, table, key string) ([]byte, bool, error)
	Put(ctx context.Context, table, key string, value []byte) error
	Delete(ctx context.Context, table, key string) error
	Scan(ctx context.Context, table, prefix string) (Iterator, error)
	Close() error
}

// Builder constructs a Store from the "datastore" config URL (e.g.
// "memory://", "file:///var/lib/directord/state",
// "redis://:password@host:6379/0"), following RFC-1738 for backends
// that accept connection parameters.
type Builder func(url string) (Store, error)

var registry = map[string]Builder{}

// Register associates a URL scheme with a Builder. Called from each
// backend's init().
func Register(scheme string, build Builder) {
	registry[scheme] = build
}

// Open dispatches url's scheme to the matching registered Builder.
func Open(scheme, url string) (Store, error) {
	build, ok := registry[scheme]
	if !ok {
		return nil, fmt.Errorf("datastore: no backend registered for scheme %q", scheme)
	}
	return build(url)
}

// Iterator walks the key/value pairs returned by Scan in no
// particular order; callers must call Close when done.
type Iterator interface {
	Next() bool
	Key() string
	Value() []byte
	Err() error
	Close() error
}
