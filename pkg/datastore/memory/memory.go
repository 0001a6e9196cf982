// Package memory is the in-process datastore backend: a
// sync.RWMutex-guarded map of maps, grounded on the teacher's
// BoltStore CRUD shape but without an embedded database engine. State
// does not survive process restart.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/cuemby/directord/pkg/datastore"
)

func init() {
	datastore.Register("memory", func(url string) (datastore.Store, error) {
		return New(), nil
	})
}

// Store implements datastore.Store entirely in memory.
type Store struct {
	mu     sync.RWMutex
	tables map[string]map[string][]byte
}

// New returns an empty Store.
func New() *Store {
	return &Store{tables: make(map[string]map[string][]byte)}
}

func (s *Store) Get(_ context.Context, table, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[table]
	if !ok {
		return nil, false, nil
	}
	v, ok := t[key]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, true, nil
}

func (s *Store) Put(_ context.Context, table, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[table]
	if !ok {
		t = make(map[string][]byte)
		s.tables[table] = t
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	t[key] = cp
	return nil
}

func (s *Store) Delete(_ context.Context, table, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tables[table]; ok {
		delete(t, key)
	}
	return nil
}

func (s *Store) Scan(_ context.Context, table, prefix string) (datastore.Iterator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t := s.tables[table]
	keys := make([]string, 0, len(t))
	for k := range t {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	values := make([][]byte, len(keys))
	for i, k := range keys {
		values[i] = t[k]
	}

	return &iterator{keys: keys, values: values, idx: -1}, nil
}

func (s *Store) Close() error { return nil }

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
