// Package file is the on-disk datastore backend: one directory per
// table, one JSON-wrapped file per key, written atomically via a
// temp-file-then-rename so a crash mid-write never leaves a key
// partially written. Grounded on the teacher's storage.BoltStore
// method-per-entity layout, translated from bbolt buckets to plain
// directories because the persisted state layout spec.md names is a
// plain-file format bbolt's own page file cannot produce.
package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/cuemby/directord/pkg/datastore"
)

func init() {
	datastore.Register("file", func(url string) (datastore.Store, error) {
		return New(strings.TrimPrefix(url, "file://"))
	})
}

// Store persists each table as a subdirectory of root and each key as
// one file inside it, named by a reversible escape of the key.
type Store struct {
	root string
	mu   sync.Mutex
}

// New opens (creating if necessary) a file-backed store rooted at root.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("datastore/file: mkdir %s: %w", root, err)
	}
	return &Store{root: root}, nil
}

func (s *Store) tableDir(table string) string {
	return filepath.Join(s.root, table)
}

// keyFile escapes key into a filesystem-safe name: every byte outside
// [a-zA-Z0-9._-] is percent-hex-encoded, so arbitrary keys (including
// ones containing '/') round-trip through a single flat file name.
func keyFile(key string) string {
	var b strings.Builder
	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '.' || c == '_' || c == '-':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02x", c)
		}
	}
	return b.String() + ".json"
}

func (s *Store) Get(_ context.Context, table, key string) ([]byte, bool, error) {
	path := filepath.Join(s.tableDir(table), keyFile(key))
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("datastore/file: read %s: %w", path, err)
	}
	return data, true, nil
}

func (s *Store) Put(_ context.Context, table, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.tableDir(table)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("datastore/file: mkdir %s: %w", dir, err)
	}

	final := filepath.Join(dir, keyFile(key))
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("datastore/file: create temp in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("datastore/file: write temp %s: %w", tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("datastore/file: sync temp %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("datastore/file: close temp %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, final); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("datastore/file: rename %s -> %s: %w", tmpPath, final, err)
	}
	return nil
}

func (s *Store) Delete(_ context.Context, table, key string) error {
	path := filepath.Join(s.tableDir(table), keyFile(key))
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("datastore/file: remove %s: %w", path, err)
	}
	return nil
}

func (s *Store) Scan(_ context.Context, table, prefix string) (datastore.Iterator, error) {
	dir := s.tableDir(table)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return &iterator{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("datastore/file: readdir %s: %w", dir, err)
	}

	var keys []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		key := unescapeKeyFile(e.Name())
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	values := make([][]byte, 0, len(keys))
	for _, k := range keys {
		data, err := os.ReadFile(filepath.Join(dir, keyFile(k)))
		if err != nil {
			return nil, fmt.Errorf("datastore/file: read %s: %w", k, err)
		}
		values = append(values, data)
	}

	return &iterator{keys: keys, values: values, idx: -1}, nil
}

func unescapeKeyFile(name string) string {
	name = strings.TrimSuffix(name, ".json")
	var b strings.Builder
	for i := 0; i < len(name); i++ {
		if name[i] == '%' && i+2 < len(name) {
			v, err := strconv.ParseInt(name[i+1:i+3], 16, 16)
			if err == nil {
				b.WriteByte(byte(v))
				i += 2
				continue
			}
		}
		b.WriteByte(name[i])
	}
	return b.String()
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
