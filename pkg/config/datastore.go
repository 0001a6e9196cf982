package config

import (
	"strings"

	"github.com/cuemby/directord/pkg/datastore"
)

// OpenDatastore dispatches the configured "datastore" URL (e.g.
// "memory", "file:///var/lib/directord/state",
// "redis://:password@host:6379/0") to its registered backend. A bare
// scheme with no "://" is used as the scheme and is also passed
// through unchanged as the URL (spec.md §6 lists "memory" without a
// path).
func OpenDatastore(url string) (datastore.Store, error) {
	scheme := url
	if idx := strings.Index(url, "://"); idx >= 0 {
		scheme = url[:idx]
	}
	return datastore.Open(scheme, url)
}
