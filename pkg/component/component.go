// Package component implements Directord's component ABI: the small
// set of verbs a job's Definition resolves against, plus the
// dynamically populated registry a client advertises in its
// heartbeat capability list.
package component

import (
	"context"
	"fmt"

	"github.com/cuemby/directord/pkg/cache"
	"github.com/cuemby/directord/pkg/types"
)

// ArgsSpec describes the fields a verb's orchestration entry accepts,
// used by pkg/orchestrate to bind tokenized/dict job specs before a
// Job is constructed.
type ArgsSpec struct {
	// Positional names a leading inline token by field name, in
	// order, before falling back to --flag[=value] parsing.
	Positional []string
	// Flags are the recognized --flag names beyond the positional set.
	Flags []string
	// Raw binds the entire inline string verbatim to the first
	// Positional field instead of POSIX-tokenizing it; RUN sets this
	// since its inline form is a shell command line, not a sequence of
	// discrete arguments.
	Raw bool
}

// Runtime is the client-side handle every component gets at execution
// time: its own identity (for the accumulative query cache) and the
// local TTL caches backing ARG/ENV/CACHEFILE/QUERY.
type Runtime struct {
	Identity string
	Cache    *cache.Cache
}

// Component is the ABI every built-in and loaded verb implements.
type Component interface {
	// Verb returns the component's name, e.g. "RUN".
	Verb() string
	// Args returns this component's argument contract.
	Args() ArgsSpec
	// Server validates and may enrich a job's definition before
	// dispatch; it never touches the network or the filesystem.
	Server(ctx context.Context, def *types.JobDefinition) error
	// Client executes the job locally and returns its result. The
	// returned NodeResult's Info may carry a "callback" key holding a
	// JSON-encoded {"verb": ..., "definition": ...} object; the
	// coordinator resubmits it as a new job with
	// parent_async_bypass=true once the result round-trips back.
	Client(ctx context.Context, rt *Runtime, def *types.JobDefinition) (*types.NodeResult, error)
}

var registry = map[string]Component{}

// Register adds a component to the registry, called from each
// built-in's init() or by a client loading a non-core component at
// startup.
func Register(c Component) {
	registry[c.Verb()] = c
}

// Lookup returns the component registered for verb.
func Lookup(verb string) (Component, error) {
	c, ok := registry[verb]
	if !ok {
		return nil, fmt.Errorf("component: no component registered for verb %q", verb)
	}
	return c, nil
}

// Capabilities lists every registered verb, used to populate a
// client's heartbeat capability list.
func Capabilities() []string {
	verbs := make([]string, 0, len(registry))
	for v := range registry {
		verbs = append(verbs, v)
	}
	return verbs
}
