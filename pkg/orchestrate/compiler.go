// Package orchestrate compiles the orchestration DSL (a YAML list of
// named job sequences) into the flat, fully-specified []*types.Job
// stream the coordinator dispatches. It performs submission-time
// variable interpolation over string fields using the submitter's
// known overrides; client-side cache interpolation happens later, in
// pkg/component, on the client itself.
package orchestrate

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/directord/pkg/component"
	"github.com/cuemby/directord/pkg/types"
)

// rawOrchestration mirrors one YAML list item before its jobs are
// bound to their components' argument contracts.
type rawOrchestration struct {
	Name    string           `yaml:"name"`
	Targets []string         `yaml:"targets"`
	Async   bool             `yaml:"async"`
	Jobs    []map[string]any `yaml:"jobs"`
}

// defaultTimeoutSeconds is used when a job spec doesn't set its own
// (spec.md §4.2, "per-job timeout_seconds (default 600)").
const defaultTimeoutSeconds = 600

// Compile parses raw orchestration file bytes and returns the ordered
// jobs it describes, one per (job spec) entry, tagged with a shared
// parent_id per orchestration and that orchestration's async flag.
// overrides are CLI-provided template variables substituted into
// string fields before binding.
func Compile(raw []byte, overrides map[string]string) ([]*types.Job, error) {
	var orchestrations []rawOrchestration
	if err := yaml.Unmarshal(raw, &orchestrations); err != nil {
		return nil, fmt.Errorf("orchestrate: parse: %w", err)
	}

	var jobs []*types.Job
	for _, o := range orchestrations {
		parentID := uuid.NewString()
		for _, entry := range o.Jobs {
			verb, value, err := singleKey(entry)
			if err != nil {
				return nil, fmt.Errorf("orchestrate: %s: %w", o.Name, err)
			}
			verb = strings.ToUpper(verb)

			c, err := component.Lookup(verb)
			if err != nil {
				return nil, fmt.Errorf("orchestrate: %s: %w", o.Name, err)
			}

			def, err := bindJobSpec(c.Args(), value, overrides)
			if err != nil {
				return nil, fmt.Errorf("orchestrate: %s/%s: %w", o.Name, verb, err)
			}
			if def.TimeoutSeconds == 0 {
				def.TimeoutSeconds = defaultTimeoutSeconds
			}
			def.Targets = o.Targets

			if err := c.Server(context.Background(), def); err != nil {
				return nil, fmt.Errorf("orchestrate: %s/%s: %w", o.Name, verb, err)
			}

			sha, err := JobSHA(verb, def)
			if err != nil {
				return nil, fmt.Errorf("orchestrate: %s/%s: %w", o.Name, verb, err)
			}

			job := types.NewJob(uuid.NewString(), parentID, verb, *def)
			job.JobSHA = sha
			job.Async = o.Async
			jobs = append(jobs, job)
		}
	}
	return jobs, nil
}

// singleKey extracts the one verb/value pair a job entry must contain.
func singleKey(entry map[string]any) (string, any, error) {
	if len(entry) != 1 {
		return "", nil, fmt.Errorf("job entry must have exactly one verb key, got %d", len(entry))
	}
	for k, v := range entry {
		return k, v, nil
	}
	panic("unreachable")
}
