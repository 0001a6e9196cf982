// Package types holds the shared data model for Directord: identities,
// jobs, node results and the orchestration DSL's in-memory form.
package types

import (
	"time"
)

// Identity is the stable string name a client advertises to the server,
// defaulting to the client's host name.
type Identity string

// NodeStatus represents whether a worker record is currently considered
// alive by the heartbeat tracker.
type NodeStatus string

const (
	NodeStatusAlive   NodeStatus = "alive"
	NodeStatusExpired NodeStatus = "expired"
)

// WorkerRecord is the server's view of a single client.
type WorkerRecord struct {
	Identity       Identity
	LastSeen       time.Time
	ExpiryDeadline time.Time
	Version        string
	HostUptime     time.Duration
	AgentUptime    time.Duration
	Capabilities   []string // verbs this client's registry advertises
}

// Alive reports whether the record's expiry deadline has not yet passed.
func (w *WorkerRecord) Alive(now time.Time) bool {
	return now.Before(w.ExpiryDeadline)
}

// JobState is the lifecycle state of a Job or a per-node result.
type JobState string

const (
	JobPending    JobState = "PENDING"
	JobDispatched JobState = "DISPATCHED"
	JobRunning    JobState = "RUNNING"
	JobSucceeded  JobState = "SUCCEEDED"
	JobFailed     JobState = "FAILED"
	JobTimedOut   JobState = "TIMEDOUT"
	JobNacked     JobState = "NACKED"
)

// Terminal reports whether a JobState will never transition again.
func (s JobState) Terminal() bool {
	switch s {
	case JobSucceeded, JobFailed, JobTimedOut, JobNacked:
		return true
	default:
		return false
	}
}

// NodeResult is one identity's outcome for a Job.
type NodeResult struct {
	Identity         Identity
	State            JobState
	Stdout           string
	Stderr           string
	Info             map[string]string
	Success          bool
	ExecutionSeconds float64
	RoundtripSeconds float64
}

// JobDefinition is the verb-specific mapping plus the fields common to
// every job, exactly as submitted by the orchestration compiler or the
// one-shot exec command.
type JobDefinition struct {
	Fields            map[string]any
	TimeoutSeconds    int
	SkipCache         bool
	RunOnce           bool
	Targets           []string
	Restrict          []string
	ExtendArgs        map[string]string
	StdoutArg         string
	ParentAsyncBypass bool
	NoBlock           bool
}

// volatileFields are excluded from the job_sha fingerprint because they
// govern execution policy, not the work being requested.
var volatileFields = map[string]bool{
	"timeout_seconds": true,
	"skip_cache":      true,
	"run_once":        true,
}

// Canonical returns a deterministic view of the definition's
// non-volatile fields, suitable for fingerprinting.
func (d *JobDefinition) Canonical() map[string]any {
	out := make(map[string]any, len(d.Fields))
	for k, v := range d.Fields {
		if volatileFields[k] {
			continue
		}
		out[k] = v
	}
	return out
}

// Job is an immutable submission unit, fanned out to one record per
// targeted identity at dispatch time.
type Job struct {
	JobID    string
	ParentID string
	Verb     string
	JobSHA   string

	Definition JobDefinition

	CreatedAt     time.Time
	TransmittedAt time.Time
	ReturnedAt    time.Time

	State   JobState
	PerNode map[Identity]*NodeResult

	// Targets is the identity set resolved at dispatch time (explicit
	// targets intersected with restrict, or all alive identities).
	Targets []Identity

	// Async is carried from the owning orchestration so the dispatcher
	// can apply or skip the per-identity ordering gate.
	Async bool
}

// NewJob allocates a Job with its per-node map initialized.
func NewJob(jobID, parentID, verb string, def JobDefinition) *Job {
	return &Job{
		JobID:      jobID,
		ParentID:   parentID,
		Verb:       verb,
		Definition: def,
		CreatedAt:  time.Now(),
		State:      JobPending,
		PerNode:    make(map[Identity]*NodeResult),
	}
}

// Terminal reports whether every targeted identity has a terminal
// per-node result.
func (j *Job) Terminal() bool {
	if len(j.Targets) == 0 {
		return j.State.Terminal()
	}
	for _, id := range j.Targets {
		r, ok := j.PerNode[id]
		if !ok || !r.State.Terminal() {
			return false
		}
	}
	return true
}

// JobSpec is one entry of an Orchestration's job list, in either its
// inline shell-like form or its dict form, before compilation.
type JobSpec struct {
	Verb   string
	Inline string         // set when the YAML value was a bare string
	Vars   map[string]any // set when the YAML value was a mapping
}

// Orchestration is a sequence of job specs sharing a parent id.
type Orchestration struct {
	Name    string
	Targets []string
	Async   bool
	Jobs    []JobSpec
}
