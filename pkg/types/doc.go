/*
Package types defines the core data structures used throughout Directord.

This package contains the domain model shared by the coordinator, the
worker and the orchestration compiler: identities, jobs, per-node
results and the orchestration DSL's in-memory form. Nothing in this
package talks to the network or to disk; it is pure data plus the
small amount of logic (fingerprint canonicalization, terminality
checks) that every other package needs to agree on.

# Core Types

Identity & liveness:
  - Identity: stable string name for a client
  - WorkerRecord: the coordinator's view of one identity, alive iff
    now is before ExpiryDeadline

Jobs:
  - Job: an immutable submission unit, fanned out to one NodeResult
    per targeted identity
  - JobDefinition: verb-specific fields plus the fields common to every
    job (timeout, cache policy, targeting, extend_args, stdout_arg)
  - JobState: PENDING, DISPATCHED, RUNNING, SUCCEEDED, FAILED,
    TIMEDOUT, NACKED
  - NodeResult: one identity's outcome for a Job

Orchestration DSL:
  - JobSpec: one verb entry, either inline (shell-like string) or dict
    (vars mapping), before compilation
  - Orchestration: an ordered JobSpec list sharing a parent id, plus
    the targets/async flags that govern dispatch ordering

# Fingerprinting

JobDefinition.Canonical strips the "volatile" fields (timeout_seconds,
skip_cache, run_once) before the orchestration compiler hashes the
result into job_sha: two submissions that differ only in those fields
must fingerprint identically, because they request the same work under
a different execution policy.

# Thread Safety

Types in this package carry no internal locking. A *Job's PerNode map
is mutated by the coordinator's return manager under its own lock;
readers elsewhere (the local socket RPC, the profiler) must go through
that lock rather than reading the map directly.

# See Also

  - pkg/coordinator for the server-side job lifecycle
  - pkg/worker for the client-side execution of a Job
  - pkg/orchestrate for how an Orchestration becomes a []*Job
*/
package types
