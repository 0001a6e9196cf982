/*
Package worker implements Directord's client-side agent: the process
every managed host runs to receive, execute and report on jobs.

# Architecture

A client bridges the coordinator and the local component registry:

	┌─────────────────────── CLIENT ──────────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │              Worker Agent                   │          │
	│  │  - driver connection (grpc or amqp)          │          │
	│  │  - heartbeatLoop (jittered, default 60s)     │          │
	│  │  - ingestLoop (single consumer of ChannelJob)│          │
	│  └──────┬───────────────────────────────────────┘          │
	│         │                                                    │
	│  ┌──────▼───────────────────────────────────────┐          │
	│  │  ingestQueue                                  │          │
	│  │  - (job_id, identity) dedup, LRU-bounded       │          │
	│  │  - silent restrict drop                        │          │
	│  └──────┬───────────────────────────────────────┘          │
	│         │                                                    │
	│  ┌──────▼───────────────────────────────────────┐          │
	│  │  executor                                     │          │
	│  │  - single-consumer FIFO for ordered jobs       │          │
	│  │  - bounded pool (default 4) for no_block jobs  │          │
	│  │  - component lookup, cache policy, timeout     │          │
	│  │  - stdout_arg + jobs_cache writes               │          │
	│  └──────┬───────────────────────────────────────┘          │
	│         │                                                    │
	│  ┌──────▼───────────────────────────────────────┐          │
	│  │  resultEmitter -> ChannelReturn, with retry     │          │
	│  └────────────────────────────────────────────────┘          │
	└──────────────────────────────────────────────────────────┘

Execution itself is delegated to pkg/component: the executor resolves
a verb to a Component, renders templates and enforces the component's
own timeout, then records the outcome in the local jobs_cache so a
repeated run_once submission can be answered without re-executing.
*/
package worker
