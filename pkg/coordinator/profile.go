package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cuemby/directord/pkg/control"
	"github.com/cuemby/directord/pkg/types"
)

// AnalyzeParent aggregates every job sharing parentID into the
// analysis spec.md §4.2 "Profiling / analyze" describes.
func (c *Coordinator) AnalyzeParent(ctx context.Context, parentID string) (*control.ParentAnalysis, error) {
	jobs, err := c.jobsByParent(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("coordinator: no jobs found for parent %s", parentID)
	}

	a := &control.ParentAnalysis{ParentID: parentID, TotalJobs: len(jobs)}
	var minCreated, maxReturned time.Time
	var combinedExec time.Duration
	var fastestExec, slowestExec time.Duration
	var fastestRT, slowestRT time.Duration

	for i, job := range jobs {
		if i == 0 || job.CreatedAt.Before(minCreated) {
			minCreated = job.CreatedAt
		}
		if job.ReturnedAt.After(maxReturned) {
			maxReturned = job.ReturnedAt
		}
		a.TotalNodeCount += len(job.PerNode)
		for identity, res := range job.PerNode {
			if res.Success {
				a.TotalSuccesses++
			} else {
				a.TotalFailures++
			}
			exec := time.Duration(res.ExecutionSeconds * float64(time.Second))
			combinedExec += exec
			rt := time.Duration(res.RoundtripSeconds * float64(time.Second))

			if fastestExec == 0 || exec < fastestExec {
				fastestExec = exec
				a.FastestByExecution = string(identity)
			}
			if exec > slowestExec {
				slowestExec = exec
				a.SlowestByExecution = string(identity)
			}
			if fastestRT == 0 || rt < fastestRT {
				fastestRT = rt
				a.FastestByRoundtrip = string(identity)
			}
			if rt > slowestRT {
				slowestRT = rt
				a.SlowestByRoundtrip = string(identity)
			}
		}
	}

	a.ActualRuntime = maxReturned.Sub(minCreated)
	a.CombinedExecutionTime = combinedExec
	if a.TotalNodeCount > 0 {
		a.AvgExecutionTime = combinedExec / time.Duration(a.TotalNodeCount)
	}
	return a, nil
}

// jobsByParent scans the job table for every record with the matching
// ParentID. A dedicated "parent_id -> []job_id" index would avoid the
// full scan, but analyze is an operator-triggered, low-frequency path.
func (c *Coordinator) jobsByParent(ctx context.Context, parentID string) ([]*types.Job, error) {
	it, err := c.store.Scan(ctx, jobTable, "")
	if err != nil {
		return nil, fmt.Errorf("coordinator: scan jobs: %w", err)
	}
	defer it.Close()

	var out []*types.Job
	for it.Next() {
		var job types.Job
		if err := json.Unmarshal(it.Value(), &job); err != nil {
			continue
		}
		if job.ParentID == parentID {
			out = append(out, &job)
		}
	}
	return out, it.Err()
}
