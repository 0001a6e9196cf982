package coordinator

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net"
	"os"

	"github.com/cuemby/directord/pkg/control"
	"github.com/cuemby/directord/pkg/driver/grpcdriver"
	"github.com/cuemby/directord/pkg/log"
	"github.com/cuemby/directord/pkg/orchestrate"
	"github.com/cuemby/directord/pkg/types"
)

// socketGroupPerm is the file mode the control socket is created
// with: owner and group read/write, matching spec.md §4.2's "socket
// file permissions are group-writable on a dedicated group; this is
// the only trust boundary for user-facing commands."
const socketGroupPerm = 0o660

// Socket is the local UNIX-domain control RPC server dispatching
// every pkg/control.Op to Coordinator methods.
type Socket struct {
	path string
	c    *Coordinator
}

// NewSocket returns a Socket listening at path once Run is called.
func NewSocket(path string, c *Coordinator) *Socket {
	return &Socket{path: path, c: c}
}

// Run listens on s.path until ctx is cancelled, handling one
// connection per accept in its own goroutine.
func (s *Socket) Run(ctx context.Context) error {
	logger := log.WithComponent("socket")
	if s.path == "" {
		<-ctx.Done()
		return nil
	}

	_ = os.Remove(s.path)
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "unix", s.path)
	if err != nil {
		return fmt.Errorf("coordinator: listen %s: %w", s.path, err)
	}
	if err := os.Chmod(s.path, socketGroupPerm); err != nil {
		ln.Close()
		return fmt.Errorf("coordinator: chmod %s: %w", s.path, err)
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	logger.Info().Str("path", s.path).Msg("control socket listening")
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("coordinator: accept: %w", err)
		}
		go s.handle(ctx, conn)
	}
}

func (s *Socket) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	logger := log.WithComponent("socket")

	var req control.Request
	if err := control.ReadFrame(conn, &req); err != nil {
		logger.Warn().Err(err).Msg("read control request")
		return
	}

	resp := s.dispatch(ctx, &req)
	if err := control.WriteFrame(conn, resp); err != nil {
		logger.Warn().Err(err).Msg("write control response")
	}
}

func (s *Socket) dispatch(ctx context.Context, req *control.Request) *control.Response {
	switch req.Op {
	case control.OpSubmitOrchestrations:
		return s.submitOrchestrations(ctx, req)
	case control.OpSubmitExec:
		return s.submitExec(ctx, req)
	case control.OpListNodes:
		return &control.Response{Workers: s.c.ListNodes()}
	case control.OpListJobs:
		jobs, err := s.c.ListJobs(ctx)
		if err != nil {
			return errResp(err)
		}
		return &control.Response{Jobs: jobs}
	case control.OpJobInfo, control.OpPollJob:
		job, err := s.c.JobByID(ctx, req.JobID)
		if err != nil {
			return errResp(err)
		}
		return &control.Response{Job: job, Done: job.Terminal(), Success: job.State == types.JobSucceeded}
	case control.OpPurgeJobs:
		if err := s.c.PurgeJobs(ctx); err != nil {
			return errResp(err)
		}
		return &control.Response{}
	case control.OpPurgeNodes:
		s.c.PurgeNodes()
		return &control.Response{}
	case control.OpExportJobs:
		jobs, err := s.c.ListJobs(ctx)
		if err != nil {
			return errResp(err)
		}
		data, err := json.MarshalIndent(jobs, "", "  ")
		if err != nil {
			return errResp(err)
		}
		if err := os.WriteFile(req.Path, data, 0o644); err != nil {
			return errResp(fmt.Errorf("coordinator: export jobs: %w", err))
		}
		return &control.Response{}
	case control.OpAnalyzeJob:
		job, err := s.c.JobByID(ctx, req.JobID)
		if err != nil {
			return errResp(err)
		}
		analysis, err := s.c.AnalyzeParent(ctx, job.ParentID)
		if err != nil {
			return errResp(err)
		}
		return &control.Response{Analysis: analysis}
	case control.OpAnalyzeParent:
		analysis, err := s.c.AnalyzeParent(ctx, req.ParentID)
		if err != nil {
			return errResp(err)
		}
		return &control.Response{Analysis: analysis}
	case control.OpGenerateKeys:
		kp, err := grpcdriver.GenerateKeyPair()
		if err != nil {
			return errResp(err)
		}
		return &control.Response{PublicKey: base64.StdEncoding.EncodeToString(kp.Public[:])}
	case control.OpRunUI:
		return &control.Response{
			Workers:      s.c.ListNodes(),
			WorkerCounts: s.c.WorkerCounts(),
			JobCounts:    s.c.JobCounts(),
			QueueDepths:  s.c.QueueDepths(),
		}
	default:
		return errResp(fmt.Errorf("coordinator: unknown op %q", req.Op))
	}
}

// restrictSet builds a lookup of the job_sha values req.Restrict names
// (orchestrate's `--restrict JOB_SHA ...`, a re-run filter distinct
// from submit_exec's identity-level restrict).
func restrictSet(shas []string) map[string]bool {
	if len(shas) == 0 {
		return nil
	}
	set := make(map[string]bool, len(shas))
	for _, sha := range shas {
		set[sha] = true
	}
	return set
}

func (s *Socket) submitOrchestrations(ctx context.Context, req *control.Request) *control.Response {
	restrict := restrictSet(req.Restrict)

	var submitted []*types.Job
	for _, raw := range req.Orchestrations {
		jobs, err := orchestrate.Compile(raw, req.Overrides)
		if err != nil {
			return errResp(err)
		}
		for _, job := range jobs {
			if restrict != nil && !restrict[job.JobSHA] {
				continue
			}
			if len(req.Targets) > 0 {
				job.Definition.Targets = req.Targets
			}
			if req.IgnoreCache {
				job.Definition.SkipCache = true
			}
			if err := s.c.Submit(ctx, job); err != nil {
				return errResp(err)
			}
			submitted = append(submitted, job)
		}
	}
	return &control.Response{Jobs: submitted}
}

// submitExec compiles a single ad hoc verb invocation into one job
// without an orchestration file, for `directord exec`.
func (s *Socket) submitExec(ctx context.Context, req *control.Request) *control.Response {
	doc := map[string]any{
		"name":    "exec",
		"targets": req.Targets,
		"jobs": []map[string]any{
			{req.Verb: req.Args},
		},
	}
	if len(req.Restrict) > 0 {
		doc["restrict"] = req.Restrict
	}
	raw, err := json.Marshal([]any{doc})
	if err != nil {
		return errResp(err)
	}
	jobs, err := orchestrate.Compile(raw, nil)
	if err != nil {
		return errResp(err)
	}
	for _, job := range jobs {
		job.Definition.SkipCache = req.IgnoreCache
		if err := s.c.Submit(ctx, job); err != nil {
			return errResp(err)
		}
	}
	return &control.Response{Jobs: jobs}
}

func errResp(err error) *control.Response {
	return &control.Response{Error: err.Error()}
}
