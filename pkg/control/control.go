// Package control defines the request/response schema for Directord's
// local control socket (spec.md §4.2 "Local socket RPC") and a thin
// client wrapper CLI subcommands use to reach it. Requests are
// length-prefixed JSON frames over a UNIX domain socket, reusing
// pkg/wire's codec so the wire format stays consistent with the
// server-client driver transport.
package control

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/cuemby/directord/pkg/types"
	"github.com/cuemby/directord/pkg/wire"
)

// Op names one local socket operation.
type Op string

const (
	OpSubmitOrchestrations Op = "submit_orchestrations"
	OpSubmitExec           Op = "submit_exec"
	OpListNodes            Op = "list_nodes"
	OpListJobs             Op = "list_jobs"
	OpJobInfo              Op = "job_info"
	OpPollJob              Op = "poll_job"
	OpPurgeJobs            Op = "purge_jobs"
	OpPurgeNodes           Op = "purge_nodes"
	OpExportJobs           Op = "export_jobs"
	OpAnalyzeJob           Op = "analyze_job"
	OpAnalyzeParent        Op = "analyze_parent"
	OpGenerateKeys         Op = "generate_keys"
	OpRunUI                Op = "run_ui"
)

// Request is one framed local socket call.
type Request struct {
	Op Op `json:"op"`

	// SubmitOrchestrations
	Orchestrations [][]byte `json:"orchestrations,omitempty"`
	Overrides      map[string]string `json:"overrides,omitempty"`

	// SubmitExec; Targets/Restrict/IgnoreCache are also read by
	// SubmitOrchestrations, where Restrict means "only submit jobs
	// whose job_sha matches one of these" rather than an identity
	// restrict.
	Verb        string   `json:"verb,omitempty"`
	Args        string   `json:"args,omitempty"`
	Targets     []string `json:"targets,omitempty"`
	Restrict    []string `json:"restrict,omitempty"`
	IgnoreCache bool     `json:"ignore_cache,omitempty"`

	// JobInfo / PollJob / AnalyzeJob
	JobID string `json:"job_id,omitempty"`

	// AnalyzeParent
	ParentID string `json:"parent_id,omitempty"`

	// ExportJobs
	Path string `json:"path,omitempty"`
}

// Response is one framed local socket reply.
type Response struct {
	Error string `json:"error,omitempty"`

	Jobs    []*types.Job          `json:"jobs,omitempty"`
	Job     *types.Job            `json:"job,omitempty"`
	Workers []*types.WorkerRecord `json:"workers,omitempty"`

	// PollJob
	Done    bool   `json:"done,omitempty"`
	Success bool   `json:"success,omitempty"`
	Info    string `json:"info,omitempty"`

	// AnalyzeParent
	Analysis *ParentAnalysis `json:"analysis,omitempty"`

	// GenerateKeys
	PublicKey string `json:"public_key,omitempty"`

	// RunUI
	WorkerCounts map[types.NodeStatus]int `json:"worker_counts,omitempty"`
	JobCounts    map[types.JobState]int   `json:"job_counts,omitempty"`
	QueueDepths  map[string]int           `json:"queue_depths,omitempty"`
}

// ParentAnalysis is the aggregate spec.md §4.2 "analyze_parent" returns.
type ParentAnalysis struct {
	ParentID              string        `json:"parent_id"`
	ActualRuntime         time.Duration `json:"actual_runtime"`
	CombinedExecutionTime time.Duration `json:"combined_execution_time"`
	FastestByExecution    string        `json:"fastest_by_execution"`
	SlowestByExecution    string        `json:"slowest_by_execution"`
	FastestByRoundtrip    string        `json:"fastest_by_roundtrip"`
	SlowestByRoundtrip    string        `json:"slowest_by_roundtrip"`
	TotalJobs             int           `json:"total_jobs"`
	TotalNodeCount        int           `json:"total_node_count"`
	TotalSuccesses        int           `json:"total_successes"`
	TotalFailures         int           `json:"total_failures"`
	AvgExecutionTime      time.Duration `json:"avg_execution_time"`
}

var codec = wire.Codec{}

// WriteFrame writes a length-prefixed JSON-encoded value to w.
func WriteFrame(w io.Writer, v any) error {
	data, err := codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("control: marshal frame: %w", err)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("control: write frame length: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("control: write frame body: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed JSON-encoded value from r into v.
func ReadFrame(r io.Reader, v any) error {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return err
	}
	size := binary.BigEndian.Uint32(lenBuf[:])
	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return fmt.Errorf("control: read frame body: %w", err)
	}
	if err := codec.Unmarshal(data, v); err != nil {
		return fmt.Errorf("control: unmarshal frame: %w", err)
	}
	return nil
}

// Client is a thin synchronous wrapper CLI subcommands use to talk to
// the local control socket.
type Client struct {
	socketPath string
}

// NewClient returns a Client dialing socketPath on every call.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// Call dials the control socket, sends req, and returns the decoded response.
func (c *Client) Call(req Request) (*Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("control: dial %s: %w", c.socketPath, err)
	}
	defer conn.Close()

	if err := WriteFrame(conn, req); err != nil {
		return nil, err
	}
	var resp Response
	if err := ReadFrame(conn, &resp); err != nil {
		return nil, fmt.Errorf("control: read response: %w", err)
	}
	if resp.Error != "" {
		return &resp, fmt.Errorf("control: %s", resp.Error)
	}
	return &resp, nil
}
