package worker

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/directord/pkg/cache"
	"github.com/cuemby/directord/pkg/component"
	"github.com/cuemby/directord/pkg/datastore/memory"
	"github.com/cuemby/directord/pkg/driver"
	"github.com/cuemby/directord/pkg/types"
)

// fakeDriver records every frame Send writes, for result-emitter
// assertions; Receive/HeartbeatRecv are unused by these tests.
type fakeDriver struct {
	mu   sync.Mutex
	sent []*driver.Frame
}

func (f *fakeDriver) Bind(ctx context.Context, cfg driver.Config) error    { return nil }
func (f *fakeDriver) Connect(ctx context.Context, cfg driver.Config) error { return nil }
func (f *fakeDriver) Send(ctx context.Context, identity string, frame *driver.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, frame)
	return nil
}
func (f *fakeDriver) Receive(ctx context.Context) (string, *driver.Frame, error) {
	<-ctx.Done()
	return "", nil, ctx.Err()
}
func (f *fakeDriver) HeartbeatSend(ctx context.Context, identity string, frame *driver.Frame) error {
	return nil
}
func (f *fakeDriver) HeartbeatRecv(ctx context.Context) (string, *driver.Frame, error) {
	<-ctx.Done()
	return "", nil, ctx.Err()
}
func (f *fakeDriver) Close() error { return nil }

func (f *fakeDriver) last() *driver.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return nil
	}
	return f.sent[len(f.sent)-1]
}

func newTestExecutor() (*executor, *fakeDriver, *cache.Cache) {
	c := cache.New(memory.New(), time.Hour)
	drv := &fakeDriver{}
	results := newResultEmitter(drv, "nodeA")
	cfg := Config{Identity: "nodeA", NoBlockPoolSize: 4}
	return newExecutor(cfg, c, results), drv, c
}

func runFrame(t *testing.T, jobID, jobSHA string, def types.JobDefinition) *driver.Frame {
	t.Helper()
	data, err := json.Marshal(def)
	require.NoError(t, err)
	return &driver.Frame{MessageID: jobID, JobSHA: jobSHA, Command: "RUN", Data: data, Identity: "nodeA"}
}

func TestExecutorWritesJobsCacheRegardlessOfSuccess(t *testing.T) {
	e, drv, c := newTestExecutor()
	f := runFrame(t, "job-1", "sha-1", types.JobDefinition{Fields: map[string]any{"command": "exit 1"}})

	e.execute(context.Background(), f)

	var outcome jobOutcome
	ok, err := c.Get(context.Background(), cache.TagJobs, "sha-1", 0, &outcome)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, outcome.Success)

	sent := drv.last()
	require.NotNil(t, sent)
}

func TestExecutorSkipsReExecutionOnRunOnceCacheHit(t *testing.T) {
	e, drv, c := newTestExecutor()
	require.NoError(t, c.Put(context.Background(), cache.TagJobs, "sha-2", jobOutcome{Success: true, Stdout: "cached\n"}))

	f := runFrame(t, "job-2", "sha-2", types.JobDefinition{
		Fields:  map[string]any{"command": "echo should-not-run"},
		RunOnce: true,
	})

	e.execute(context.Background(), f)

	sent := drv.last()
	require.NotNil(t, sent)
	var payload struct {
		Stdout           string  `json:"stdout"`
		ExecutionSeconds float64 `json:"execution_seconds"`
	}
	require.NoError(t, json.Unmarshal(sent.Data, &payload))
	assert.Equal(t, "cached\n", payload.Stdout)
	assert.Equal(t, 0.0, payload.ExecutionSeconds)
}

// spyComponent counts invocations of Client, for asserting a component
// runs at most once across two run_once submissions sharing a job_sha.
type spyComponent struct {
	verb  string
	calls int
}

func (s *spyComponent) Verb() string { return s.verb }
func (s *spyComponent) Args() component.ArgsSpec { return component.ArgsSpec{Raw: true} }
func (s *spyComponent) Server(ctx context.Context, def *types.JobDefinition) error { return nil }
func (s *spyComponent) Client(ctx context.Context, rt *component.Runtime, def *types.JobDefinition) (*types.NodeResult, error) {
	s.calls++
	return &types.NodeResult{State: types.JobSucceeded, Success: true, Stdout: "spied\n"}, nil
}

// TestExecutorRunOnceExecutesComponentExactlyOnceAcrossTwoSubmissions
// covers the round-trip idempotence property: submitting the same
// run_once job_sha twice invokes the underlying component exactly once.
func TestExecutorRunOnceExecutesComponentExactlyOnceAcrossTwoSubmissions(t *testing.T) {
	spy := &spyComponent{verb: "SPY-IDEMPOTENT"}
	component.Register(spy)

	e, drv, _ := newTestExecutor()
	def := types.JobDefinition{Fields: map[string]any{"command": "irrelevant"}, RunOnce: true}

	f1 := runFrame(t, "job-4a", "sha-shared", def)
	f1.Command = spy.verb
	e.execute(context.Background(), f1)

	f2 := runFrame(t, "job-4b", "sha-shared", def)
	f2.Command = spy.verb
	e.execute(context.Background(), f2)

	assert.Equal(t, 1, spy.calls, "component must run exactly once across two run_once submissions")

	sent := drv.last()
	require.NotNil(t, sent)
	var payload struct {
		Stdout string `json:"stdout"`
	}
	require.NoError(t, json.Unmarshal(sent.Data, &payload))
	assert.Equal(t, "spied\n", payload.Stdout)
}

func TestExecutorStoresStdoutArg(t *testing.T) {
	e, _, c := newTestExecutor()
	f := runFrame(t, "job-3", "sha-3", types.JobDefinition{
		Fields:    map[string]any{"command": "echo captured"},
		StdoutArg: "captured_value",
	})

	e.execute(context.Background(), f)

	var value string
	ok, err := c.Get(context.Background(), cache.TagArgs, "captured_value", 0, &value)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "captured", value)
}
