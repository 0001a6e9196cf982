package component

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/cuemby/directord/pkg/cache"
	"github.com/cuemby/directord/pkg/types"
)

// gracePeriod is how long RUN waits after a timeout's context is
// cancelled before escalating to a forceful kill (spec.md §5).
const gracePeriod = 5 * time.Second

func init() {
	Register(&runComponent{})
}

// runComponent implements RUN: execute a shell command on the client
// and capture its stdout/stderr.
type runComponent struct{}

func (runComponent) Verb() string { return "RUN" }

func (runComponent) Args() ArgsSpec {
	return ArgsSpec{Positional: []string{"command"}, Raw: true}
}

func (runComponent) Server(ctx context.Context, def *types.JobDefinition) error {
	cmd, _ := def.Fields["command"].(string)
	if strings.TrimSpace(cmd) == "" {
		return fmt.Errorf("component run: command must not be empty")
	}
	return nil
}

func (runComponent) Client(ctx context.Context, rt *Runtime, def *types.JobDefinition) (*types.NodeResult, error) {
	command, _ := def.Fields["command"].(string)
	command = renderTemplate(ctx, rt, command)

	start := time.Now()
	result := &types.NodeResult{Identity: types.Identity(rt.Identity)}

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	// On cancellation, ask the shell to terminate and only escalate to a
	// forceful kill if it hasn't exited within the grace period.
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = gracePeriod

	var workdir string
	if ok, _ := rt.Cache.Get(ctx, cache.TagArgs, workdirCacheKey, 0, &workdir); ok {
		cmd.Dir = workdir
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result.ExecutionSeconds = time.Since(start).Seconds()
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()

	switch {
	case err == nil:
		result.Success = true
		result.State = types.JobSucceeded
	case ctx.Err() != nil:
		result.Success = false
		result.State = types.JobTimedOut
	default:
		result.Success = false
		result.State = types.JobFailed
	}
	return result, nil
}
