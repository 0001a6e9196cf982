package worker

import (
	"context"
	"encoding/json"

	"github.com/cuemby/directord/pkg/driver"
	"github.com/cuemby/directord/pkg/log"
	"github.com/cuemby/directord/pkg/types"
)

// wireResult is the payload a result emitter sends on ChannelReturn,
// mirroring pkg/coordinator's returnPayload (spec.md §4.3 "Result
// emitter").
type wireResult struct {
	JobID            string `json:"job_id"`
	Identity         string `json:"identity"`
	Stdout           string `json:"stdout"`
	Stderr           string `json:"stderr"`
	Info             string `json:"info"`
	Success          bool   `json:"success"`
	ExecutionSeconds float64 `json:"execution_seconds"`
	TimedOut         bool   `json:"timed_out"`
}

// resultEmitter serializes one job's outcome onto ChannelReturn,
// retrying per the driver's failure model.
type resultEmitter struct {
	drv      driver.Driver
	identity string
}

func newResultEmitter(drv driver.Driver, identity string) *resultEmitter {
	return &resultEmitter{drv: drv, identity: identity}
}

func (r *resultEmitter) send(ctx context.Context, jobID string, result *types.NodeResult) {
	logger := log.WithIdentity(r.identity)

	payload := wireResult{
		JobID:            jobID,
		Identity:         r.identity,
		Stdout:           result.Stdout,
		Stderr:           result.Stderr,
		Success:          result.Success,
		ExecutionSeconds: result.ExecutionSeconds,
		TimedOut:         result.State == types.JobTimedOut,
	}
	if len(result.Info) > 0 {
		if raw, err := json.Marshal(result.Info); err == nil {
			payload.Info = string(raw)
		}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		logger.Warn().Err(err).Str("job_id", jobID).Msg("marshal result payload")
		return
	}
	frame := &driver.Frame{MessageID: jobID, Channel: driver.ChannelReturn, Data: data, Identity: r.identity}

	if err := driver.SendWithRetry(ctx, driver.DefaultRetryPolicy, string(driver.ChannelReturn), func(ctx context.Context) error {
		return r.drv.Send(ctx, r.identity, frame)
	}); err != nil {
		logger.Warn().Err(err).Str("job_id", jobID).Msg("send result failed after retries")
	}
}
