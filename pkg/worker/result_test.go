package worker

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/directord/pkg/driver"
	"github.com/cuemby/directord/pkg/types"
)

func TestResultEmitterSendsChannelReturnFrame(t *testing.T) {
	drv := &fakeDriver{}
	r := newResultEmitter(drv, "nodeA")

	r.send(context.Background(), "job-1", &types.NodeResult{
		State:            types.JobSucceeded,
		Success:          true,
		Stdout:           "ok\n",
		ExecutionSeconds: 1.5,
	})

	sent := drv.last()
	require.NotNil(t, sent)
	assert.Equal(t, driver.ChannelReturn, sent.Channel)
	assert.Equal(t, "job-1", sent.MessageID)
	assert.Equal(t, "nodeA", sent.Identity)

	var payload wireResult
	require.NoError(t, json.Unmarshal(sent.Data, &payload))
	assert.Equal(t, "job-1", payload.JobID)
	assert.Equal(t, "nodeA", payload.Identity)
	assert.True(t, payload.Success)
	assert.False(t, payload.TimedOut)
	assert.Equal(t, "ok\n", payload.Stdout)
}

func TestResultEmitterMarksTimedOutState(t *testing.T) {
	drv := &fakeDriver{}
	r := newResultEmitter(drv, "nodeA")

	r.send(context.Background(), "job-2", &types.NodeResult{State: types.JobTimedOut, Success: false})

	var payload wireResult
	require.NoError(t, json.Unmarshal(drv.last().Data, &payload))
	assert.True(t, payload.TimedOut)
	assert.False(t, payload.Success)
}

func TestResultEmitterEncodesInfoAsJSONString(t *testing.T) {
	drv := &fakeDriver{}
	r := newResultEmitter(drv, "nodeA")

	r.send(context.Background(), "job-3", &types.NodeResult{
		State:   types.JobSucceeded,
		Success: true,
		Info:    map[string]string{"callback": `{"verb":"RUN","definition":{}}`},
	})

	var payload wireResult
	require.NoError(t, json.Unmarshal(drv.last().Data, &payload))
	require.NotEmpty(t, payload.Info)

	var info map[string]string
	require.NoError(t, json.Unmarshal([]byte(payload.Info), &info))
	assert.Contains(t, info["callback"], `"verb":"RUN"`)
}
