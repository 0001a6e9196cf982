package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// frame is a minimal stand-in for driver.Frame: wire doesn't import
// driver (driver imports wire), so the round-trip property is
// exercised against an equivalent shape instead.
type frame struct {
	MessageID string
	Channel   string
	Command   string
	Data      []byte
	Identity  string
	JobSHA    string
}

func TestCodecRoundTripIsIdentity(t *testing.T) {
	c := Codec{}
	in := frame{
		MessageID: "job-1",
		Channel:   "job",
		Command:   "RUN",
		Data:      []byte(`{"command":"echo hi"}`),
		Identity:  "nodeA",
		JobSHA:    "deadbeef",
	}

	data, err := c.Marshal(in)
	require.NoError(t, err)

	var out frame
	require.NoError(t, c.Unmarshal(data, &out))

	assert.Equal(t, in, out)
}

func TestCodecName(t *testing.T) {
	assert.Equal(t, "directord-json", Codec{}.Name())
}

func TestCodecUnmarshalInvalidData(t *testing.T) {
	c := Codec{}
	var out frame
	err := c.Unmarshal([]byte("not json"), &out)
	assert.Error(t, err)
}
