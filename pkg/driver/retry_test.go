package driver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicyBackoff(t *testing.T) {
	p := DefaultRetryPolicy
	assert.Equal(t, 500*time.Millisecond, p.Backoff(0))
	assert.Equal(t, time.Second, p.Backoff(1))
	assert.Equal(t, 2*time.Second, p.Backoff(2))
	assert.Equal(t, 30*time.Second, p.Backoff(10), "must cap at Max")
}

func TestSendWithRetrySucceedsEventually(t *testing.T) {
	p := RetryPolicy{Initial: time.Millisecond, Multiplier: 2, Max: 10 * time.Millisecond, Attempts: 3}
	attempts := 0
	err := SendWithRetry(context.Background(), p, "job", func(ctx context.Context) error {
		attempts++
		if attempts < 2 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestSendWithRetryExhausted(t *testing.T) {
	p := RetryPolicy{Initial: time.Millisecond, Multiplier: 2, Max: 5 * time.Millisecond, Attempts: 3}
	attempts := 0
	err := SendWithRetry(context.Background(), p, "job", func(ctx context.Context) error {
		attempts++
		return errors.New("permanent")
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestSendWithRetryRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := RetryPolicy{Initial: time.Hour, Multiplier: 2, Max: time.Hour, Attempts: 3}
	cancel()
	err := SendWithRetry(ctx, p, "job", func(ctx context.Context) error {
		return errors.New("transient")
	})
	require.Error(t, err)
}

func TestRegisterAndNew(t *testing.T) {
	Register("test-fake", func() Driver { return nil })
	d, err := New("test-fake")
	require.NoError(t, err)
	assert.Nil(t, d)

	_, err = New("does-not-exist")
	assert.Error(t, err)
}
