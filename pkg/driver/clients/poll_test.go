package clients

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/vhive-serverless/replayer/pkg/common"
)

var testHandle = &common.InvocationHandle{RequestID: "r1", Function: "f"}

func TestPollUntilAvailable(t *testing.T) {
	poller := newResultPoller(time.Millisecond, 0)

	probes := 0
	result := poller.poll(context.Background(), testHandle, func(ctx context.Context) (*common.InvocationResult, error) {
		probes++
		if probes < 3 {
			return nil, nil
		}

		return &common.InvocationResult{Function: "f", RequestID: "r1", Success: true}, nil
	})

	assert.True(t, result.Success)
	assert.Equal(t, 3, probes)
}

func TestPollTerminalFailure(t *testing.T) {
	poller := newResultPoller(time.Millisecond, 0)

	probes := 0
	result := poller.poll(context.Background(), testHandle, func(ctx context.Context) (*common.InvocationResult, error) {
		probes++
		return nil, errors.New("activation crashed")
	})

	assert.False(t, result.Success)
	assert.Equal(t, 1, probes)
	assert.Equal(t, "r1", result.RequestID)
	assert.Equal(t, "activation crashed", result.FailureReason)
}

func TestPollTimeout(t *testing.T) {
	poller := newResultPoller(time.Millisecond, 20*time.Millisecond)

	result := poller.poll(context.Background(), testHandle, func(ctx context.Context) (*common.InvocationResult, error) {
		return nil, nil
	})

	assert.False(t, result.Success)
	assert.Contains(t, result.FailureReason, common.ErrFetchTimeout.Error())
}

func TestPollCancelled(t *testing.T) {
	poller := newResultPoller(time.Millisecond, 0)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	result := poller.poll(ctx, testHandle, func(ctx context.Context) (*common.InvocationResult, error) {
		return nil, nil
	})

	assert.False(t, result.Success)
	assert.Contains(t, result.FailureReason, common.ErrTransportFailure.Error())
}
