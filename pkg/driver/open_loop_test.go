package driver

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vhive-serverless/replayer/pkg/common"
	"github.com/vhive-serverless/replayer/pkg/schedule"
)

func TestOpenLoopStateMachine(t *testing.T) {
	s := buildTestSchedule(t,
		schedule.FunctionTrace{Name: "A", Invocations: []int64{0, 100 * ms}},
		schedule.FunctionTrace{Name: "B", Invocations: []int64{50 * ms}},
	)
	a, b := newFakeTrigger("A"), newFakeTrigger("B")
	driver := createTestDriver(common.OpenLoop, 1, s, map[string]*fakeTrigger{"A": a, "B": b}, "A", "B")

	var mutex sync.Mutex
	var states []OpenLoopState
	driver.observer = func(state OpenLoopState) {
		mutex.Lock()
		defer mutex.Unlock()

		states = append(states, state)
	}

	report, err := driver.RunExperiment(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []OpenLoopState{Dispatching, Draining, Collecting, Done}, states)
	assert.Equal(t, 3, report.TotalSuccess)

	// dispatch honours the offsets relative to the run origin
	origin := report.Phases.InvocationStart
	require.Len(t, a.asyncCalls, 2)
	require.Len(t, b.asyncCalls, 1)
	assert.GreaterOrEqual(t, a.asyncCalls[1].Sub(origin), 100*time.Millisecond)
	assert.GreaterOrEqual(t, b.asyncCalls[0].Sub(origin), 50*time.Millisecond)
	assert.True(t, a.asyncCalls[0].Before(b.asyncCalls[0]))
	assert.True(t, b.asyncCalls[0].Before(a.asyncCalls[1]))

	assert.ElementsMatch(t, []string{"A-1", "A-2"}, a.fetched)
	assert.ElementsMatch(t, []string{"B-1"}, b.fetched)

	assert.False(t, report.Phases.CollectionStart.Before(report.Phases.InvocationEnd))
	for _, result := range driver.Results {
		assert.Equal(t, common.OpenLoop, result.Mode)
	}
}

func TestOpenLoopFailedIssuanceIsNeverFetched(t *testing.T) {
	s := buildTestSchedule(t, schedule.FunctionTrace{Name: "A", Invocations: []int64{0, 0, 0, 0}})

	a := newFakeTrigger("A")
	a.failIssue = func(n int) bool { return n%2 == 1 }

	driver := createTestDriver(common.OpenLoop, 1, s, map[string]*fakeTrigger{"A": a}, "A")
	report, err := driver.RunExperiment(context.Background())
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"A-2", "A-4"}, a.fetched)
	assert.NotContains(t, a.fetched, "")

	require.Len(t, report.Functions, 1)
	assert.Equal(t, 2, report.Functions[0].SuccessCount)
	assert.Equal(t, 2, report.Functions[0].FailureCount)

	for _, result := range driver.Results {
		if !result.Success {
			assert.Empty(t, result.RequestID)
			assert.Contains(t, result.FailureReason, common.ErrTransportFailure.Error())
		}
	}
}

func TestOpenLoopBehindScheduleFiresImmediately(t *testing.T) {
	s := buildTestSchedule(t, schedule.FunctionTrace{Name: "A", Invocations: []int64{0, 1, 2, 3, 4}})

	a := newFakeTrigger("A")
	driver := createTestDriver(common.OpenLoop, 1, s, map[string]*fakeTrigger{"A": a}, "A")

	report, err := driver.RunExperiment(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, report.TotalSuccess)
	assert.Less(t, report.Phases.InvocationEnd.Sub(report.Phases.InvocationStart), time.Second)
}

func TestOpenLoopCancellationStillCollects(t *testing.T) {
	s := buildTestSchedule(t, schedule.FunctionTrace{Name: "A", Invocations: []int64{0, 10 * time.Second.Nanoseconds()}})

	a := newFakeTrigger("A")
	driver := createTestDriver(common.OpenLoop, 1, s, map[string]*fakeTrigger{"A": a}, "A")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	driver.observer = func(state OpenLoopState) {
		if state == Dispatching {
			go func() {
				time.Sleep(50 * time.Millisecond)
				cancel()
			}()
		}
	}

	report, err := driver.RunExperiment(ctx)
	require.NoError(t, err)

	assert.Len(t, a.asyncCalls, 1)
	assert.Equal(t, []string{"A-1"}, a.fetched)
	assert.Equal(t, 1, report.TotalSuccess)
	assert.Equal(t, 1, report.Attempted())
}

func TestOpenLoopNothingAttempted(t *testing.T) {
	s := buildTestSchedule(t, schedule.FunctionTrace{Name: "A", Invocations: []int64{0}})

	a := newFakeTrigger("A")
	driver := createTestDriver(common.OpenLoop, 1, s, map[string]*fakeTrigger{"A": a}, "A")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := driver.RunExperiment(ctx)
	require.NoError(t, err)

	assert.Empty(t, a.asyncCalls)
	assert.Equal(t, 0, report.Attempted())

	_, err = report.Throughput()
	assert.ErrorIs(t, err, common.ErrPartialWindow)
}

func TestOpenLoopStateString(t *testing.T) {
	assert.Equal(t, "collecting", Collecting.String())
	assert.Equal(t, "unknown", OpenLoopState(42).String())
}
