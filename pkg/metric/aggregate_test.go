package metric

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vhive-serverless/replayer/pkg/common"
)

var testOrigin = time.Unix(1700000000, 0)

func successfulResult(function string, beginMs int, execMs int, waitMs float64, initMs *float64) *common.InvocationResult {
	begin := testOrigin.Add(time.Duration(beginMs) * time.Millisecond)

	return &common.InvocationResult{
		Function:   function,
		RequestID:  function + "-" + begin.String(),
		Success:    true,
		Begin:      begin,
		End:        begin.Add(time.Duration(execMs) * time.Millisecond),
		WaitTimeMs: waitMs,
		InitTimeMs: initMs,
	}
}

func failedResult(function string) *common.InvocationResult {
	return common.NewFailedResult(function, testOrigin, testOrigin, common.FailureReason(common.ErrTransportFailure, "exit status 1"))
}

func TestAggregateBreakdown(t *testing.T) {
	results := []*common.InvocationResult{
		successfulResult("A", 0, 42, 12.5, nil),
		successfulResult("A", 1000, 58, 7.5, common.Float64Ptr(200)),
		failedResult("A"),
		successfulResult("B", 500, 10, 0, nil),
	}

	report := Aggregate(common.OpenLoop, []string{"A", "B"}, results)
	require.Len(t, report.Functions, 2)

	a := report.Functions[0]
	assert.Equal(t, "A", a.Function)
	assert.Equal(t, 2, a.SuccessCount)
	assert.Equal(t, 1, a.FailureCount)
	assert.Equal(t, 1, a.WarmCount)
	assert.Equal(t, 1, a.ColdCount)
	assert.Equal(t, a.SuccessCount, a.WarmCount+a.ColdCount)
	assert.InDelta(t, 10.0, a.MeanWaitMs, 1e-9)
	assert.InDelta(t, 100.0, a.MeanInitMs, 1e-9)
	assert.InDelta(t, 50.0, a.MeanExecMs, 1e-9)
	// (54.5 + 265.5) / 2
	assert.InDelta(t, 160.0, a.MeanE2EMs, 1e-9)
	assert.InDelta(t, 54.5, a.P50E2EMs, 1e-9)
	assert.InDelta(t, 265.5, a.P99E2EMs, 1e-9)

	b := report.Functions[1]
	assert.Equal(t, 1, b.SuccessCount)
	assert.InDelta(t, 10.0, b.MeanE2EMs, 1e-9)

	assert.Equal(t, 3, report.TotalSuccess)
	assert.Equal(t, 1, report.TotalFailure)
	assert.Equal(t, 4, report.Attempted())

	assert.Equal(t, testOrigin, report.Window.EarliestBegin)
	assert.Equal(t, testOrigin.Add(1058*time.Millisecond), report.Window.LatestEnd)

	throughput, err := report.Throughput()
	require.NoError(t, err)
	assert.InDelta(t, 3/1.058, throughput, 1e-9)
}

func TestAggregateWarmResult(t *testing.T) {
	report := Aggregate(common.ClosedLoop, []string{"f"}, []*common.InvocationResult{
		successfulResult("f", 0, 42, 12.5, nil),
	})

	s := report.Functions[0]
	assert.Equal(t, 1, s.WarmCount)
	assert.Equal(t, 0, s.ColdCount)
	assert.InDelta(t, 54.5, s.MeanE2EMs, 1e-9)
}

func TestAggregateFunctionOrder(t *testing.T) {
	report := Aggregate(common.OpenLoop, []string{"z", "a"}, []*common.InvocationResult{
		successfulResult("c", 0, 1, 0, nil),
		successfulResult("a", 0, 1, 0, nil),
		successfulResult("b", 0, 1, 0, nil),
	})

	var names []string
	for _, s := range report.Functions {
		names = append(names, s.Function)
	}

	assert.Equal(t, []string{"z", "a", "b", "c"}, names)
	assert.Equal(t, 0, report.Functions[0].Attempted())
}

func TestThroughputNotComputable(t *testing.T) {
	tests := []struct {
		testName string
		results  []*common.InvocationResult
	}{
		{
			testName: "no_invocations",
			results:  nil,
		},
		{
			testName: "all_failed",
			results:  []*common.InvocationResult{failedResult("f"), failedResult("f")},
		},
		{
			testName: "zero_duration_window",
			results:  []*common.InvocationResult{successfulResult("f", 0, 0, 1, nil)},
		},
	}

	for _, test := range tests {
		t.Run(test.testName, func(t *testing.T) {
			report := Aggregate(common.OpenLoop, []string{"f"}, test.results)

			_, err := report.Throughput()
			assert.ErrorIs(t, err, common.ErrPartialWindow)

			var out bytes.Buffer
			require.NoError(t, report.WriteText(&out))
			assert.Contains(t, out.String(), "Actual invocations/second: N/A")
		})
	}
}

func TestReplayWindowOverridesThroughputWindow(t *testing.T) {
	report := Aggregate(common.ClosedLoop, []string{"f"}, []*common.InvocationResult{
		successfulResult("f", 0, 100, 0, nil),
		successfulResult("f", 100, 100, 0, nil),
	})
	report.ReplayWindow = &ExperimentWindow{EarliestBegin: testOrigin, LatestEnd: testOrigin.Add(4 * time.Second)}

	throughput, err := report.Throughput()
	require.NoError(t, err)
	assert.InDelta(t, 0.5, throughput, 1e-9)
}

func TestWriteTextDistinguishesEmptyFromFailed(t *testing.T) {
	var empty bytes.Buffer
	require.NoError(t, Aggregate(common.OpenLoop, []string{"f"}, nil).WriteText(&empty))
	assert.Contains(t, empty.String(), "No invocations attempted")
	assert.NotContains(t, empty.String(), "invocations failed")

	var failed bytes.Buffer
	report := Aggregate(common.OpenLoop, []string{"f"}, []*common.InvocationResult{failedResult("f"), failedResult("f")})
	require.NoError(t, report.WriteText(&failed))
	assert.Contains(t, failed.String(), "All 2 invocations failed")
	assert.Contains(t, failed.String(), "2 failures (100.00%)")
	assert.NotContains(t, failed.String(), "No invocations attempted")
}

func TestWriteText(t *testing.T) {
	report := Aggregate(common.OpenLoop, []string{"f"}, []*common.InvocationResult{
		successfulResult("f", 0, 42, 12.5, nil),
		successfulResult("f", 1958, 42, 12.5, common.Float64Ptr(100)),
	})

	var out bytes.Buffer
	require.NoError(t, report.WriteText(&out))

	assert.Contains(t, out.String(), "Statistics for f")
	assert.Contains(t, out.String(), "2 successes (100.00%)")
	assert.Contains(t, out.String(), "Num warm: 1 (50.00%)")
	assert.Contains(t, out.String(), "Num cold: 1 (50.00%)")
	assert.Contains(t, out.String(), "Actual invocations/second: 1.000")
}
