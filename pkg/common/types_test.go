package common

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvocationResultBreakdown(t *testing.T) {
	begin := time.Unix(1718700000, 0)

	tests := []struct {
		testName     string
		waitTimeMs   float64
		initTimeMs   *float64
		execDuration time.Duration
		expectedCold bool
		expectedE2E  float64
	}{
		{
			testName:     "warm",
			waitTimeMs:   12.5,
			execDuration: 42 * time.Millisecond,
			expectedCold: false,
			expectedE2E:  54.5,
		},
		{
			testName:     "cold",
			waitTimeMs:   3,
			initTimeMs:   Float64Ptr(250),
			execDuration: 1500 * time.Microsecond,
			expectedCold: true,
			expectedE2E:  254.5,
		},
		{
			testName:     "cold_with_zero_init",
			waitTimeMs:   0,
			initTimeMs:   Float64Ptr(0),
			execDuration: time.Second,
			expectedCold: true,
			expectedE2E:  1000,
		},
	}

	for _, test := range tests {
		t.Run(test.testName, func(t *testing.T) {
			result := &InvocationResult{
				Success:    true,
				Begin:      begin,
				End:        begin.Add(test.execDuration),
				WaitTimeMs: test.waitTimeMs,
				InitTimeMs: test.initTimeMs,
			}

			assert.Equal(t, test.expectedCold, result.IsCold())
			assert.InDelta(t, test.expectedE2E, result.E2EMs(), 1e-9)
			assert.InDelta(t, result.WaitTimeMs+result.InitMs()+result.ExecMs(), result.E2EMs(), 1e-9)
		})
	}
}

func TestHandleIssued(t *testing.T) {
	var nilHandle *InvocationHandle

	assert.False(t, nilHandle.Issued())
	assert.False(t, (&InvocationHandle{Failed: true}).Issued())
	assert.True(t, (&InvocationHandle{RequestID: "abc"}).Issued())
}

func TestParseEpoch(t *testing.T) {
	parsed, err := ParseEpoch("1718700000.123456")
	require.NoError(t, err)
	assert.Equal(t, int64(1718700000), parsed.Unix())
	assert.Equal(t, 123456*int(time.Microsecond), parsed.Nanosecond())
	assert.Equal(t, "1718700000.123456", FormatEpoch(parsed))

	parsed, err = ParseEpoch("1718700000")
	require.NoError(t, err)
	assert.Equal(t, 0, parsed.Nanosecond())

	parsed, err = ParseEpoch("1718700000.5")
	require.NoError(t, err)
	assert.Equal(t, 500*int(time.Millisecond), parsed.Nanosecond())

	_, err = ParseEpoch("")
	assert.Error(t, err)
	_, err = ParseEpoch("abc.12")
	assert.Error(t, err)

	fromFloat := EpochFromFloat(1718700000.25)
	assert.Equal(t, 250*int(time.Millisecond), fromFloat.Nanosecond())
}

func TestScheduleConfigError(t *testing.T) {
	cause := errors.New("boom")
	err := error(&ScheduleConfigError{Function: "f", Reason: "negative offset", Err: cause})

	var scheduleErr *ScheduleConfigError
	require.True(t, errors.As(err, &scheduleErr))
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "function f")
	assert.Contains(t, err.Error(), "negative offset")
}

func TestMinMaxTime(t *testing.T) {
	a := time.Unix(10, 0)
	b := time.Unix(20, 0)

	assert.Equal(t, a, MinTime(time.Time{}, a))
	assert.Equal(t, a, MinTime(b, a))
	assert.Equal(t, a, MinTime(a, time.Time{}))
	assert.Equal(t, b, MaxTime(a, b))
	assert.Equal(t, b, MaxTime(b, time.Time{}))
}
