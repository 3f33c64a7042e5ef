package clients

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vhive-serverless/replayer/pkg/common"
)

func TestParseFunctionResponse(t *testing.T) {
	tests := []struct {
		testName   string
		body       string
		expectCold bool
		expectExec float64
		expectE2E  float64
	}{
		{
			testName:   "string_timestamps_warm",
			body:       `{"begin": "1700000000.100000", "end": "1700000000.142000", "waitTime": 12.5, "request_id": "r1", "result": {"output": 1}}`,
			expectCold: false,
			expectExec: 42,
			expectE2E:  54.5,
		},
		{
			testName:   "numeric_timestamps_cold",
			body:       `{"begin": 1700000000.5, "end": 1700000001.0, "waitTime": 3, "initTime": 250, "request_id": "r2"}`,
			expectCold: true,
			expectExec: 500,
			expectE2E:  753,
		},
	}

	for _, test := range tests {
		t.Run(test.testName, func(t *testing.T) {
			result, err := parseFunctionResponse("f", []byte(test.body))
			require.NoError(t, err)

			assert.True(t, result.Success)
			assert.Equal(t, "f", result.Function)
			assert.Equal(t, test.expectCold, result.IsCold())
			assert.InDelta(t, test.expectExec, result.ExecMs(), 1e-9)
			assert.InDelta(t, test.expectE2E, result.E2EMs(), 1e-9)
			assert.JSONEq(t, test.body, string(result.Payload))
		})
	}
}

func TestParseFunctionResponseErrors(t *testing.T) {
	for _, body := range []string{
		`not json`,
		`{"waitTime": 1}`,
		`{"begin": "yesterday", "end": "1700000000.1"}`,
	} {
		_, err := parseFunctionResponse("f", []byte(body))
		assert.ErrorIs(t, err, common.ErrResultParse, body)
	}
}

func TestParseActivation(t *testing.T) {
	body := `{
		"activationId": "a1b2",
		"annotations": [
			{"key": "path", "value": "guest/f"},
			{"key": "waitTime", "value": 17},
			{"key": "initTime", "value": 310}
		],
		"response": {
			"status": "success",
			"success": true,
			"result": {"begin": "1700000000.000000", "end": "1700000000.010000", "result": {}}
		}
	}`

	result, err := parseActivation("f", []byte(body))
	require.NoError(t, err)

	assert.Equal(t, "a1b2", result.RequestID)
	assert.Equal(t, 17.0, result.WaitTimeMs)
	require.True(t, result.IsCold())
	assert.Equal(t, 310.0, *result.InitTimeMs)
	assert.InDelta(t, 337.0, result.E2EMs(), 1e-9)
}

func TestParseActivationFailure(t *testing.T) {
	body := `{"activationId": "a1b2", "response": {"status": "application error", "success": false, "result": {"error": "boom"}}}`

	_, err := parseActivation("f", []byte(body))
	assert.ErrorIs(t, err, common.ErrFunctionFailure)
	assert.Contains(t, err.Error(), "boom")
}

func TestEpochTimestampRoundTrip(t *testing.T) {
	var ts EpochTimestamp
	require.NoError(t, ts.UnmarshalJSON([]byte(`"1700000000.250000"`)))
	assert.Equal(t, time.Unix(1700000000, 250*int64(time.Millisecond)), ts.Time)

	data, err := ts.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"1700000000.250000"`, string(data))
}
