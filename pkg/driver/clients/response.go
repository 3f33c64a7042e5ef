/*
 * MIT License
 *
 * Copyright (c) 2023 EASL and the vHive community
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

package clients

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/vhive-serverless/replayer/pkg/common"
)

// EpochTimestamp accepts fractional epoch seconds either as a JSON string ("%s.%f") or as a number.
type EpochTimestamp struct {
	time.Time
}

func (t *EpochTimestamp) UnmarshalJSON(data []byte) error {
	raw := string(bytes.TrimSpace(data))
	if raw == "null" || raw == "" {
		return nil
	}

	if raw[0] == '"' {
		unquoted, err := strconv.Unquote(raw)
		if err != nil {
			return err
		}
		raw = unquoted
	}

	parsed, err := common.ParseEpoch(raw)
	if err != nil {
		asFloat, floatErr := strconv.ParseFloat(raw, 64)
		if floatErr != nil {
			return err
		}
		parsed = common.EpochFromFloat(asFloat)
	}

	t.Time = parsed
	return nil
}

func (t EpochTimestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(common.FormatEpoch(t.Time))
}

// FunctionResponse is the envelope returned by the benchmark function wrappers.
type FunctionResponse struct {
	Begin     EpochTimestamp  `json:"begin"`
	End       EpochTimestamp  `json:"end"`
	WaitTime  float64         `json:"waitTime"`
	InitTime  *float64        `json:"initTime,omitempty"`
	RequestID string          `json:"request_id"`
	Result    json.RawMessage `json:"result,omitempty"`
}

type activationAnnotation struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// ActivationRecord is the subset of an OpenWhisk activation the replayer reads.
type ActivationRecord struct {
	ActivationID string                 `json:"activationId"`
	Annotations  []activationAnnotation `json:"annotations"`
	Response     struct {
		Status  string          `json:"status"`
		Success bool            `json:"success"`
		Result  json.RawMessage `json:"result"`
	} `json:"response"`
}

func (a *ActivationRecord) annotation(key string) (float64, bool) {
	for _, annotation := range a.Annotations {
		if annotation.Key != key {
			continue
		}

		var value float64
		if err := json.Unmarshal(annotation.Value, &value); err != nil {
			return 0, false
		}

		return value, true
	}

	return 0, false
}

// parseFunctionResponse decodes a flat envelope into a successful result.
func parseFunctionResponse(function string, body []byte) (*common.InvocationResult, error) {
	var response FunctionResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrResultParse, err)
	}
	if response.Begin.IsZero() || response.End.IsZero() {
		return nil, fmt.Errorf("%w: response carries no begin/end timestamps", common.ErrResultParse)
	}

	return &common.InvocationResult{
		Function:   function,
		RequestID:  response.RequestID,
		Success:    true,
		Begin:      response.Begin.Time,
		End:        response.End.Time,
		WaitTimeMs: response.WaitTime,
		InitTimeMs: response.InitTime,
		Payload:    json.RawMessage(body),
	}, nil
}

// parseActivation decodes an activation record. Queueing and initialization times come from the
// activation annotations; begin and end come from the function output.
func parseActivation(function string, body []byte) (*common.InvocationResult, error) {
	var activation ActivationRecord
	if err := json.Unmarshal(body, &activation); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrResultParse, err)
	}

	if !activation.Response.Success {
		return nil, fmt.Errorf("%w: activation %s ended with status %q: %s", common.ErrFunctionFailure,
			activation.ActivationID, activation.Response.Status, string(activation.Response.Result))
	}

	result, err := parseFunctionResponse(function, activation.Response.Result)
	if err != nil {
		return nil, err
	}

	if result.RequestID == "" {
		result.RequestID = activation.ActivationID
	}
	if waitTime, ok := activation.annotation("waitTime"); ok {
		result.WaitTimeMs = waitTime
	}
	if initTime, ok := activation.annotation("initTime"); ok {
		result.InitTimeMs = common.Float64Ptr(initTime)
	}

	return result, nil
}

func failedResult(function string, requestID string, begin time.Time, err error) *common.InvocationResult {
	result := common.NewFailedResult(function, begin, time.Now(), err.Error())
	result.RequestID = requestID

	return result
}

func failedHandle(function string, issued time.Time, err error) *common.InvocationHandle {
	return &common.InvocationHandle{
		Function:      function,
		IssueTime:     issued,
		Failed:        true,
		FailureReason: err.Error(),
	}
}
