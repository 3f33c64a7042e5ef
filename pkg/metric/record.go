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

package metric

import (
	"github.com/vhive-serverless/replayer/pkg/common"
)

// ExecutionRecord is the per-invocation CSV row.
type ExecutionRecord struct {
	Mode          string `csv:"mode"`
	Function      string `csv:"function"`
	RequestID     string `csv:"request_id"`
	Success       bool   `csv:"success"`
	FailureReason string `csv:"failure_reason"`

	Begin string `csv:"begin"`
	End   string `csv:"end"`

	WaitTimeMs float64 `csv:"wait_time_ms"`
	InitTimeMs float64 `csv:"init_time_ms"`
	ExecMs     float64 `csv:"exec_ms"`
	E2EMs      float64 `csv:"e2e_ms"`
	ColdStart  bool    `csv:"cold_start"`

	LatencyCorrectionMs float64 `csv:"latency_correction_ms"`
}

func NewExecutionRecord(result *common.InvocationResult) ExecutionRecord {
	record := ExecutionRecord{
		Mode:                string(result.Mode),
		Function:            result.Function,
		RequestID:           result.RequestID,
		Success:             result.Success,
		FailureReason:       result.FailureReason,
		LatencyCorrectionMs: common.DurationToMs(result.LatencyCorrection),
	}

	if !result.Begin.IsZero() {
		record.Begin = common.FormatEpoch(result.Begin)
	}
	if !result.End.IsZero() {
		record.End = common.FormatEpoch(result.End)
	}

	if result.Success {
		record.WaitTimeMs = result.WaitTimeMs
		record.InitTimeMs = result.InitMs()
		record.ExecMs = result.ExecMs()
		record.E2EMs = result.E2EMs()
		record.ColdStart = result.IsCold()
	}

	return record
}
