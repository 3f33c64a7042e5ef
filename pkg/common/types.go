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

package common

import (
	"encoding/json"
	"time"
)

// ScheduleEntry is a single scheduled invocation, Offset nanoseconds after the schedule origin.
type ScheduleEntry struct {
	Offset   time.Duration
	Function string
	// Index is the position of the entry inside the merged schedule.
	Index int
}

// Schedule is globally sorted by Offset and never mutated once built.
type Schedule []ScheduleEntry

// InvocationHandle correlates an asynchronous invocation with its eventual result.
type InvocationHandle struct {
	RequestID string
	Function  string

	ScheduledTime time.Time
	IssueTime     time.Time

	// Failed is set when issuance itself failed; RequestID is empty in that case.
	Failed        bool
	FailureReason string
}

// Issued reports whether the platform knows about the invocation.
func (h *InvocationHandle) Issued() bool {
	return h != nil && h.RequestID != ""
}

type InvocationResult struct {
	Function  string
	RequestID string
	Mode      ReplayMode

	Success       bool
	FailureReason string

	Begin time.Time
	End   time.Time

	WaitTimeMs float64
	// InitTimeMs is only present on a cold start.
	InitTimeMs *float64

	// LatencyCorrection is how far behind its target fire time a closed-loop worker was when it issued
	// the request. It is never subtracted from the measured fields.
	LatencyCorrection time.Duration

	Payload json.RawMessage
}

func (r *InvocationResult) IsCold() bool {
	return r.InitTimeMs != nil
}

// ExecMs is the execution duration derived from the reported begin and end timestamps.
func (r *InvocationResult) ExecMs() float64 {
	return float64(r.End.Sub(r.Begin)) / float64(time.Millisecond)
}

func (r *InvocationResult) InitMs() float64 {
	if r.InitTimeMs == nil {
		return 0
	}

	return *r.InitTimeMs
}

// E2EMs is queueing + initialization + execution.
func (r *InvocationResult) E2EMs() float64 {
	return r.WaitTimeMs + r.InitMs() + r.ExecMs()
}

// NewFailedResult creates a failure-flagged result bounding only the attempt itself.
func NewFailedResult(function string, begin, end time.Time, reason string) *InvocationResult {
	return &InvocationResult{
		Function:      function,
		Success:       false,
		FailureReason: reason,
		Begin:         begin,
		End:           end,
	}
}

func Float64Ptr(v float64) *float64 {
	return &v
}
