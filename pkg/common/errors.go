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
	"errors"
	"fmt"
)

var (
	// ErrTransportFailure marks issuance or fetch failures at the process or network layer.
	ErrTransportFailure = errors.New("transport failure")
	// ErrResultParse marks responses that could not be decoded into the expected envelope.
	ErrResultParse = errors.New("result parse error")
	// ErrFunctionFailure marks responses in which the platform reports an unsuccessful execution.
	ErrFunctionFailure = errors.New("function failure")
	// ErrFetchTimeout marks results that did not become available within the configured bound.
	ErrFetchTimeout = errors.New("fetch timeout")
	// ErrPartialWindow is returned when throughput cannot be computed.
	ErrPartialWindow = errors.New("throughput not computable")
)

// ScheduleConfigError rejects a schedule before any replay begins.
type ScheduleConfigError struct {
	Function string
	Reason   string
	Err      error
}

func (e *ScheduleConfigError) Error() string {
	msg := "invalid schedule configuration"
	if e.Function != "" {
		msg += fmt.Sprintf(" (function %s)", e.Function)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *ScheduleConfigError) Unwrap() error {
	return e.Err
}

// FailureReason formats a failure reason carrying its class, e.g. "transport failure: exit status 1".
func FailureReason(class error, detail interface{}) string {
	if detail == nil {
		return class.Error()
	}

	return fmt.Sprintf("%s: %v", class, detail)
}
