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
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/vhive-serverless/replayer/pkg/common"
)

// probeFunc asks the platform once for the result of an asynchronous invocation. It returns
// (nil, nil) while the result is not yet available and an error for terminal failures.
type probeFunc func(ctx context.Context) (*common.InvocationResult, error)

type resultPoller struct {
	interval time.Duration
	// timeout bounds the whole polling loop; zero waits forever.
	timeout time.Duration
}

func newResultPoller(interval time.Duration, timeout time.Duration) resultPoller {
	if interval <= 0 {
		interval = common.DefaultFetchPollInterval
	}

	return resultPoller{interval: interval, timeout: timeout}
}

func (p resultPoller) poll(ctx context.Context, handle *common.InvocationHandle, probe probeFunc) *common.InvocationResult {
	start := time.Now()

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	for attempt := 1; ; attempt++ {
		result, err := probe(ctx)
		if ctx.Err() != nil {
			return p.expired(ctx, handle, start)
		}

		if err != nil {
			log.Debugf("Fetching result %s of %s failed - %v", handle.RequestID, handle.Function, err)
			return failedResult(handle.Function, handle.RequestID, start, err)
		}
		if result != nil {
			log.Tracef("(Fetched)\t %s: %s after %d attempts", handle.Function, handle.RequestID, attempt)
			return result
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(p.interval)

		select {
		case <-ctx.Done():
			return p.expired(ctx, handle, start)
		case <-timer.C:
		}
	}
}

func (p resultPoller) expired(ctx context.Context, handle *common.InvocationHandle, start time.Time) *common.InvocationResult {
	err := fmt.Errorf("%w: %v", common.ErrTransportFailure, ctx.Err())
	if p.timeout > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w: no result for %s after %v", common.ErrFetchTimeout, handle.RequestID, p.timeout)
	}

	log.Debugf("Gave up on result %s of %s - %v", handle.RequestID, handle.Function, err)
	return failedResult(handle.Function, handle.RequestID, start, err)
}
