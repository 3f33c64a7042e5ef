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

package driver

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/vhive-serverless/replayer/pkg/common"
	"github.com/vhive-serverless/replayer/pkg/metric"
)

type OpenLoopState int32

const (
	Idle OpenLoopState = iota
	Dispatching
	Draining
	Collecting
	Done
)

func (s OpenLoopState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Dispatching:
		return "dispatching"
	case Draining:
		return "draining"
	case Collecting:
		return "collecting"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// openLoopEngine fires every entry at its scheduled offset without waiting for earlier invocations and
// resolves all handles once dispatching is over.
type openLoopEngine struct {
	driver      *Driver
	grace       time.Duration
	concurrency int

	state   atomic.Int32
	handles map[string][]*common.InvocationHandle
	phases  metric.Phases
}

func newOpenLoopEngine(driver *Driver, grace time.Duration, concurrency int) *openLoopEngine {
	if concurrency < 1 {
		concurrency = common.DefaultCollectionConcurrency
	}

	return &openLoopEngine{
		driver:      driver,
		grace:       grace,
		concurrency: concurrency,
		handles:     make(map[string][]*common.InvocationHandle),
	}
}

func (e *openLoopEngine) State() OpenLoopState {
	return OpenLoopState(e.state.Load())
}

func (e *openLoopEngine) setState(state OpenLoopState) {
	e.state.Store(int32(state))
	log.Infof("Open-loop replay: %s", state)

	if e.driver.observer != nil {
		e.driver.observer(state)
	}
}

func (e *openLoopEngine) run(ctx context.Context) []*common.InvocationResult {
	e.dispatch(ctx)

	e.setState(Draining)
	time.Sleep(e.grace)

	// already issued invocations are collected even if the replay was cancelled
	e.setState(Collecting)
	results := e.collect(context.WithoutCancel(ctx))

	e.setState(Done)
	return results
}

func (e *openLoopEngine) dispatch(ctx context.Context) {
	e.setState(Dispatching)

	schedule := e.driver.Configuration.Schedule
	triggers := e.driver.Configuration.Triggers

	origin := time.Now()
	e.phases.InvocationStart = origin

	for i, entry := range schedule {
		fireTime := origin.Add(entry.Offset)
		if !sleepUntil(ctx, fireTime) {
			log.Warnf("Replay cancelled - %d of %d invocations were not dispatched", len(schedule)-i, len(schedule))
			break
		}

		log.Tracef("Invoking %s at %d", entry.Function, fireTime.UnixNano())

		handle := triggers[entry.Function].AsyncInvoke(ctx, e.driver.payload(entry.Function))
		if handle == nil {
			handle = &common.InvocationHandle{Function: entry.Function, IssueTime: time.Now(), Failed: true,
				FailureReason: common.FailureReason(common.ErrTransportFailure, "no handle returned")}
		}
		handle.ScheduledTime = fireTime

		e.handles[entry.Function] = append(e.handles[entry.Function], handle)
	}

	dispatched := 0
	for _, handles := range e.handles {
		dispatched += len(handles)
	}

	e.phases.InvocationEnd = time.Now()
	log.Infof("Dispatched %d invocations in %v", dispatched, e.phases.InvocationEnd.Sub(origin))
}

func (e *openLoopEngine) collect(ctx context.Context) []*common.InvocationResult {
	e.phases.CollectionStart = time.Now()

	var results []*common.InvocationResult
	queue := common.NewLockFreeQueue[*common.InvocationHandle]()

	for _, function := range e.driver.Configuration.Functions {
		for _, handle := range e.handles[function] {
			if !handle.Issued() {
				log.Debugf("Invocation of %s was never issued - %s", function, handle.FailureReason)

				result := common.NewFailedResult(function, handle.IssueTime, handle.IssueTime, handle.FailureReason)
				result.Mode = common.OpenLoop
				results = append(results, result)

				continue
			}

			queue.Enqueue(handle)
		}
	}

	total := queue.Length()
	resolved := make(chan *common.InvocationResult, total)
	var processed int64

	log.Infof("Gathering %d function responses...", total)

	var wg sync.WaitGroup
	for i := 0; i < min(e.concurrency, total); i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for {
				handle, ok := queue.Dequeue()
				if !ok {
					return
				}

				result := e.driver.Configuration.Triggers[handle.Function].FetchResult(ctx, handle)
				if result == nil {
					result = common.NewFailedResult(handle.Function, handle.IssueTime, time.Now(),
						common.FailureReason(common.ErrTransportFailure, "no result returned"))
				}
				result.Function = handle.Function
				result.Mode = common.OpenLoop

				resolved <- result

				if done := atomic.AddInt64(&processed, 1); done%int64(e.concurrency) == 0 {
					log.Infof("Processed %d/%d async response gatherings", done, total)
				}
			}
		}()
	}

	wg.Wait()
	close(resolved)

	for result := range resolved {
		results = append(results, result)
	}

	e.phases.CollectionEnd = time.Now()
	log.Infof("Finished gathering async response answers")

	return results
}
