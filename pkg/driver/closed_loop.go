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
	"sort"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/vhive-serverless/replayer/pkg/common"
	"github.com/vhive-serverless/replayer/pkg/metric"
	"github.com/vhive-serverless/replayer/pkg/schedule"
)

// WorkerReport is everything a closed-loop worker produced. Workers share nothing while replaying and
// hand over their report exactly once.
type WorkerReport struct {
	Worker  int
	Results []*common.InvocationResult
	Success map[string]int
	Failure map[string]int

	Start time.Time
	End   time.Time
}

type closedLoopPool struct {
	driver  *Driver
	workers int

	reports []WorkerReport
	phases  metric.Phases
}

func newClosedLoopPool(driver *Driver, workers int) *closedLoopPool {
	return &closedLoopPool{
		driver:  driver,
		workers: workers,
	}
}

func (p *closedLoopPool) run(ctx context.Context) ([]*common.InvocationResult, []WorkerReport, error) {
	partitions, err := schedule.Partition(p.driver.Configuration.Schedule, p.workers)
	if err != nil {
		return nil, nil, err
	}

	reportChannel := make(chan WorkerReport, p.workers)

	p.phases.InvocationStart = time.Now()
	for worker, partition := range partitions {
		go p.replay(ctx, worker, partition, reportChannel)
	}

	p.reports = make([]WorkerReport, 0, p.workers)
	for i := 0; i < p.workers; i++ {
		report := <-reportChannel
		log.Debugf("Worker %d finished %d invocations in %v", report.Worker, len(report.Results), report.End.Sub(report.Start))

		p.reports = append(p.reports, report)
	}
	p.phases.InvocationEnd = time.Now()

	sort.Slice(p.reports, func(i, j int) bool {
		return p.reports[i].Worker < p.reports[j].Worker
	})

	var results []*common.InvocationResult
	for _, report := range p.reports {
		results = append(results, report.Results...)
	}

	return results, p.reports, nil
}

// replay issues the partition one synchronous invocation at a time. Each worker keeps its own origin.
func (p *closedLoopPool) replay(ctx context.Context, worker int, partition common.Schedule, reportChannel chan<- WorkerReport) {
	report := WorkerReport{
		Worker:  worker,
		Results: make([]*common.InvocationResult, 0, len(partition)),
		Success: make(map[string]int),
		Failure: make(map[string]int),
		Start:   time.Now(),
	}

	defer func() {
		report.End = time.Now()
		reportChannel <- report
	}()

	triggers := p.driver.Configuration.Triggers

	for i, entry := range partition {
		fireTime := report.Start.Add(entry.Offset)

		var correction time.Duration
		if now := time.Now(); now.Before(fireTime) {
			if !sleepUntil(ctx, fireTime) {
				log.Warnf("Worker %d cancelled - %d of %d invocations were not issued", worker, len(partition)-i, len(partition))
				return
			}
		} else {
			if ctx.Err() != nil {
				log.Warnf("Worker %d cancelled - %d of %d invocations were not issued", worker, len(partition)-i, len(partition))
				return
			}

			correction = now.Sub(fireTime)
		}

		result := triggers[entry.Function].SyncInvoke(ctx, p.driver.payload(entry.Function))
		if result == nil {
			result = common.NewFailedResult(entry.Function, fireTime, time.Now(),
				common.FailureReason(common.ErrTransportFailure, "no result returned"))
		}
		result.Function = entry.Function
		result.Mode = common.ClosedLoop
		result.LatencyCorrection = correction

		if result.Success {
			report.Success[entry.Function]++
		} else {
			report.Failure[entry.Function]++
			log.Debugf("Worker %d: invocation of %s failed - %s", worker, entry.Function, result.FailureReason)
		}

		report.Results = append(report.Results, result)
	}
}

// window spans all workers from the earliest start to the latest end.
func (p *closedLoopPool) window() *metric.ExperimentWindow {
	window := &metric.ExperimentWindow{}

	for _, report := range p.reports {
		window.EarliestBegin = common.MinTime(window.EarliestBegin, report.Start)
		window.LatestEnd = common.MaxTime(window.LatestEnd, report.End)
	}

	return window
}
