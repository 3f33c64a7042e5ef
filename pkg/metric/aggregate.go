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
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/montanaflynn/stats"
	log "github.com/sirupsen/logrus"
	"github.com/vhive-serverless/replayer/pkg/common"
	"gonum.org/v1/gonum/stat"
)

type FunctionStats struct {
	Function string

	SuccessCount int
	FailureCount int
	WarmCount    int
	ColdCount    int

	// Means and percentiles are only computed over successful invocations.
	MeanWaitMs float64
	MeanInitMs float64
	MeanExecMs float64
	MeanE2EMs  float64
	P50E2EMs   float64
	P99E2EMs   float64

	MeanLatencyCorrectionMs float64
}

func (s *FunctionStats) Attempted() int {
	return s.SuccessCount + s.FailureCount
}

type ExperimentWindow struct {
	EarliestBegin time.Time
	LatestEnd     time.Time
}

func (w ExperimentWindow) IsZero() bool {
	return w.EarliestBegin.IsZero() || w.LatestEnd.IsZero()
}

func (w ExperimentWindow) Duration() time.Duration {
	if w.IsZero() {
		return 0
	}

	return w.LatestEnd.Sub(w.EarliestBegin)
}

func (w *ExperimentWindow) extend(begin time.Time, end time.Time) {
	w.EarliestBegin = common.MinTime(w.EarliestBegin, begin)
	w.LatestEnd = common.MaxTime(w.LatestEnd, end)
}

// Phases records when each phase of a run started and ended.
type Phases struct {
	InvocationStart time.Time
	InvocationEnd   time.Time
	CollectionStart time.Time
	CollectionEnd   time.Time
}

type Report struct {
	Mode      common.ReplayMode
	Functions []FunctionStats

	// Window spans all successful invocations.
	Window ExperimentWindow
	// ReplayWindow spans the closed-loop workers from the earliest start to the latest end. When set,
	// throughput is computed over it instead of Window.
	ReplayWindow *ExperimentWindow

	Phases Phases

	TotalSuccess int
	TotalFailure int
}

func (r *Report) Attempted() int {
	return r.TotalSuccess + r.TotalFailure
}

func (r *Report) ThroughputWindow() ExperimentWindow {
	if r.ReplayWindow != nil {
		return *r.ReplayWindow
	}

	return r.Window
}

// Throughput is the number of successful invocations per second of the throughput window.
func (r *Report) Throughput() (float64, error) {
	if r.TotalSuccess == 0 {
		return 0, fmt.Errorf("%w: no successful invocations", common.ErrPartialWindow)
	}

	duration := r.ThroughputWindow().Duration()
	if duration <= 0 {
		return 0, fmt.Errorf("%w: window duration is %v", common.ErrPartialWindow, duration)
	}

	return float64(r.TotalSuccess) / duration.Seconds(), nil
}

// Aggregate computes per-function and experiment-wide statistics. Functions are reported in the given
// order; functions that only appear in results follow in alphabetical order.
func Aggregate(mode common.ReplayMode, functions []string, results []*common.InvocationResult) *Report {
	report := &Report{Mode: mode}

	perFunction := make(map[string][]*common.InvocationResult)
	for _, result := range results {
		perFunction[result.Function] = append(perFunction[result.Function], result)
	}

	order := append([]string{}, functions...)
	known := make(map[string]bool, len(functions))
	for _, function := range functions {
		known[function] = true
	}

	var unknown []string
	for function := range perFunction {
		if !known[function] {
			unknown = append(unknown, function)
		}
	}
	sort.Strings(unknown)
	order = append(order, unknown...)

	for _, function := range order {
		functionStats := aggregateFunction(function, perFunction[function], &report.Window)

		report.TotalSuccess += functionStats.SuccessCount
		report.TotalFailure += functionStats.FailureCount
		report.Functions = append(report.Functions, functionStats)
	}

	return report
}

func aggregateFunction(function string, results []*common.InvocationResult, window *ExperimentWindow) FunctionStats {
	functionStats := FunctionStats{Function: function}

	var wait, init, exec, e2e, correction []float64
	for _, result := range results {
		if !result.Success {
			functionStats.FailureCount++
			continue
		}

		functionStats.SuccessCount++
		if result.IsCold() {
			functionStats.ColdCount++
		} else {
			functionStats.WarmCount++
		}

		wait = append(wait, result.WaitTimeMs)
		init = append(init, result.InitMs())
		exec = append(exec, result.ExecMs())
		e2e = append(e2e, result.E2EMs())
		correction = append(correction, common.DurationToMs(result.LatencyCorrection))

		window.extend(result.Begin, result.End)
	}

	if functionStats.SuccessCount == 0 {
		log.Debugf("No successful invocations of %s - skipping means", function)
		return functionStats
	}

	functionStats.MeanWaitMs = stat.Mean(wait, nil)
	functionStats.MeanInitMs = stat.Mean(init, nil)
	functionStats.MeanExecMs = stat.Mean(exec, nil)
	functionStats.MeanE2EMs = stat.Mean(e2e, nil)
	functionStats.MeanLatencyCorrectionMs = stat.Mean(correction, nil)

	functionStats.P50E2EMs, _ = stats.PercentileNearestRank(e2e, 50)
	functionStats.P99E2EMs, _ = stats.PercentileNearestRank(e2e, 99)

	return functionStats
}

func percentage(part int, total int) float64 {
	if total == 0 {
		return 0
	}

	return 100 * float64(part) / float64(total)
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "N/A"
	}

	return t.Format("2006-01-02 15:04:05.000000")
}

// WriteText writes the human-readable experiment summary.
func (r *Report) WriteText(w io.Writer) error {
	p := &textPrinter{w: w}

	p.printf("Done with %s-loop schedule experiment\n", r.Mode)
	p.printf("Start =  %d\n", r.Phases.InvocationStart.UnixNano())
	p.printf("End   =  %d\n", r.Phases.InvocationEnd.UnixNano())
	p.printf("Actual scheduled duration was %.3f seconds.\n", r.Phases.InvocationEnd.Sub(r.Phases.InvocationStart).Seconds())
	if !r.Phases.CollectionStart.IsZero() {
		p.printf("Started collecting data at %d\n", r.Phases.CollectionStart.UnixNano())
		p.printf("Done collecting data at    %d\n", r.Phases.CollectionEnd.UnixNano())
	}

	for _, s := range r.Functions {
		p.printf("***********************************************\n")
		p.printf("Statistics for %s\n", s.Function)
		p.printf("%d successes (%.2f%%)\n", s.SuccessCount, percentage(s.SuccessCount, s.Attempted()))
		p.printf("%d failures (%.2f%%)\n", s.FailureCount, percentage(s.FailureCount, s.Attempted()))

		if s.SuccessCount == 0 {
			p.printf("No successful invocations.\n")
			continue
		}

		p.printf("Average queueing latency: %.3f\n", s.MeanWaitMs)
		p.printf("Average initialization latency: %.3f\n", s.MeanInitMs)
		p.printf("Average function execution: %.3f\n", s.MeanExecMs)
		p.printf("Num warm: %d (%.2f%%)\n", s.WarmCount, percentage(s.WarmCount, s.SuccessCount))
		p.printf("Num cold: %d (%.2f%%)\n", s.ColdCount, percentage(s.ColdCount, s.SuccessCount))
		p.printf("End to end latency: %.3f (p50 %.3f, p99 %.3f)\n", s.MeanE2EMs, s.P50E2EMs, s.P99E2EMs)
		if r.Mode == common.ClosedLoop {
			p.printf("Average latency correction: %.3f\n", s.MeanLatencyCorrectionMs)
		}
	}
	p.printf("***********************************************\n")

	switch {
	case r.Attempted() == 0:
		p.printf("No invocations attempted\n")
	case r.TotalSuccess == 0:
		p.printf("All %d invocations failed\n", r.TotalFailure)
	}

	window := r.ThroughputWindow()
	p.printf("Actual invocation start: %s\n", formatTimestamp(window.EarliestBegin))
	p.printf("Actual invocation end: %s\n", formatTimestamp(window.LatestEnd))
	p.printf("Num successful invocations %d\n", r.TotalSuccess)

	if throughput, err := r.Throughput(); err != nil {
		p.printf("Actual invocations/second: N/A (%v)\n", err)
	} else {
		p.printf("Actual invocations/second: %.3f\n", throughput)
	}

	return p.err
}

// textPrinter remembers the first write error.
type textPrinter struct {
	w   io.Writer
	err error
}

func (p *textPrinter) printf(format string, args ...interface{}) {
	if p.err != nil {
		return
	}

	_, p.err = fmt.Fprintf(p.w, format, args...)
}
