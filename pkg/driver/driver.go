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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/vhive-serverless/replayer/pkg/common"
	"github.com/vhive-serverless/replayer/pkg/config"
	"github.com/vhive-serverless/replayer/pkg/driver/clients"
	"github.com/vhive-serverless/replayer/pkg/metric"
)

type DriverConfiguration struct {
	LoaderConfiguration *config.LoaderConfiguration

	// Functions lists the functions in registration order; reports follow this order.
	Functions []string
	Schedule  common.Schedule
	Triggers  map[string]clients.Trigger
	Payloads  map[string]json.RawMessage
}

type Driver struct {
	Configuration *DriverConfiguration

	// Results holds every resolved invocation of the last run.
	Results []*common.InvocationResult
	// WorkerReports is only populated by closed-loop runs.
	WorkerReports []WorkerReport

	// observer is notified about open-loop state transitions.
	observer func(OpenLoopState)
}

func NewDriver(driverConfig *DriverConfiguration) *Driver {
	return &Driver{
		Configuration: driverConfig,
	}
}

func (d *Driver) payload(function string) []byte {
	if payload, ok := d.Configuration.Payloads[function]; ok && len(payload) > 0 {
		return payload
	}

	return []byte("{}")
}

// validate rejects schedules that reference functions without a trigger.
func (d *Driver) validate() error {
	registered := make(map[string]bool, len(d.Configuration.Functions))
	for _, function := range d.Configuration.Functions {
		registered[function] = true
	}

	for _, entry := range d.Configuration.Schedule {
		if !registered[entry.Function] {
			return &common.ScheduleConfigError{Function: entry.Function, Reason: "function is not registered"}
		}
		if _, ok := d.Configuration.Triggers[entry.Function]; !ok {
			return &common.ScheduleConfigError{Function: entry.Function, Reason: "no trigger for function"}
		}
	}

	return nil
}

// RunExperiment replays the schedule in the configured mode, aggregates the results and, when an output
// directory is configured, exports them.
func (d *Driver) RunExperiment(ctx context.Context) (*metric.Report, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}

	cfg := d.Configuration.LoaderConfiguration
	mode := cfg.ReplayMode()

	log.Infof("Replaying %d invocations of %d functions in %s-loop mode", len(d.Configuration.Schedule), len(d.Configuration.Functions), mode)

	var phases metric.Phases
	var replayWindow *metric.ExperimentWindow

	switch mode {
	case common.OpenLoop:
		engine := newOpenLoopEngine(d, cfg.CollectionGrace(), cfg.CollectionConcurrency)
		d.Results = engine.run(ctx)
		phases = engine.phases
	case common.ClosedLoop:
		pool := newClosedLoopPool(d, cfg.Workers)

		results, reports, err := pool.run(ctx)
		if err != nil {
			return nil, err
		}

		d.Results, d.WorkerReports = results, reports
		phases = pool.phases
		replayWindow = pool.window()
	default:
		return nil, fmt.Errorf("unsupported replay mode %q", mode)
	}

	report := metric.Aggregate(mode, d.Configuration.Functions, d.Results)
	report.Phases = phases
	report.ReplayWindow = replayWindow

	log.Infof("Trace has finished executing function invocation driver")
	log.Infof("Number of successful invocations: \t%d", report.TotalSuccess)
	log.Infof("Number of failed invocations: \t%d", report.TotalFailure)

	if report.Attempted() > 0 {
		failureRatio := float64(report.TotalFailure) / float64(report.Attempted())
		if failureRatio > common.FailedWarnThreshold {
			log.Warnf("%.2f%% of invocations failed", 100*failureRatio)
		}
	}

	if cfg.OutputPathPrefix != "" {
		if err := d.export(cfg.OutputPathPrefix, report); err != nil {
			return report, err
		}
	}

	return report, nil
}

func (d *Driver) export(directory string, report *metric.Report) error {
	if err := os.MkdirAll(directory, 0755); err != nil {
		return err
	}

	end := report.Phases.CollectionEnd
	if end.IsZero() {
		end = report.Phases.InvocationEnd
	}

	if err := metric.WriteResultSets(directory, d.Configuration.Functions, d.Results, report.Phases.InvocationStart, end, report.ReplayWindow); err != nil {
		return fmt.Errorf("failed to write result sets: %w", err)
	}

	return WriteOutputs(directory, report, d.Results)
}

// WriteOutputs writes the text report, the per-invocation CSV and the latency breakdown chart.
func WriteOutputs(directory string, report *metric.Report, results []*common.InvocationResult) error {
	if err := metric.WriteTextReport(filepath.Join(directory, "results_log.txt"), report); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := metric.WriteExecutionRecords(filepath.Join(directory, "invocations.csv"), results); err != nil {
		return fmt.Errorf("failed to write execution records: %w", err)
	}
	if err := metric.PlotBreakdown(report, filepath.Join(directory, "results.png")); err != nil {
		return fmt.Errorf("failed to plot latency breakdown: %w", err)
	}

	log.Infof("Results written to %s", directory)
	return nil
}

// sleepUntil suspends until t and reports false if ctx was cancelled first.
func sleepUntil(ctx context.Context, t time.Time) bool {
	wait := time.Until(t)
	if wait <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
