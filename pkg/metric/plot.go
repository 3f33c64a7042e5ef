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

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// PlotBreakdown draws the mean queueing, initialization and execution latency of every function with at
// least one successful invocation as a stacked bar chart.
func PlotBreakdown(report *Report, path string) error {
	var names []string
	var queueing, initialization, execution plotter.Values

	for _, s := range report.Functions {
		if s.SuccessCount == 0 {
			continue
		}

		names = append(names, s.Function)
		queueing = append(queueing, s.MeanWaitMs)
		initialization = append(initialization, s.MeanInitMs)
		execution = append(execution, s.MeanExecMs)
	}

	if len(names) == 0 {
		log.Warnf("No successful invocations - skipping %s", path)
		return nil
	}

	p := plot.New()
	p.Title.Text = "Timing breakdown per benchmark"
	p.Y.Label.Text = "Latency [ms]"
	p.Y.Min = 0

	width := vg.Points(20)

	var previous *plotter.BarChart
	for i, series := range []struct {
		label  string
		values plotter.Values
	}{
		{label: "Queueing", values: queueing},
		{label: "Initialization", values: initialization},
		{label: "Execution", values: execution},
	} {
		bars, err := plotter.NewBarChart(series.values, width)
		if err != nil {
			return fmt.Errorf("failed to create %s bars: %w", series.label, err)
		}

		bars.LineStyle.Width = vg.Length(0)
		bars.Color = plotutil.Color(i)
		if previous != nil {
			bars.StackOn(previous)
		}

		p.Add(bars)
		p.Legend.Add(series.label, bars)
		previous = bars
	}

	p.Legend.Top = true
	p.NominalX(names...)

	width = vg.Length(len(names))*vg.Centimeter + 4*vg.Inch
	return p.Save(width, 4*vg.Inch, path)
}
