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

package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/vhive-serverless/replayer/pkg/common"
	"github.com/vhive-serverless/replayer/pkg/config"
	"github.com/vhive-serverless/replayer/pkg/driver"
	"github.com/vhive-serverless/replayer/pkg/driver/clients"
	"github.com/vhive-serverless/replayer/pkg/generator"
	"github.com/vhive-serverless/replayer/pkg/metric"
	"github.com/vhive-serverless/replayer/pkg/schedule"

	log "github.com/sirupsen/logrus"

	tracer "github.com/ease-lab/vhive/utils/tracing/go"
)

const (
	zipkinAddr = "http://localhost:9411/api/v2/spans"
)

var (
	configPath = flag.String("config", "cmd/config.json", "Path to loader configuration file")
	verbosity  = flag.String("verbosity", "info", "Logging verbosity - choose from [info, debug, trace]")
	mode       = flag.String("mode", "", "Overrides the replay mode of the configuration - choose from [open, closed]")

	generate        = flag.String("generate", "", "Generate a schedule into ScheduleConfigPath instead of replaying - choose from [trace, poisson]")
	tracePath       = flag.String("trace", "data/traces/invocations.csv", "Azure invocation trace used by -generate trace")
	traceDuration   = flag.Int("duration", 1, "Minutes of the trace (-generate trace) or of the arrival process (-generate poisson)")
	iatDistribution = flag.String("iat", "equidistant", "IAT distribution inside a trace minute - choose from [equidistant, uniform, exponential]")
	scale           = flag.Float64("scale", 1, "Factor applied to every per-minute invocation count")
	lambda          = flag.Int("lambda", 60, "Poisson arrival rate per minute")
	weights         = flag.String("weights", "", "Function weights in percent for -generate poisson, e.g. matmul=50,dynamic-html=50")

	process = flag.Bool("process", false, "Re-analyse the result sets in OutputPathPrefix without invoking anything")
)

func setupLogging() {
	log.SetFormatter(&log.TextFormatter{
		TimestampFormat: time.StampMilli,
		FullTimestamp:   true,
	})
	log.SetOutput(os.Stdout)

	switch *verbosity {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "trace":
		log.SetLevel(log.TraceLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}
}

func main() {
	flag.Parse()
	setupLogging()

	cfg := config.ReadConfigurationFile(*configPath)
	if *mode != "" {
		cfg.Mode = strings.ToLower(*mode)
	}

	if err := config.CheckConfiguration(&cfg); err != nil {
		log.Fatal(err)
	}

	switch {
	case *generate != "":
		runGenerateMode(&cfg)
	case *process:
		runProcessMode(&cfg)
	default:
		runReplayMode(&cfg)
	}
}

func runReplayMode(cfg *config.LoaderConfiguration) {
	if cfg.EnableZipkinTracing {
		shutdown, err := tracer.InitBasicTracer(zipkinAddr, "loader")
		if err != nil {
			log.Print(err)
		}

		defer shutdown()
	}

	scheduleConfig, err := schedule.ReadConfiguration(cfg.ScheduleConfigPath)
	if err != nil {
		log.Fatal(err)
	}

	s, err := schedule.Build(scheduleConfig)
	if err != nil {
		log.Fatal(err)
	}

	functions := scheduleConfig.FunctionNames()

	log.Infof("Schedule contains %d invocations over %v:", len(s), schedule.Duration(s))
	counts := schedule.CountPerFunction(s)
	for _, function := range functions {
		log.Infof("\t%s: %d", function, counts[function])
	}

	triggers := clients.CreateTriggers(cfg, functions)
	defer clients.CloseTriggers(triggers)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	experimentDriver := driver.NewDriver(&driver.DriverConfiguration{
		LoaderConfiguration: cfg,
		Functions:           functions,
		Schedule:            s,
		Triggers:            triggers,
		Payloads:            cfg.FunctionPayloads,
	})

	report, err := experimentDriver.RunExperiment(ctx)
	if err := writeReport(os.Stdout, report, err); err != nil {
		log.Error(err)
	}
}

// writeReport prints the report even when the run ended with an error, e.g. a failed export, and
// returns the first error encountered.
func writeReport(w io.Writer, report *metric.Report, runErr error) error {
	if report != nil {
		if err := report.WriteText(w); err != nil && runErr == nil {
			return err
		}
	}

	return runErr
}

func runProcessMode(cfg *config.LoaderConfiguration) {
	if cfg.OutputPathPrefix == "" {
		log.Fatal("OutputPathPrefix must point to a directory with result sets.")
	}

	scheduleConfig, err := schedule.ReadConfiguration(cfg.ScheduleConfigPath)
	if err != nil {
		log.Fatal(err)
	}
	functions := scheduleConfig.FunctionNames()

	results, replayWindow, err := metric.ReadResults(cfg.OutputPathPrefix, functions)
	if err != nil {
		log.Fatal(err)
	}

	report := metric.Aggregate(cfg.ReplayMode(), functions, results)
	report.ReplayWindow = replayWindow
	if err := writeReport(os.Stdout, report, nil); err != nil {
		log.Error(err)
	}

	if err := driver.WriteOutputs(cfg.OutputPathPrefix, report, results); err != nil {
		log.Fatal(err)
	}
}

func runGenerateMode(cfg *config.LoaderConfiguration) {
	scheduleGenerator := generator.NewScheduleGenerator(cfg.Seed)

	var scheduleConfig *schedule.Configuration
	var err error

	switch *generate {
	case "trace":
		var distribution generator.IatDistribution
		distribution, err = generator.ParseIatDistribution(*iatDistribution)
		if err != nil {
			log.Fatal(err)
		}

		var counts []generator.FunctionCounts
		counts, err = generator.ReadInvocationCounts(*tracePath, *traceDuration)
		if err != nil {
			log.Fatal(err)
		}

		scheduleConfig = scheduleGenerator.GenerateFromCounts(counts, distribution, *scale)
	case "poisson":
		names, probabilities := parseWeights(*weights)

		scheduleConfig, err = scheduleGenerator.GeneratePoisson(*lambda, *traceDuration, names, probabilities)
		if err != nil {
			log.Fatal(err)
		}
	default:
		log.Fatalf("Unsupported schedule generator %q.", *generate)
	}

	writeSchedule(cfg.ScheduleConfigPath, scheduleConfig)
}

func writeSchedule(path string, scheduleConfig *schedule.Configuration) {
	s, err := schedule.Build(scheduleConfig)
	if err != nil {
		log.Fatal(err)
	}

	if err := schedule.WriteConfiguration(path, scheduleConfig); err != nil {
		log.Fatal(err)
	}

	duration := schedule.Duration(s)
	if duration > 0 {
		log.Infof("Theoretical request rate: %.2f invocations/second", float64(len(s))/duration.Seconds())
	}
	log.Infof("Wrote %d invocations of %d functions to %s", len(s), len(scheduleConfig.Functions), path)
}

func parseWeights(value string) ([]string, []float64) {
	var names []string
	var probabilities []float64

	for _, pair := range strings.Split(value, ",") {
		if pair == "" {
			continue
		}

		name, weight, found := strings.Cut(pair, "=")
		if !found {
			log.Fatalf("Invalid function weight %q.", pair)
		}

		probability, err := strconv.ParseFloat(weight, 64)
		common.Check(err)

		names = append(names, strings.TrimSpace(name))
		probabilities = append(probabilities, probability)
	}

	return names, probabilities
}
