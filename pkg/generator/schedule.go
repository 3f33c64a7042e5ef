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

package generator

import (
	"fmt"
	"math"
	"sort"

	log "github.com/sirupsen/logrus"
	"github.com/vhive-serverless/replayer/pkg/common"
	"github.com/vhive-serverless/replayer/pkg/schedule"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

type IatDistribution int

const (
	Exponential IatDistribution = iota
	Uniform
	Equidistant
)

func ParseIatDistribution(name string) (IatDistribution, error) {
	switch name {
	case "exponential":
		return Exponential, nil
	case "uniform":
		return Uniform, nil
	case "equidistant", "":
		return Equidistant, nil
	default:
		return 0, fmt.Errorf("unsupported IAT distribution %q", name)
	}
}

// FunctionCounts is the number of invocations a function receives in each minute of the trace.
type FunctionCounts struct {
	Name                 string
	InvocationsPerMinute []int
}

type ScheduleGenerator struct {
	iatRand *rand.Rand
	src     rand.Source
}

func NewScheduleGenerator(seed int64) *ScheduleGenerator {
	src := rand.NewSource(uint64(seed))

	return &ScheduleGenerator{
		iatRand: rand.New(src),
		src:     src,
	}
}

//////////////////////////////////////////////////
// PER-MINUTE COUNTS
//////////////////////////////////////////////////

// generateMinute places numberOfInvocations offsets inside the minute starting at origin.
func (s *ScheduleGenerator) generateMinute(origin int64, numberOfInvocations int, iatDistribution IatDistribution) []int64 {
	if numberOfInvocations <= 0 {
		return nil
	}

	offsets := make([]int64, 0, numberOfInvocations)

	switch iatDistribution {
	case Equidistant:
		interval := int64(common.OneMinuteInNanoseconds) / int64(numberOfInvocations)
		for i := 0; i < numberOfInvocations; i++ {
			offsets = append(offsets, origin+interval*int64(i))
		}
	case Uniform:
		for i := 0; i < numberOfInvocations; i++ {
			offsets = append(offsets, origin+s.iatRand.Int63n(common.OneMinuteInNanoseconds))
		}
		sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })
	case Exponential:
		// NOTE: Serverless in the Wild - pg. 6, paragraph 1
		exponential := distuv.Exponential{Rate: 1, Src: s.src}

		iats := make([]float64, numberOfInvocations)
		totalDuration := 0.0
		for i := range iats {
			iats[i] = exponential.Rand()
			totalDuration += iats[i]
		}

		// first invocation at the beginning of the minute, the rest scaled to fit in [0, 60s)
		current := 0.0
		for i := 0; i < numberOfInvocations; i++ {
			offsets = append(offsets, origin+int64(current))
			current += iats[i] / totalDuration * common.OneMinuteInNanoseconds
		}
	default:
		log.Fatal("Unsupported IAT distribution.")
	}

	return offsets
}

// GenerateFromCounts turns per-minute invocation counts into a schedule configuration. Every count is
// multiplied by scale and truncated; minutes without invocations still advance the clock.
func (s *ScheduleGenerator) GenerateFromCounts(functions []FunctionCounts, iatDistribution IatDistribution, scale float64) *schedule.Configuration {
	cfg := &schedule.Configuration{}

	for _, function := range functions {
		trace := schedule.FunctionTrace{Name: function.Name, Invocations: []int64{}}

		for minute, count := range function.InvocationsPerMinute {
			origin := int64(minute) * common.OneMinuteInNanoseconds
			scaled := int(float64(count) * scale)

			trace.Invocations = append(trace.Invocations, s.generateMinute(origin, scaled, iatDistribution)...)
		}

		log.Debugf("%s: %d invocations in %d minutes", function.Name, len(trace.Invocations), len(function.InvocationsPerMinute))
		cfg.Functions = append(cfg.Functions, trace)
	}

	return cfg
}

//////////////////////////////////////////////////
// POISSON ARRIVALS
//////////////////////////////////////////////////

// GeneratePoisson draws lambdaPerMinute*durationMinutes arrivals with exponential inter-arrival times and
// assigns every arrival to a function sampled by weight. Weights are percentages and must sum to 100.
func (s *ScheduleGenerator) GeneratePoisson(lambdaPerMinute int, durationMinutes int, names []string, weights []float64) (*schedule.Configuration, error) {
	if lambdaPerMinute <= 0 || durationMinutes <= 0 {
		return nil, fmt.Errorf("lambda rate and duration must be positive")
	}
	if len(names) == 0 || len(names) != len(weights) {
		return nil, fmt.Errorf("every candidate function needs exactly one weight")
	}

	totalWeight := 0.0
	for i, w := range weights {
		if w < 0 {
			return nil, fmt.Errorf("illegal probability assigned to %s", names[i])
		}
		totalWeight += w
	}
	if math.Abs(totalWeight-100) > 1e-9 {
		return nil, fmt.Errorf("illegal probability distribution - weights sum up to %v", totalWeight)
	}

	exponential := distuv.Exponential{Rate: float64(lambdaPerMinute), Src: s.src}
	candidates := distuv.NewCategorical(weights, s.src)

	traceIndex := make(map[string]int)
	cfg := &schedule.Configuration{}

	current := 0.0 // minutes
	for i := 0; i < lambdaPerMinute*durationMinutes; i++ {
		current += exponential.Rand()
		name := names[int(candidates.Rand())]

		idx, ok := traceIndex[name]
		if !ok {
			cfg.Functions = append(cfg.Functions, schedule.FunctionTrace{Name: name})
			idx = len(cfg.Functions) - 1
			traceIndex[name] = idx
		}

		cfg.Functions[idx].Invocations = append(cfg.Functions[idx].Invocations, int64(current*common.OneMinuteInNanoseconds))
	}

	return cfg, nil
}
