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

package schedule

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/vhive-serverless/replayer/pkg/common"
)

// FunctionTrace holds the invocation offsets of one function, in nanoseconds from its own origin.
type FunctionTrace struct {
	Name        string  `json:"name"`
	Invocations []int64 `json:"invocations"`
}

// Configuration is the on-disk schedule, {"functions": [{"name": ..., "invocations": [...]}]}.
type Configuration struct {
	Functions []FunctionTrace `json:"functions"`
}

func ReadConfiguration(path string) (*Configuration, error) {
	byteValue, err := os.ReadFile(path)
	if err != nil {
		return nil, &common.ScheduleConfigError{Reason: "cannot read " + path, Err: err}
	}

	return ParseConfiguration(byteValue)
}

func ParseConfiguration(data []byte) (*Configuration, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()

	var cfg Configuration
	if err := decoder.Decode(&cfg); err != nil {
		return nil, &common.ScheduleConfigError{Reason: "malformed schedule", Err: err}
	}

	return &cfg, nil
}

func WriteConfiguration(path string, cfg *Configuration) error {
	byteValue, err := json.MarshalIndent(cfg, "", "    ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, byteValue, 0644)
}

// Validate rejects negative offsets and missing or duplicate function names.
func (cfg *Configuration) Validate() error {
	seen := make(map[string]bool, len(cfg.Functions))

	for _, function := range cfg.Functions {
		if function.Name == "" {
			return &common.ScheduleConfigError{Reason: "function without a name"}
		}
		if seen[function.Name] {
			return &common.ScheduleConfigError{Function: function.Name, Reason: "function registered twice"}
		}
		seen[function.Name] = true

		for i, offset := range function.Invocations {
			if offset < 0 {
				return &common.ScheduleConfigError{
					Function: function.Name,
					Reason:   fmt.Sprintf("negative offset %d at position %d", offset, i),
				}
			}
		}
	}

	return nil
}

// Build merges all function traces into one schedule sorted by offset. Ties keep the order in which
// functions were registered and, within a function, the order of its own list.
func Build(cfg *Configuration) (common.Schedule, error) {
	if cfg == nil {
		return common.Schedule{}, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	total := 0
	for _, function := range cfg.Functions {
		total += len(function.Invocations)
	}

	result := make(common.Schedule, 0, total)
	for _, function := range cfg.Functions {
		for _, offset := range function.Invocations {
			result = append(result, common.ScheduleEntry{
				Offset:   time.Duration(offset),
				Function: function.Name,
			})
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Offset < result[j].Offset
	})

	for i := range result {
		result[i].Index = i
	}

	log.Debugf("Built schedule of %d invocations for %d functions", len(result), len(cfg.Functions))

	return result, nil
}

// Duration is the offset of the last scheduled entry.
func Duration(s common.Schedule) time.Duration {
	if len(s) == 0 {
		return 0
	}

	return s[len(s)-1].Offset
}

// CountPerFunction returns the number of scheduled invocations of every function.
func CountPerFunction(s common.Schedule) map[string]int {
	counts := make(map[string]int)
	for _, entry := range s {
		counts[entry.Function]++
	}

	return counts
}

// FunctionNames lists function names in order of first appearance in the schedule configuration.
func (cfg *Configuration) FunctionNames() []string {
	names := make([]string, 0, len(cfg.Functions))
	for _, function := range cfg.Functions {
		names = append(names, function.Name)
	}

	return names
}
