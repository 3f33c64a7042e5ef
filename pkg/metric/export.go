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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/vhive-serverless/replayer/pkg/common"
)

type InvocationTimes struct {
	WaitTime float64  `json:"waitTime"`
	InitTime *float64 `json:"initTime,omitempty"`
	// LatencyCorrection is only written for closed-loop runs that fell behind.
	LatencyCorrection float64 `json:"latencyCorrection,omitempty"`
}

type InvocationEntry struct {
	Output map[string]json.RawMessage `json:"output"`
	Times  InvocationTimes            `json:"times"`
}

// ResultSet is the serialized form of all invocations of one function.
type ResultSet struct {
	Invocations map[string]map[string]InvocationEntry `json:"_invocations"`
	BeginTime   string                                `json:"begin_time"`
	EndTime     string                                `json:"end_time"`

	// ReplayBeginTime and ReplayEndTime keep the closed-loop worker window used for throughput.
	ReplayBeginTime string `json:"replay_begin_time,omitempty"`
	ReplayEndTime   string `json:"replay_end_time,omitempty"`
}

func rawJSON(value interface{}) json.RawMessage {
	data, err := json.Marshal(value)
	common.Check(err)

	return data
}

func newInvocationEntry(result *common.InvocationResult) InvocationEntry {
	output := make(map[string]json.RawMessage)
	if result.Success && len(result.Payload) > 0 {
		if err := json.Unmarshal(result.Payload, &output); err != nil {
			output = map[string]json.RawMessage{"result": result.Payload}
		}
	}

	if !result.Begin.IsZero() {
		output["begin"] = rawJSON(common.FormatEpoch(result.Begin))
	}
	if !result.End.IsZero() {
		output["end"] = rawJSON(common.FormatEpoch(result.End))
	}
	output["mode"] = rawJSON(result.Mode)
	if result.RequestID != "" {
		output["request_id"] = rawJSON(result.RequestID)
	} else {
		delete(output, "request_id")
	}

	entry := InvocationEntry{
		Output: output,
		Times: InvocationTimes{
			LatencyCorrection: common.DurationToMs(result.LatencyCorrection),
		},
	}

	if result.Success {
		output["is_cold"] = rawJSON(result.IsCold())
		entry.Times.WaitTime = result.WaitTimeMs
		entry.Times.InitTime = result.InitTimeMs
	} else {
		output["failure"] = rawJSON(true)
		output["failure_reason"] = rawJSON(result.FailureReason)
	}

	return entry
}

// NewResultSet groups the results under label. Invocations without a request id are keyed by a
// generated uuid.
func NewResultSet(label string, results []*common.InvocationResult, begin time.Time, end time.Time) *ResultSet {
	invocations := make(map[string]InvocationEntry, len(results))

	for _, result := range results {
		key := result.RequestID
		if _, taken := invocations[key]; key == "" || taken {
			key = uuid.New().String()
		}

		invocations[key] = newInvocationEntry(result)
	}

	return &ResultSet{
		Invocations: map[string]map[string]InvocationEntry{label: invocations},
		BeginTime:   common.FormatEpoch(begin),
		EndTime:     common.FormatEpoch(end),
	}
}

func stringField(output map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := output[key]
	if !ok {
		return "", false
	}

	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", false
	}

	return value, true
}

// Results reconstructs the invocation results so that a stored run can be analysed again.
func (rs *ResultSet) Results() ([]*common.InvocationResult, error) {
	var results []*common.InvocationResult

	labels := make([]string, 0, len(rs.Invocations))
	for label := range rs.Invocations {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	for _, label := range labels {
		for key, entry := range rs.Invocations[label] {
			result := &common.InvocationResult{Function: label}

			if mode, ok := stringField(entry.Output, "mode"); ok {
				result.Mode = common.ReplayMode(mode)
			}
			result.RequestID, _ = stringField(entry.Output, "request_id")

			for field, target := range map[string]*time.Time{"begin": &result.Begin, "end": &result.End} {
				value, _ := stringField(entry.Output, field)
				if value == "" {
					continue
				}

				parsed, err := common.ParseEpoch(value)
				if err != nil {
					return nil, fmt.Errorf("invocation %s of %s: %w", key, label, err)
				}
				*target = parsed
			}

			failed := false
			if raw, ok := entry.Output["failure"]; ok {
				_ = json.Unmarshal(raw, &failed)
			}

			result.LatencyCorrection = time.Duration(entry.Times.LatencyCorrection * float64(time.Millisecond))

			switch {
			case failed:
				result.FailureReason, _ = stringField(entry.Output, "failure_reason")
			default:
				result.Success = true
				result.WaitTimeMs = entry.Times.WaitTime
				result.InitTimeMs = entry.Times.InitTime
				result.Payload = rawJSON(entry.Output)
			}

			results = append(results, result)
		}
	}

	return results, nil
}

// ReplayWindow returns the stored worker window, or nil when the run did not record one.
func (rs *ResultSet) ReplayWindow() (*ExperimentWindow, error) {
	if rs.ReplayBeginTime == "" || rs.ReplayEndTime == "" {
		return nil, nil
	}

	begin, err := common.ParseEpoch(rs.ReplayBeginTime)
	if err != nil {
		return nil, fmt.Errorf("replay window: %w", err)
	}
	end, err := common.ParseEpoch(rs.ReplayEndTime)
	if err != nil {
		return nil, fmt.Errorf("replay window: %w", err)
	}

	return &ExperimentWindow{EarliestBegin: begin, LatestEnd: end}, nil
}

func ResultSetFileName(function string) string {
	return fmt.Sprintf("experiments_scheduled_%s.json", function)
}

// WriteResultSets writes one result set per function into directory. replayWindow may be nil.
func WriteResultSets(directory string, functions []string, results []*common.InvocationResult, begin time.Time, end time.Time, replayWindow *ExperimentWindow) error {
	perFunction := make(map[string][]*common.InvocationResult)
	for _, result := range results {
		perFunction[result.Function] = append(perFunction[result.Function], result)
	}

	for _, function := range functions {
		resultSet := NewResultSet(function, perFunction[function], begin, end)
		if replayWindow != nil && !replayWindow.IsZero() {
			resultSet.ReplayBeginTime = common.FormatEpoch(replayWindow.EarliestBegin)
			resultSet.ReplayEndTime = common.FormatEpoch(replayWindow.LatestEnd)
		}

		data, err := json.MarshalIndent(resultSet, "", "  ")
		if err != nil {
			return err
		}

		path := filepath.Join(directory, ResultSetFileName(function))
		if err := os.WriteFile(path, data, 0644); err != nil {
			return err
		}

		log.Infof("Saved results of %s to %s", function, path)
	}

	return nil
}

func ReadResultSet(path string) (*ResultSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var resultSet ResultSet
	if err := json.Unmarshal(data, &resultSet); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", common.ErrResultParse, path, err)
	}

	return &resultSet, nil
}

// ReadResults loads the result sets of the given functions from directory, together with the
// closed-loop replay window if the run stored one.
func ReadResults(directory string, functions []string) ([]*common.InvocationResult, *ExperimentWindow, error) {
	var results []*common.InvocationResult
	var replayWindow *ExperimentWindow

	for _, function := range functions {
		resultSet, err := ReadResultSet(filepath.Join(directory, ResultSetFileName(function)))
		if err != nil {
			return nil, nil, err
		}

		functionResults, err := resultSet.Results()
		if err != nil {
			return nil, nil, err
		}

		if replayWindow == nil {
			if replayWindow, err = resultSet.ReplayWindow(); err != nil {
				return nil, nil, err
			}
		}

		results = append(results, functionResults...)
	}

	return results, replayWindow, nil
}

func WriteExecutionRecords(path string, results []*common.InvocationResult) error {
	records := make([]ExecutionRecord, 0, len(results))
	for _, result := range results {
		records = append(records, NewExecutionRecord(result))
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return gocsv.MarshalFile(&records, file)
}

func WriteTextReport(path string, report *Report) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return report.WriteText(file)
}
