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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/vhive-serverless/replayer/pkg/common"
	"github.com/vhive-serverless/replayer/pkg/config"
)

// e.g. "ok: invoked /_/dynamic-html with id 5e6f2b1c8a9d4e0faf2b1c8a9d4e0f12"
var activationIDPattern = regexp.MustCompile(`invoked \S+ with id ([0-9a-zA-Z]+)`)

// openWhiskTrigger drives a deployed OpenWhisk action through the wsk CLI.
type openWhiskTrigger struct {
	function string
	wskPath  string
	wskArgs  []string

	runner CommandRunner
	poller resultPoller
}

func newOpenWhiskTrigger(cfg *config.LoaderConfiguration, function string, runner CommandRunner) *openWhiskTrigger {
	return &openWhiskTrigger{
		function: function,
		wskPath:  cfg.WskPath,
		wskArgs:  cfg.WskArgs,
		runner:   runner,
		poller:   newResultPoller(cfg.FetchPollInterval(), cfg.FetchTimeout()),
	}
}

func (t *openWhiskTrigger) wsk(ctx context.Context, args ...string) (string, error) {
	command := make([]string, 0, len(t.wskArgs)+len(args))
	command = append(command, t.wskArgs...)
	command = append(command, args...)

	return t.runner.Run(ctx, t.wskPath, command...)
}

func (t *openWhiskTrigger) invokeArgs(payload []byte, blocking bool) ([]string, error) {
	params, err := payloadParams(payload)
	if err != nil {
		return nil, err
	}

	args := []string{"action", "invoke", t.function}
	if blocking {
		args = append(args, "--blocking")
	}

	return append(args, params...), nil
}

func (t *openWhiskTrigger) SyncInvoke(ctx context.Context, payload []byte) *common.InvocationResult {
	log.Tracef("(Invoke)\t %s: blocking", t.function)

	begin := time.Now()

	args, err := t.invokeArgs(payload, true)
	if err != nil {
		return failedResult(t.function, "", begin, err)
	}

	output, err := t.wsk(ctx, args...)
	if err != nil {
		log.Debugf("wsk invocation of %s failed - %v", t.function, err)
		return failedResult(t.function, "", begin, fmt.Errorf("%w: %v", common.ErrTransportFailure, err))
	}

	result, err := parseActivation(t.function, stripCLIHeader(output))
	if err != nil {
		log.Debugf("Unusable activation of %s - %v", t.function, err)
		return failedResult(t.function, "", begin, err)
	}

	log.Tracef("(Replied)\t %s: %s, %.2f[ms]", t.function, result.RequestID, result.ExecMs())
	return result
}

func (t *openWhiskTrigger) AsyncInvoke(ctx context.Context, payload []byte) *common.InvocationHandle {
	log.Tracef("(Invoke)\t %s: non-blocking", t.function)

	issued := time.Now()

	args, err := t.invokeArgs(payload, false)
	if err != nil {
		return failedHandle(t.function, issued, err)
	}

	output, err := t.wsk(ctx, args...)
	if err != nil {
		log.Debugf("wsk invocation of %s failed - %v", t.function, err)
		return failedHandle(t.function, issued, fmt.Errorf("%w: %v", common.ErrTransportFailure, err))
	}

	match := activationIDPattern.FindStringSubmatch(output)
	if match == nil {
		return failedHandle(t.function, issued, fmt.Errorf("%w: no activation id in %q", common.ErrResultParse, output))
	}

	return &common.InvocationHandle{
		RequestID: match[1],
		Function:  t.function,
		IssueTime: issued,
	}
}

func (t *openWhiskTrigger) FetchResult(ctx context.Context, handle *common.InvocationHandle) *common.InvocationResult {
	if !handle.Issued() {
		return failedResult(t.function, "", time.Now(), fmt.Errorf("%w: invocation was never issued", common.ErrTransportFailure))
	}

	return t.poller.poll(ctx, handle, func(ctx context.Context) (*common.InvocationResult, error) {
		output, err := t.wsk(ctx, "activation", "get", handle.RequestID)

		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			// the activation is not recorded yet
			return nil, nil
		} else if err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrTransportFailure, err)
		}

		body := stripCLIHeader(output)
		if len(body) == 0 {
			return nil, nil
		}

		return parseActivation(t.function, body)
	})
}

// stripCLIHeader drops the "ok: ..." line wsk prints in front of the JSON document.
func stripCLIHeader(output string) []byte {
	start := bytes.IndexByte([]byte(output), '{')
	if start < 0 {
		return nil
	}

	return []byte(output[start:])
}

// payloadParams turns a JSON object into wsk --param arguments, one per top-level key.
func payloadParams(payload []byte) ([]string, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("payload must be a JSON object: %w", err)
	}

	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	params := make([]string, 0, 3*len(keys))
	for _, key := range keys {
		params = append(params, "--param", key, string(fields[key]))
	}

	return params, nil
}
