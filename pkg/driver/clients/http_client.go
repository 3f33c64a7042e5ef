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
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/vhive-serverless/replayer/pkg/common"
	"github.com/vhive-serverless/replayer/pkg/config"
)

// httpTrigger invokes a function exposed behind an HTTP endpoint. Asynchronous invocations are
// acknowledged with a request id whose result is later served by AsyncResponseURL.
type httpTrigger struct {
	function         string
	endpoint         string
	asyncResponseURL string

	client *http.Client
	poller resultPoller
}

func newHTTPTrigger(cfg *config.LoaderConfiguration, function string) *httpTrigger {
	timeout := time.Duration(cfg.GRPCFunctionTimeoutSeconds) * time.Second

	return &httpTrigger{
		function:         function,
		endpoint:         withScheme(cfg.Endpoints[function]),
		asyncResponseURL: strings.TrimSuffix(withScheme(cfg.AsyncResponseURL), "/"),
		client:           CreateHTTPClient(timeout, cfg.InvokeProtocol, cfg.CollectionConcurrency),
		poller:           newResultPoller(cfg.FetchPollInterval(), cfg.FetchTimeout()),
	}
}

func withScheme(endpoint string) string {
	if endpoint == "" || strings.Contains(endpoint, "://") {
		return endpoint
	}

	return "http://" + endpoint
}

func (t *httpTrigger) invocationRequest(ctx context.Context, payload []byte, blocking bool) (*http.Request, error) {
	requestURL := t.endpoint
	if !blocking {
		requestURL += "?" + url.Values{"blocking": []string{"false"}}.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("function", t.function)

	return req, nil
}

func (t *httpTrigger) do(req *http.Request) (int, []byte, error) {
	resp, err := t.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer HandleBodyClosing(resp)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}

	return resp.StatusCode, bytes.TrimSpace(body), nil
}

func (t *httpTrigger) SyncInvoke(ctx context.Context, payload []byte) *common.InvocationResult {
	log.Tracef("(Invoke)\t %s: %s", t.function, t.endpoint)

	begin := time.Now()

	req, err := t.invocationRequest(ctx, payload, true)
	if err != nil {
		return failedResult(t.function, "", begin, fmt.Errorf("%w: %v", common.ErrTransportFailure, err))
	}

	status, body, err := t.do(req)
	if err != nil {
		log.Debugf("HTTP request for %s failed - %v", t.function, err)
		return failedResult(t.function, "", begin, fmt.Errorf("%w: %v", common.ErrTransportFailure, err))
	}
	if status != http.StatusOK {
		log.Debugf("HTTP request for %s failed - status code %d - %s", t.function, status, string(body))
		return failedResult(t.function, "", begin, fmt.Errorf("%w: status code %d: %s", common.ErrFunctionFailure, status, string(body)))
	}

	result, err := parseFunctionResponse(t.function, body)
	if err != nil {
		log.Debugf("Unusable response of %s - %v", t.function, err)
		return failedResult(t.function, "", begin, err)
	}

	log.Tracef("(Replied)\t %s: %s, %.2f[ms]", t.function, result.RequestID, result.ExecMs())
	return result
}

func (t *httpTrigger) AsyncInvoke(ctx context.Context, payload []byte) *common.InvocationHandle {
	log.Tracef("(Invoke)\t %s: %s, non-blocking", t.function, t.endpoint)

	issued := time.Now()

	req, err := t.invocationRequest(ctx, payload, false)
	if err != nil {
		return failedHandle(t.function, issued, fmt.Errorf("%w: %v", common.ErrTransportFailure, err))
	}

	status, body, err := t.do(req)
	if err != nil {
		log.Debugf("HTTP request for %s failed - %v", t.function, err)
		return failedHandle(t.function, issued, fmt.Errorf("%w: %v", common.ErrTransportFailure, err))
	}
	if status != http.StatusOK && status != http.StatusAccepted {
		return failedHandle(t.function, issued, fmt.Errorf("%w: status code %d: %s", common.ErrTransportFailure, status, string(body)))
	}
	if len(body) == 0 {
		return failedHandle(t.function, issued, fmt.Errorf("%w: empty request id", common.ErrResultParse))
	}

	return &common.InvocationHandle{
		RequestID: string(body),
		Function:  t.function,
		IssueTime: issued,
	}
}

func (t *httpTrigger) FetchResult(ctx context.Context, handle *common.InvocationHandle) *common.InvocationResult {
	if !handle.Issued() {
		return failedResult(t.function, "", time.Now(), fmt.Errorf("%w: invocation was never issued", common.ErrTransportFailure))
	}
	if t.asyncResponseURL == "" {
		return failedResult(t.function, handle.RequestID, time.Now(), fmt.Errorf("%w: AsyncResponseURL is not configured", common.ErrTransportFailure))
	}

	resultURL := t.asyncResponseURL + "/" + url.PathEscape(handle.RequestID)

	return t.poller.poll(ctx, handle, func(ctx context.Context) (*common.InvocationResult, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, resultURL, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrTransportFailure, err)
		}

		status, body, err := t.do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrTransportFailure, err)
		}

		switch {
		case status == http.StatusAccepted || status == http.StatusNotFound:
			return nil, nil
		case status != http.StatusOK:
			return nil, fmt.Errorf("%w: status code %d: %s", common.ErrFunctionFailure, status, string(body))
		case len(body) == 0:
			return nil, nil
		}

		result, err := parseFunctionResponse(t.function, body)
		if err != nil {
			return nil, err
		}
		if result.RequestID == "" {
			result.RequestID = handle.RequestID
		}

		return result, nil
	})
}

func HandleBodyClosing(response *http.Response) {
	if response == nil || response.Body == nil {
		return
	}

	err := response.Body.Close()
	if err != nil {
		log.Errorf("Error closing response body - %v", err)
	}
}
