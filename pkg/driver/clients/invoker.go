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
	"context"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/vhive-serverless/replayer/pkg/common"
	"github.com/vhive-serverless/replayer/pkg/config"
)

// Trigger is the invocation contract of one deployed function. Every operation returns a tagged
// result; failures are reported through Success/Failed and FailureReason, never as errors.
type Trigger interface {
	// SyncInvoke issues the invocation and blocks until its result is decoded.
	SyncInvoke(ctx context.Context, payload []byte) *common.InvocationResult
	// AsyncInvoke issues the invocation without waiting for it. The returned handle has an empty
	// RequestID when issuance failed.
	AsyncInvoke(ctx context.Context, payload []byte) *common.InvocationHandle
	// FetchResult polls the platform until the result of an issued invocation is available.
	FetchResult(ctx context.Context, handle *common.InvocationHandle) *common.InvocationResult
}

func CreateTrigger(cfg *config.LoaderConfiguration, function string, runner CommandRunner) Trigger {
	switch cfg.Platform {
	case common.PlatformOpenWhisk:
		return newOpenWhiskTrigger(cfg, function, runner)
	case common.PlatformHTTP:
		return newHTTPTrigger(cfg, function)
	case common.PlatformGRPC:
		trigger, err := newGRPCTrigger(cfg, function)
		if err != nil {
			logrus.Fatal(err)
		}

		return trigger
	default:
		logrus.Fatal("Unsupported platform.")
	}

	return nil
}

// CreateTriggers builds the trigger registry handed to the replay engines. All OpenWhisk triggers
// share one command runner, remote when WskRemoteHost is set.
func CreateTriggers(cfg *config.LoaderConfiguration, functions []string) map[string]Trigger {
	var runner CommandRunner
	if cfg.Platform == common.PlatformOpenWhisk {
		runner = NewLocalRunner()
		if cfg.WskRemoteHost != "" {
			runner = NewSSHRunner(cfg.WskRemoteHost, cfg.WskRemoteUser)
		}
	}

	triggers := make(map[string]Trigger, len(functions))
	for _, function := range functions {
		if cfg.Platform != common.PlatformOpenWhisk {
			if _, ok := cfg.Endpoints[function]; !ok {
				logrus.Fatalf("No endpoint configured for function %s.", function)
			}
		}

		triggers[function] = CreateTrigger(cfg, function, runner)
	}

	return triggers
}

// CloseTriggers releases connections held by the triggers and their shared command runner.
func CloseTriggers(triggers map[string]Trigger) {
	closed := make(map[io.Closer]struct{})

	for function, trigger := range triggers {
		closers := []interface{}{trigger}
		if ow, ok := trigger.(*openWhiskTrigger); ok {
			closers = append(closers, ow.runner)
		}

		for _, candidate := range closers {
			closer, ok := candidate.(io.Closer)
			if !ok {
				continue
			}
			if _, done := closed[closer]; done {
				continue
			}
			closed[closer] = struct{}{}

			if err := closer.Close(); err != nil {
				logrus.Warnf("Failed to close trigger of %s - %v", function, err)
			}
		}
	}
}
