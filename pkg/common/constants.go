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

package common

import "time"

const (
	OneSecondInNanoseconds = 1_000_000_000
	OneMinuteInNanoseconds = 60 * OneSecondInNanoseconds
)

type ReplayMode string

const (
	OpenLoop   ReplayMode = "open"
	ClosedLoop ReplayMode = "closed"
)

// platform
const (
	PlatformOpenWhisk string = "openwhisk"
	PlatformHTTP      string = "http"
	PlatformGRPC      string = "grpc"
)

var ValidPlatforms = []string{PlatformOpenWhisk, PlatformHTTP, PlatformGRPC}

const (
	// DefaultFetchPollInterval is the backoff between two result probes that reported "not yet available".
	DefaultFetchPollInterval = 125 * time.Millisecond
	// DefaultCollectionGrace lets freshly issued asynchronous requests register before collection starts.
	DefaultCollectionGrace = 2 * time.Second
	// DefaultCollectionConcurrency bounds the number of in-flight result fetches.
	DefaultCollectionConcurrency = 50
)

const (
	// FailedWarnThreshold Print warning on stdout if the percentage of failed invocations (e.g., connection
	// errors, unparsable responses) is greater than this threshold
	FailedWarnThreshold = 0.3
)
