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
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
)

// CreateHTTPClient builds a client for the given invoke protocol. maxConnsPerHost is sized to the
// number of concurrent result fetches.
func CreateHTTPClient(timeout time.Duration, invokeProtocol string, maxConnsPerHost int) *http.Client {
	client := &http.Client{
		Timeout: timeout,
	}

	switch invokeProtocol {
	case "http1":
		client.Transport = getHttp1Transport(timeout, maxConnsPerHost)
	case "http2":
		client.Transport = getHttp2Transport()
	default:
		logrus.Errorf("Invalid invoke protocol %q in the configuration file - falling back to the default transport.", invokeProtocol)
	}

	return client
}

func getHttp1Transport(timeout time.Duration, maxConnsPerHost int) *http.Transport {
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: timeout,
		}).DialContext,
		IdleConnTimeout:     5 * time.Second,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: maxConnsPerHost,
		MaxConnsPerHost:     maxConnsPerHost,
	}
}

// getHttp2Transport speaks cleartext HTTP/2 (h2c).
func getHttp2Transport() *http2.Transport {
	return &http2.Transport{
		AllowHTTP: true,
		DialTLSContext: func(ctx context.Context, network, addr string, cfg *tls.Config) (net.Conn, error) {
			var dialer net.Dialer
			return dialer.DialContext(ctx, network, addr)
		},
	}
}
