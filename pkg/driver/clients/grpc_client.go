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
	"fmt"
	"time"

	grpcpool "github.com/processout/grpc-go-pool"
	"github.com/sirupsen/logrus"
	"github.com/vhive-serverless/replayer/pkg/common"
	"github.com/vhive-serverless/replayer/pkg/config"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Function servers implement the FunctionTrigger service with google.protobuf.Struct messages:
//
//	Invoke(payload) returns the response envelope
//	Submit(payload) returns {"request_id": ...}
//	Fetch({"request_id": ...}) returns the envelope, an empty message or NOT_FOUND while pending
const (
	invokeMethod = "/invitro.FunctionTrigger/Invoke"
	submitMethod = "/invitro.FunctionTrigger/Submit"
	fetchMethod  = "/invitro.FunctionTrigger/Fetch"
)

type grpcTrigger struct {
	function        string
	endpoint        string
	functionTimeout time.Duration

	pool   *grpcpool.Pool
	poller resultPoller
}

func newGRPCTrigger(cfg *config.LoaderConfiguration, function string, extraDialOptions ...grpc.DialOption) (*grpcTrigger, error) {
	endpoint := cfg.Endpoints[function]
	connectionTimeout := time.Duration(cfg.GRPCConnectionTimeoutSeconds) * time.Second

	dialOptions := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	if cfg.EnableZipkinTracing {
		dialOptions = append(dialOptions, grpc.WithUnaryInterceptor(otelgrpc.UnaryClientInterceptor()))
	}
	dialOptions = append(dialOptions, extraDialOptions...)

	var factory grpcpool.Factory = func() (*grpc.ClientConn, error) {
		dialCtx, cancelDialing := context.WithTimeout(context.Background(), connectionTimeout)
		defer cancelDialing()

		conn, err := grpc.DialContext(dialCtx, endpoint, dialOptions...)
		if err != nil {
			return nil, fmt.Errorf("failed to start gRPC connection (%s): %w", function, err)
		}
		logrus.Debugf("New connection to function %s at %s", function, endpoint)

		return conn, nil
	}

	pool, err := grpcpool.New(factory, 1, poolCapacity(cfg), time.Hour*2)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC pool (%s): %w", function, err)
	}

	return &grpcTrigger{
		function:        function,
		endpoint:        endpoint,
		functionTimeout: time.Duration(cfg.GRPCFunctionTimeoutSeconds) * time.Second,
		pool:            pool,
		poller:          newResultPoller(cfg.FetchPollInterval(), cfg.FetchTimeout()),
	}, nil
}

// poolCapacity matches the number of concurrent calls per function: one per worker in closed-loop
// mode, one per collector in open-loop mode.
func poolCapacity(cfg *config.LoaderConfiguration) int {
	if cfg.ReplayMode() == common.ClosedLoop {
		return max(cfg.Workers, 1)
	}

	return max(cfg.CollectionConcurrency, cfg.Workers, 1)
}

func (t *grpcTrigger) call(ctx context.Context, method string, in *structpb.Struct) (*structpb.Struct, error) {
	conn, err := t.pool.Get(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := conn.Close(); err != nil {
			logrus.Warnf("Error while returning gRPC connection to the pool - %v", err)
		}
	}()

	if t.functionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.functionTimeout)
		defer cancel()
	}

	out := &structpb.Struct{}
	if err := conn.Invoke(ctx, method, in, out); err != nil {
		if status.Code(err) == codes.Unavailable {
			conn.Unhealthy()
		}

		return nil, err
	}

	return out, nil
}

func payloadStruct(payload []byte) (*structpb.Struct, error) {
	in := &structpb.Struct{}
	if len(payload) == 0 {
		return in, nil
	}

	if err := in.UnmarshalJSON(payload); err != nil {
		return nil, fmt.Errorf("payload must be a JSON object: %w", err)
	}

	return in, nil
}

func (t *grpcTrigger) decode(out *structpb.Struct) (*common.InvocationResult, error) {
	body, err := out.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrResultParse, err)
	}

	return parseFunctionResponse(t.function, body)
}

func (t *grpcTrigger) SyncInvoke(ctx context.Context, payload []byte) *common.InvocationResult {
	logrus.Tracef("(Invoke)\t %s: %s", t.function, t.endpoint)

	begin := time.Now()

	in, err := payloadStruct(payload)
	if err != nil {
		return failedResult(t.function, "", begin, err)
	}

	out, err := t.call(ctx, invokeMethod, in)
	if err != nil {
		logrus.Debugf("gRPC invocation of %s failed - %v", t.function, err)
		return failedResult(t.function, "", begin, fmt.Errorf("%w: %v", common.ErrTransportFailure, err))
	}

	result, err := t.decode(out)
	if err != nil {
		return failedResult(t.function, "", begin, err)
	}

	logrus.Tracef("(Replied)\t %s: %s, %.2f[ms]", t.function, result.RequestID, result.ExecMs())
	return result
}

func (t *grpcTrigger) AsyncInvoke(ctx context.Context, payload []byte) *common.InvocationHandle {
	logrus.Tracef("(Invoke)\t %s: %s, non-blocking", t.function, t.endpoint)

	issued := time.Now()

	in, err := payloadStruct(payload)
	if err != nil {
		return failedHandle(t.function, issued, err)
	}

	out, err := t.call(ctx, submitMethod, in)
	if err != nil {
		logrus.Debugf("gRPC submission of %s failed - %v", t.function, err)
		return failedHandle(t.function, issued, fmt.Errorf("%w: %v", common.ErrTransportFailure, err))
	}

	requestID := out.GetFields()["request_id"].GetStringValue()
	if requestID == "" {
		return failedHandle(t.function, issued, fmt.Errorf("%w: empty request id", common.ErrResultParse))
	}

	return &common.InvocationHandle{
		RequestID: requestID,
		Function:  t.function,
		IssueTime: issued,
	}
}

func (t *grpcTrigger) FetchResult(ctx context.Context, handle *common.InvocationHandle) *common.InvocationResult {
	if !handle.Issued() {
		return failedResult(t.function, "", time.Now(), fmt.Errorf("%w: invocation was never issued", common.ErrTransportFailure))
	}

	in, err := structpb.NewStruct(map[string]interface{}{"request_id": handle.RequestID})
	if err != nil {
		return failedResult(t.function, handle.RequestID, time.Now(), err)
	}

	return t.poller.poll(ctx, handle, func(ctx context.Context) (*common.InvocationResult, error) {
		out, err := t.call(ctx, fetchMethod, in)
		if status.Code(err) == codes.NotFound {
			return nil, nil
		} else if err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrTransportFailure, err)
		}

		if len(out.GetFields()) == 0 {
			return nil, nil
		}

		result, err := t.decode(out)
		if err != nil {
			return nil, err
		}
		if result.RequestID == "" {
			result.RequestID = handle.RequestID
		}

		return result, nil
	})
}

func (t *grpcTrigger) Close() error {
	t.pool.Close()
	return nil
}
