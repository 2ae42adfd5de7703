package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/HatiCode/corecast/pkg/estimator"
	"github.com/HatiCode/corecast/pkg/report"
)

const (
	estimatorServiceName = "corecast.v1.Estimator"
	estimateMethod       = "/" + estimatorServiceName + "/Estimate"
)

// EstimatorServer is the server API for the corecast.v1.Estimator service.
// Requests and replies are google.protobuf.Struct values with the same
// shape as the HTTP JSON bodies.
type EstimatorServer interface {
	Estimate(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var estimatorServiceDesc = grpc.ServiceDesc{
	ServiceName: estimatorServiceName,
	HandlerType: (*EstimatorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Estimate", Handler: estimateHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "corecast/v1/estimator.proto",
}

func estimateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EstimatorServer).Estimate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: estimateMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(EstimatorServer).Estimate(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// grpcEstimator serves EstimatorServer on top of an estimator.Estimator.
type grpcEstimator struct {
	est     *estimator.Estimator
	timeout time.Duration
	logger  *slog.Logger
}

func (g *grpcEstimator) Estimate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	raw, err := protojson.Marshal(in)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "encode request: %v", err)
	}
	dto, err := estimator.DecodeRequest(bytes.NewReader(raw))
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req, err := g.est.Process(ctx, "grpc", dto)
	if err != nil {
		code := codeFor(err)
		if code == codes.Internal {
			g.logger.Error("estimation failed", "error", err)
			return nil, status.Error(code, "internal error")
		}
		return nil, status.Error(code, err.Error())
	}

	body, err := json.Marshal(report.New(req))
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode report: %v", err)
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(body, out); err != nil {
		return nil, status.Errorf(codes.Internal, "encode report: %v", err)
	}
	return out, nil
}

// codeFor maps an estimation error to a gRPC status code.
func codeFor(err error) codes.Code {
	switch {
	case errors.Is(err, estimator.ErrMalformedRequest):
		return codes.InvalidArgument
	case estimator.IsEstimationError(err):
		return codes.FailedPrecondition
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	default:
		return codes.Internal
	}
}

// newGRPCServer registers the estimator, health and reflection services.
func newGRPCServer(est *estimator.Estimator, timeout time.Duration, logger *slog.Logger, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(opts...)
	srv.RegisterService(&estimatorServiceDesc, &grpcEstimator{est: est, timeout: timeout, logger: logger})

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(srv, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(estimatorServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	reflection.Register(srv)
	return srv, healthServer
}
