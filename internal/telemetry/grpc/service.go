// Package grpc implements the telemetry/ops gRPC channel (§4.L): a
// secondary channel, independent of the four core command/event
// transports, exposing dispatch/bus metrics to operators and a
// best-effort compressed tap of emitted events. No `.proto`-generated
// stubs are available in this environment, so the RPC surface is
// hand-registered via grpc.ServiceDesc — the same mechanism
// protoc-gen-go-grpc emits — and messages are the pre-built well-known
// protobuf types (wrapperspb) rather than a project-private generated
// package.
package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const metricsPushInterval = 2 * time.Second

// Option customises the behaviour of the telemetry service.
type Option func(*Service)

// WithMetricsCompressor overrides the default metrics-stream compressor
// (snappy, per §4.L: "favors latency for frequent small metric frames").
func WithMetricsCompressor(c Compressor) Option {
	return func(s *Service) {
		if c != nil {
			s.metricsCompressor = c
		}
	}
}

// WithEventCompressor overrides the default event-tap compressor (zstd,
// per §4.L: "favors ratio for the event tap's higher-volume stream").
func WithEventCompressor(c Compressor) Option {
	return func(s *Service) {
		if c != nil {
			s.eventCompressor = c
		}
	}
}

// Service implements the telemetry RPC surface over internal queues —
// it has no generated interface to satisfy, since ServiceDesc below
// wires its methods directly.
type Service struct {
	metrics MetricsSource
	tap     EventTap

	metricsCompressor Compressor
	eventCompressor   Compressor
}

// NewService wires the telemetry service to its data sources. eventComp
// defaults to gzip if zstd construction is skipped by the caller (zstd's
// constructor can fail, unlike snappy's).
func NewService(metrics MetricsSource, tap EventTap, eventComp Compressor, opts ...Option) *Service {
	s := &Service{
		metrics:           metrics,
		tap:               tap,
		metricsCompressor: NewSnappyCompressor(),
		eventCompressor:   eventComp,
	}
	if s.eventCompressor == nil {
		s.eventCompressor = NewGZIPCompressor()
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// StreamMetrics periodically pushes a compressed MetricsSnapshot until
// the stream's context is done. The request carries the operator's
// requested codec name as a StringValue; an unrecognised name falls back
// to the service default.
func (s *Service) StreamMetrics(req *wrapperspb.StringValue, stream grpc.ServerStream) error {
	if s == nil || s.metrics == nil {
		return status.Error(codes.FailedPrecondition, "metrics unavailable")
	}
	compressor := s.pickCompressor(req, s.metricsCompressor)

	ticker := time.NewTicker(metricsPushInterval)
	defer ticker.Stop()
	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return status.Error(codes.Canceled, "stream cancelled")
			}
			return status.Error(codes.DeadlineExceeded, "stream deadline exceeded")
		case <-ticker.C:
			snap := s.metrics.Snapshot()
			payload, err := json.Marshal(snap)
			if err != nil {
				return status.Errorf(codes.Internal, "marshal snapshot: %v", err)
			}
			compressed, err := compressor.Compress(payload)
			if err != nil {
				return status.Errorf(codes.Internal, "compress snapshot: %v", err)
			}
			if err := stream.SendMsg(&wrapperspb.BytesValue{Value: compressed}); err != nil {
				return err
			}
		}
	}
}

// TapEvents relays the event bus's emitted values to an operator as a
// best-effort compressed stream: a slow consumer sees drops, never a
// growing buffer (§4.F's own non-blocking-outbox rule, reused here).
func (s *Service) TapEvents(req *wrapperspb.StringValue, stream grpc.ServerStream) error {
	if s == nil || s.tap == nil {
		return status.Error(codes.FailedPrecondition, "event tap unavailable")
	}
	compressor := s.pickCompressor(req, s.eventCompressor)

	ctx := stream.Context()
	frames, cancel, err := s.tap.TapEvents(ctx)
	if err != nil {
		return status.Errorf(codes.Internal, "subscribe tap: %v", err)
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return status.Error(codes.Canceled, "stream cancelled")
			}
			return status.Error(codes.DeadlineExceeded, "stream deadline exceeded")
		case frame, ok := <-frames:
			if !ok {
				return nil
			}
			compressed, err := compressor.Compress(frame)
			if err != nil {
				return status.Errorf(codes.Internal, "compress event: %v", err)
			}
			if err := stream.SendMsg(&wrapperspb.BytesValue{Value: compressed}); err != nil {
				return err
			}
		}
	}
}

func (s *Service) pickCompressor(req *wrapperspb.StringValue, fallback Compressor) Compressor {
	if req == nil || req.GetValue() == "" || req.GetValue() == fallback.Name() {
		return fallback
	}
	switch req.GetValue() {
	case "gzip":
		return NewGZIPCompressor()
	case "snappy":
		return NewSnappyCompressor()
	default:
		return fallback
	}
}

// telemetryStreamMetricsHandler adapts Service.StreamMetrics to the shape
// grpc.StreamDesc expects: decode the single request message, then hand
// the raw ServerStream to the method (there is no generated wrapper type
// to narrow it, since there is no generated package at all).
func telemetryStreamMetricsHandler(srv any, stream grpc.ServerStream) error {
	req := new(wrapperspb.StringValue)
	if err := stream.RecvMsg(req); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return srv.(*Service).StreamMetrics(req, stream)
}

func telemetryTapEventsHandler(srv any, stream grpc.ServerStream) error {
	req := new(wrapperspb.StringValue)
	if err := stream.RecvMsg(req); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return srv.(*Service).TapEvents(req, stream)
}

// ServiceDesc is registered with grpc.Server.RegisterService directly,
// bypassing the usual protoc-gen-go-grpc-generated Register*Server call
// (§4.L design note).
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "roblibd.telemetry.v1.Telemetry",
	HandlerType: (*Service)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamMetrics",
			Handler:       telemetryStreamMetricsHandler,
			ServerStreams: true,
		},
		{
			StreamName:    "TapEvents",
			Handler:       telemetryTapEventsHandler,
			ServerStreams: true,
		},
	},
	Metadata: "telemetry.proto",
}

// Register attaches the telemetry service to server.
func Register(server *grpc.Server, service *Service) {
	server.RegisterService(&ServiceDesc, service)
}
