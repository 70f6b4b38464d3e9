package grpc

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// fakeServerStream implements grpc.ServerStream against an in-memory
// slice, letting StreamMetrics/TapEvents run without a real gRPC
// connection.
type fakeServerStream struct {
	ctx context.Context

	mu  sync.Mutex
	out [][]byte
}

func (f *fakeServerStream) SetHeader(metadata.MD) error  { return nil }
func (f *fakeServerStream) SendHeader(metadata.MD) error { return nil }
func (f *fakeServerStream) SetTrailer(metadata.MD)       {}
func (f *fakeServerStream) Context() context.Context     { return f.ctx }
func (f *fakeServerStream) RecvMsg(m any) error          { return nil }

func (f *fakeServerStream) SendMsg(m any) error {
	bv, ok := m.(*wrapperspb.BytesValue)
	if !ok {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out = append(f.out, bv.GetValue())
	return nil
}

func (f *fakeServerStream) sent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.out)
}

func (f *fakeServerStream) last() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.out) == 0 {
		return nil
	}
	return f.out[len(f.out)-1]
}

type fakeMetricsSource struct {
	snap MetricsSnapshot
}

func (f fakeMetricsSource) Snapshot() MetricsSnapshot { return f.snap }

type fakeEventTap struct {
	frames chan []byte
}

func (f *fakeEventTap) TapEvents(ctx context.Context) (<-chan []byte, func(), error) {
	return f.frames, func() {}, nil
}

func TestStreamMetricsPushesCompressedSnapshots(t *testing.T) {
	metrics := fakeMetricsSource{snap: MetricsSnapshot{UptimeSeconds: 12.5}}
	svc := NewService(metrics, &fakeEventTap{frames: make(chan []byte)}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2500*time.Millisecond)
	defer cancel()
	stream := &fakeServerStream{ctx: ctx}

	done := make(chan error, 1)
	go func() { done <- svc.StreamMetrics(&wrapperspb.StringValue{Value: "snappy"}, stream) }()

	deadline := time.Now().Add(2 * time.Second)
	for stream.sent() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if stream.sent() == 0 {
		t.Fatal("expected at least one snapshot to be pushed")
	}

	compressor := NewSnappyCompressor()
	restored, err := compressor.Decompress(stream.last())
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	var got MetricsSnapshot
	if err := json.Unmarshal(restored, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.UptimeSeconds != 12.5 {
		t.Fatalf("unexpected snapshot: %+v", got)
	}

	cancel()
	if err := <-done; err == nil {
		t.Fatal("expected StreamMetrics to return an error once the context is cancelled")
	}
}

func TestTapEventsRelaysFrames(t *testing.T) {
	tap := &fakeEventTap{frames: make(chan []byte, 4)}
	svc := NewService(fakeMetricsSource{}, tap, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream := &fakeServerStream{ctx: ctx}

	done := make(chan error, 1)
	go func() { done <- svc.TapEvents(&wrapperspb.StringValue{}, stream) }()

	tap.frames <- []byte("event-one")

	deadline := time.Now().Add(2 * time.Second)
	for stream.sent() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if stream.sent() == 0 {
		t.Fatal("expected the tapped frame to be relayed")
	}

	compressor := svc.eventCompressor
	restored, err := compressor.Decompress(stream.last())
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if string(restored) != "event-one" {
		t.Fatalf("unexpected relayed frame: %q", restored)
	}

	cancel()
	<-done
}

func TestStreamMetricsFailsWithoutSource(t *testing.T) {
	svc := NewService(nil, &fakeEventTap{frames: make(chan []byte)}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream := &fakeServerStream{ctx: ctx}

	if err := svc.StreamMetrics(&wrapperspb.StringValue{}, stream); err == nil {
		t.Fatal("expected StreamMetrics to fail without a metrics source")
	}
}
