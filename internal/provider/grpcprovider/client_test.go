package grpcprovider

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/example/proctor/internal/provider"
	"github.com/example/proctor/internal/retry"
)

type handlerFunc func(req *structpb.Struct) (map[string]any, error)

type fakeDetectionService struct {
	mu       sync.Mutex
	handlers map[string]handlerFunc
	calls    map[string]int
	lastReq  map[string]*structpb.Struct
}

func newFakeService() *fakeDetectionService {
	return &fakeDetectionService{
		handlers: map[string]handlerFunc{},
		calls:    map[string]int{},
		lastReq:  map[string]*structpb.Struct{},
	}
}

func (f *fakeDetectionService) serviceDesc() *grpc.ServiceDesc {
	methods := []string{MethodDetectFaces, MethodDetectLabels, MethodDetectModerationLabels, MethodSearchFaces, MethodIndexFace, MethodRemoveFaces}
	desc := &grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*any)(nil),
	}
	for _, m := range methods {
		method := m
		desc.Methods = append(desc.Methods, grpc.MethodDesc{
			MethodName: method,
			Handler: func(_ any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
				in := &structpb.Struct{}
				if err := dec(in); err != nil {
					return nil, err
				}
				return f.handle(method, in)
			},
		})
	}
	return desc
}

func (f *fakeDetectionService) handle(method string, in *structpb.Struct) (any, error) {
	f.mu.Lock()
	f.calls[method]++
	f.lastReq[method] = in
	h := f.handlers[method]
	f.mu.Unlock()

	if h == nil {
		return nil, status.Error(codes.Unimplemented, method)
	}
	out, err := h(in)
	if err != nil {
		return nil, err
	}
	return structpb.NewStruct(out)
}

func (f *fakeDetectionService) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func startClient(t *testing.T, svc *fakeDetectionService) *Client {
	t.Helper()

	listener := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	server.RegisterService(svc.serviceDesc(), svc)
	go func() {
		_ = server.Serve(listener)
	}()
	t.Cleanup(server.Stop)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	policy := retry.Policy{Attempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
	client, conn, err := Dial(ctx, "bufnet", policy, zap.NewNop(),
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
	)
	if err != nil {
		t.Fatalf("failed to dial fake detection service: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return client
}

func TestDetectFacesDecodesAttributes(t *testing.T) {
	svc := newFakeService()
	svc.handlers[MethodDetectFaces] = func(req *structpb.Struct) (map[string]any, error) {
		if req.Fields["image"].GetStringValue() != "aW1n" {
			return nil, status.Error(codes.InvalidArgument, "bad image")
		}
		return map[string]any{"faces": []any{
			map[string]any{
				"eyes_open":  true,
				"mouth_open": false,
				"pose":       map[string]any{"pitch": 4.5, "roll": -1.0, "yaw": 12.0},
				"emotions":   []any{map[string]any{"type": "HAPPY", "confidence": 88.0}},
				"landmarks":  []any{map[string]any{"type": "eyeLeft", "x": 0.2, "y": 0.31}},
			},
		}}, nil
	}
	client := startClient(t, svc)

	faces, err := client.DetectFaces(context.Background(), []byte("img"))
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(faces) != 1 {
		t.Fatalf("expected 1 face, got %d", len(faces))
	}
	f := faces[0]
	if f.EyesOpen == nil || !*f.EyesOpen {
		t.Fatalf("expected eyes open, got %v", f.EyesOpen)
	}
	if f.MouthOpen == nil || *f.MouthOpen {
		t.Fatalf("expected mouth closed, got %v", f.MouthOpen)
	}
	if f.Pose == nil || f.Pose.Yaw != 12 {
		t.Fatalf("unexpected pose: %+v", f.Pose)
	}
	if f.Emotions[0].Type != "HAPPY" || f.Landmarks[0].Y != 0.31 {
		t.Fatalf("unexpected emotion/landmark: %+v %+v", f.Emotions, f.Landmarks)
	}
}

func TestDetectLabelsRetriesUnavailable(t *testing.T) {
	svc := newFakeService()
	svc.handlers[MethodDetectLabels] = func(req *structpb.Struct) (map[string]any, error) {
		if svc.callCount(MethodDetectLabels) == 1 {
			return nil, status.Error(codes.Unavailable, "warming up")
		}
		return map[string]any{"labels": []any{
			map[string]any{"name": "Person", "confidence": 99.0, "instances": 2},
		}}, nil
	}
	client := startClient(t, svc)

	labels, err := client.DetectLabels(context.Background(), []byte("img"), 80)
	if err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if svc.callCount(MethodDetectLabels) != 2 {
		t.Fatalf("expected 2 calls, got %d", svc.callCount(MethodDetectLabels))
	}
	want := provider.Label{Name: "Person", Confidence: 99, Instances: 2}
	if len(labels) != 1 || labels[0] != want {
		t.Fatalf("unexpected labels: %+v", labels)
	}
}

func TestSearchFacesNotFoundIsNoMatch(t *testing.T) {
	svc := newFakeService()
	svc.handlers[MethodSearchFaces] = func(req *structpb.Struct) (map[string]any, error) {
		return nil, status.Error(codes.NotFound, "no face")
	}
	client := startClient(t, svc)

	_, err := client.SearchFaces(context.Background(), "col", []byte("img"), 80, 1)
	if !errors.Is(err, provider.ErrNoFaceMatch) {
		t.Fatalf("expected ErrNoFaceMatch, got %v", err)
	}
}

func TestIndexFaceIsNotRetried(t *testing.T) {
	svc := newFakeService()
	svc.handlers[MethodIndexFace] = func(req *structpb.Struct) (map[string]any, error) {
		return nil, status.Error(codes.Unavailable, "down")
	}
	client := startClient(t, svc)

	if _, err := client.IndexFace(context.Background(), "col", "token", []byte("img")); err == nil {
		t.Fatal("expected error")
	}
	if got := svc.callCount(MethodIndexFace); got != 1 {
		t.Fatalf("expected a single attempt, got %d", got)
	}
}

func TestRemoveFacesSendsIDs(t *testing.T) {
	svc := newFakeService()
	svc.handlers[MethodRemoveFaces] = func(req *structpb.Struct) (map[string]any, error) {
		return map[string]any{}, nil
	}
	client := startClient(t, svc)

	if err := client.RemoveFaces(context.Background(), "col", []string{"f1", "f2"}); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	svc.mu.Lock()
	ids := svc.lastReq[MethodRemoveFaces].Fields["face_ids"].GetListValue().GetValues()
	svc.mu.Unlock()
	if len(ids) != 2 || ids[1].GetStringValue() != "f2" {
		t.Fatalf("unexpected ids: %v", ids)
	}
}
