package logging

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestNewOperationErrorNilPassthrough(t *testing.T) {
	if err := NewOperationError("op", "req", nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestOperationErrorUnwrapsAndFormats(t *testing.T) {
	base := errors.New("boom")
	err := fmt.Errorf("outer: %w", NewOperationError("provider.detect_faces", "req-1", base))

	if !errors.Is(err, base) {
		t.Fatal("expected wrapped error to match base")
	}
	op, ok := OperationOf(err)
	if !ok || op != "provider.detect_faces" {
		t.Fatalf("unexpected operation: %q %v", op, ok)
	}
	want := "outer: provider.detect_faces (request_id=req-1): boom"
	if err.Error() != want {
		t.Fatalf("expected %q, got %q", want, err.Error())
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "abc")
	if got := RequestID(ctx); got != "abc" {
		t.Fatalf("expected abc, got %q", got)
	}
	if got := RequestID(context.Background()); got != "" {
		t.Fatalf("expected empty id, got %q", got)
	}
}

func TestNewLoggerAcceptsUnknownLevel(t *testing.T) {
	logger, err := NewLogger("verbose")
	if err != nil {
		t.Fatalf("expected logger, got %v", err)
	}
	if !logger.Core().Enabled(0) {
		t.Fatal("expected info level to be enabled")
	}
}
