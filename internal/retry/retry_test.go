package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/smithy-go"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/example/proctor/internal/logging"
)

type transientTestError struct{}

func (transientTestError) Error() string   { return "transient" }
func (transientTestError) Timeout() bool   { return true }
func (transientTestError) Temporary() bool { return true }

func testPolicy(attempts int) Policy {
	return Policy{Attempts: attempts, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func TestDoRetriesTransientErrors(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), testPolicy(3), zap.NewNop(), "test.operation", func() error {
		attempts++
		if attempts < 2 {
			return transientTestError{}
		}
		return nil
	})

	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestDoStopsOnPermanentError(t *testing.T) {
	ctx := logging.ContextWithRequestID(context.Background(), "req-2")
	attempts := 0
	err := Do(ctx, testPolicy(3), zap.NewNop(), "test.operation", func() error {
		attempts++
		return errors.New("boom")
	})

	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}

	var opErr *logging.OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OperationError, got %T", err)
	}
	if opErr.Operation != "test.operation" || opErr.RequestID != "req-2" {
		t.Fatalf("unexpected operation error: %+v", opErr)
	}
}

func TestDoGivesUpAfterAttempts(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), testPolicy(3), zap.NewNop(), "test.operation", func() error {
		attempts++
		return status.Error(codes.Unavailable, "down")
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"grpc unavailable", status.Error(codes.Unavailable, "x"), true},
		{"grpc invalid argument", status.Error(codes.InvalidArgument, "x"), false},
		{"timeout", transientTestError{}, true},
		{"plain", errors.New("x"), false},
	}
	for _, tc := range cases {
		if got := IsTransient(tc.err); got != tc.want {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestIsTransientClassifiesAWSErrorCodes(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"ThrottlingException", true},
		{"ProvisionedThroughputExceededException", true},
		{"InvalidParameterException", false},
		{"ConditionalCheckFailedException", false},
	}
	for _, tt := range tests {
		err := &smithy.GenericAPIError{Code: tt.code, Message: "x"}
		if got := IsTransient(err); got != tt.want {
			t.Fatalf("IsTransient(%s) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestOnceMakesSingleAttempt(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), testPolicy(3).Once(), zap.NewNop(), "test.operation", func() error {
		attempts++
		return transientTestError{}
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}
