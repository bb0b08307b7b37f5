// Package retry runs collaborator calls with bounded exponential backoff.
// Only transient failures are retried.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/aws/smithy-go"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/example/proctor/internal/logging"
)

// throttlingCodes are AWS error codes that clear up on their own.
var throttlingCodes = map[string]struct{}{
	"ThrottlingException":                    {},
	"ProvisionedThroughputExceededException": {},
	"RequestLimitExceeded":                   {},
	"TooManyRequestsException":               {},
	"InternalServerError":                    {},
	"ServiceUnavailableException":            {},
}

// Policy bounds the number of attempts and the backoff between them.
type Policy struct {
	Attempts       int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Once returns p limited to a single attempt, for calls that are not safe to
// repeat.
func (p Policy) Once() Policy {
	p.Attempts = 1
	return p
}

// DefaultPolicy mirrors the backoff used for every collaborator call.
func DefaultPolicy(attempts int) Policy {
	return Policy{
		Attempts:       attempts,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     time.Second,
	}
}

// Do calls fn until it succeeds, returns a non-transient error, or the
// attempts are exhausted. Returned errors are OperationErrors.
func Do(ctx context.Context, p Policy, logger *zap.Logger, operation string, fn func() error) error {
	requestID := logging.RequestID(ctx)
	if p.Attempts <= 1 {
		return logging.NewOperationError(operation, requestID, fn())
	}

	backoff := p.InitialBackoff
	opLogger := logging.WithOperation(logger, operation, requestID)
	var err error
	for attempt := 0; attempt < p.Attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= p.MaxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("collaborator call succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if !IsTransient(err) || attempt == p.Attempts-1 {
			opLogger.Warn("collaborator call failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, requestID, err)
		}

		opLogger.Warn("transient collaborator error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

// IsTransient reports whether err is worth another attempt.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	if s, ok := status.FromError(err); ok {
		switch s.Code() {
		case codes.Unavailable, codes.ResourceExhausted, codes.Aborted:
			return true
		}
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		_, ok := throttlingCodes[apiErr.ErrorCode()]
		return ok
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}
