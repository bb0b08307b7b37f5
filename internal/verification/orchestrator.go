// Package verification fans one image out to the check units and runs the
// enrollment flow.
package verification

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/proctor/internal/checks"
	"github.com/example/proctor/internal/config"
	"github.com/example/proctor/internal/identity"
	"github.com/example/proctor/internal/logging"
	"github.com/example/proctor/internal/provider"
	"github.com/example/proctor/internal/report"
)

// ErrInvalidImage is returned for an absent or empty image.
var ErrInvalidImage = errors.New("image is empty")

const tracerName = "github.com/example/proctor/internal/verification"

// NewChecks builds the check units in report order: presence, identity
// match, face quality, moderation.
func NewChecks(client provider.Client, store identity.Store, cfg config.Config, logger *zap.Logger) []checks.Check {
	return []checks.Check{
		checks.NewPresence(client, checks.PresenceConfig{
			MinConfidence: cfg.MinConfidence,
			DenyList:      cfg.ObjectsOfInterest,
		}, logger),
		checks.NewIdentityMatch(client, store, checks.IdentityMatchConfig{
			CollectionID:   cfg.CollectionID,
			MatchThreshold: cfg.MinConfidence,
		}, logger),
		checks.NewFaceQuality(client, logger),
		checks.NewModeration(client, cfg.MinConfidence, logger),
	}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMetrics records per-check outcomes and latencies.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithTracer overrides the global OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// Orchestrator runs every check concurrently and concatenates their records
// in the order the checks were given. It holds no policy of its own.
type Orchestrator struct {
	checks  []checks.Check
	timeout time.Duration
	metrics *Metrics
	tracer  trace.Tracer
	logger  *zap.Logger
}

// NewOrchestrator creates an orchestrator whose branches are each bounded by
// timeout.
func NewOrchestrator(units []checks.Check, timeout time.Duration, logger *zap.Logger, opts ...Option) *Orchestrator {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	o := &Orchestrator{
		checks:  units,
		timeout: timeout,
		logger:  logger.Named("verification"),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}
	return o
}

// Verify returns the full report for image. It fails only when image is
// empty; every collaborator failure is already folded into the records.
func (o *Orchestrator) Verify(ctx context.Context, image []byte) (report.Report, error) {
	if len(image) == 0 {
		return nil, ErrInvalidImage
	}

	requestID := logging.RequestID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
		ctx = logging.ContextWithRequestID(ctx, requestID)
	}
	opLogger := logging.WithOperation(o.logger, "verification.verify", requestID)

	ctx, span := o.tracer.Start(ctx, "verification.verify", trace.WithAttributes(
		attribute.String("request_id", requestID),
		attribute.Int("image_bytes", len(image)),
	))
	defer span.End()

	start := time.Now()
	// Each branch writes only its own slot.
	results := make([][]report.TestRecord, len(o.checks))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range o.checks {
		i, c := i, c
		g.Go(func() error {
			results[i] = o.runBranch(gctx, c, image)
			return nil
		})
	}
	_ = g.Wait()

	out := make(report.Report, 0, o.Len())
	for _, records := range results {
		out = append(out, records...)
	}
	o.metrics.observeVerification(time.Since(start))
	opLogger.Info("verification completed",
		zap.Bool("passed", out.Passed()),
		zap.Int("records", len(out)),
		zap.Duration("latency", time.Since(start)),
	)
	return out, nil
}

func (o *Orchestrator) runBranch(ctx context.Context, c checks.Check, image []byte) []report.TestRecord {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	ctx, span := o.tracer.Start(ctx, "check."+c.Name())
	defer span.End()

	fallback := c.Fallback()
	start := time.Now()
	done := make(chan []report.TestRecord, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logging.WithOperation(o.logger, "verification.check", logging.RequestID(ctx)).
					Error("check panicked", zap.String("check", c.Name()), zap.Any("panic", r))
				done <- c.Fallback()
			}
		}()
		done <- c.Run(ctx, image)
	}()

	var (
		records []report.TestRecord
		outcome string
	)
	select {
	case records = <-done:
		outcome = classify(records)
	case <-ctx.Done():
		records = fallback
		outcome = OutcomeTimeout
		logging.WithOperation(o.logger, "verification.check", logging.RequestID(ctx)).
			Warn("check did not finish in time", zap.String("check", c.Name()), zap.Duration("timeout", o.timeout))
	}

	if len(records) != len(fallback) {
		logging.WithOperation(o.logger, "verification.check", logging.RequestID(ctx)).
			Error("check returned malformed result", zap.String("check", c.Name()),
				zap.Int("want", len(fallback)), zap.Int("got", len(records)))
		records = fallback
		outcome = OutcomeError
	}

	span.SetAttributes(attribute.String("outcome", outcome))
	o.metrics.observeCheck(c.Name(), outcome, time.Since(start))
	return records
}

func classify(records []report.TestRecord) string {
	outcome := OutcomePass
	for _, r := range records {
		if r.Details == report.ServerError {
			return OutcomeError
		}
		if !r.Success {
			outcome = OutcomeFail
		}
	}
	return outcome
}

// Len is the number of records every report carries.
func (o *Orchestrator) Len() int {
	n := 0
	for _, c := range o.checks {
		n += len(c.Fallback())
	}
	return n
}
