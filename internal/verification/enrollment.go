package verification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/example/proctor/internal/identity"
	"github.com/example/proctor/internal/logging"
	"github.com/example/proctor/internal/provider"
)

var (
	// ErrEnrollment wraps every failure of the index-then-persist flow.
	ErrEnrollment = errors.New("enrollment failed")
	// ErrMissingFullName is returned when no display name is supplied.
	ErrMissingFullName = errors.New("full name is required")
)

const rollbackTimeout = 5 * time.Second

// Enroller indexes a face under a fresh identity token and persists the
// matching profile.
type Enroller struct {
	client       provider.Client
	store        identity.Store
	collectionID string
	newToken     func() string
	metrics      *Metrics
	tracer       trace.Tracer
	logger       *zap.Logger
}

// EnrollerOption configures an Enroller.
type EnrollerOption func(*Enroller)

// WithEnrollmentMetrics records enrollment results.
func WithEnrollmentMetrics(m *Metrics) EnrollerOption {
	return func(e *Enroller) { e.metrics = m }
}

// WithTokenGenerator replaces the uuid token source.
func WithTokenGenerator(fn func() string) EnrollerOption {
	return func(e *Enroller) { e.newToken = fn }
}

func NewEnroller(client provider.Client, store identity.Store, collectionID string, logger *zap.Logger, opts ...EnrollerOption) *Enroller {
	e := &Enroller{
		client:       client,
		store:        store,
		collectionID: collectionID,
		newToken:     uuid.NewString,
		tracer:       otel.Tracer(tracerName),
		logger:       logger.Named("enrollment"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enroll returns the new identity token. Indexing and persistence run in
// order; if persistence fails the indexed face is removed again so no face
// is left without a profile.
func (e *Enroller) Enroll(ctx context.Context, image []byte, fullName string) (token string, err error) {
	if len(image) == 0 {
		return "", ErrInvalidImage
	}
	if strings.TrimSpace(fullName) == "" {
		return "", ErrMissingFullName
	}

	requestID := logging.RequestID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
		ctx = logging.ContextWithRequestID(ctx, requestID)
	}
	opLogger := logging.WithOperation(e.logger, "verification.enroll", requestID)

	ctx, span := e.tracer.Start(ctx, "verification.enroll")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			e.metrics.observeEnrollment("failure")
		} else {
			e.metrics.observeEnrollment("success")
		}
		span.End()
	}()

	token = e.newToken()
	span.SetAttributes(attribute.String("identity_token", token))

	faces, err := e.client.IndexFace(ctx, e.collectionID, token, image)
	if err != nil {
		opLogger.Error("failed to index face", zap.Error(err))
		return "", fmt.Errorf("%w: index face: %w", ErrEnrollment, err)
	}

	profile := identity.Profile{CollectionID: e.collectionID, IdentityToken: token, FullName: fullName}
	if err := e.store.Put(ctx, profile); err != nil {
		opLogger.Error("failed to persist profile", zap.Error(err))
		e.rollback(ctx, opLogger, faces)
		return "", fmt.Errorf("%w: persist profile: %w", ErrEnrollment, err)
	}

	opLogger.Info("identity enrolled", zap.String("identity_token", token), zap.Int("faces", len(faces)))
	return token, nil
}

func (e *Enroller) rollback(ctx context.Context, logger *zap.Logger, faces []provider.IndexedFace) {
	ids := make([]string, 0, len(faces))
	for _, f := range faces {
		ids = append(ids, f.FaceID)
	}

	// The request context may already be done; removal must still run.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()
	if err := e.client.RemoveFaces(ctx, e.collectionID, ids); err != nil {
		e.metrics.observeOrphan()
		logger.Error("orphaned indexed face", zap.Strings("face_ids", ids), zap.Error(err))
		return
	}
	logger.Warn("rolled back indexed face", zap.Strings("face_ids", ids))
}
