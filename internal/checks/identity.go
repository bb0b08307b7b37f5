package checks

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/example/proctor/internal/identity"
	"github.com/example/proctor/internal/logging"
	"github.com/example/proctor/internal/provider"
	"github.com/example/proctor/internal/report"
)

// MatchOutcome classifies an identity search.
type MatchOutcome int

const (
	NoMatch MatchOutcome = iota
	Matched
	CollaboratorError
)

func (o MatchOutcome) String() string {
	switch o {
	case Matched:
		return "matched"
	case CollaboratorError:
		return "collaborator_error"
	default:
		return "no_match"
	}
}

// MatchResult is the outcome of an identity search. FullName is set only
// when Outcome is Matched; Err only when it is CollaboratorError.
type MatchResult struct {
	Outcome       MatchOutcome
	IdentityToken string
	FullName      string
	Similarity    float64
	Err           error
}

// IdentityMatchConfig configures the identity search.
type IdentityMatchConfig struct {
	CollectionID   string
	MatchThreshold float64
}

// IdentityMatch looks the submitted face up in the collection and resolves
// the enrolled profile.
//
// Its record keeps {false, "0"} for both NoMatch and CollaboratorError;
// callers rely on it never reporting "Server error".
type IdentityMatch struct {
	client provider.Client
	store  identity.Store
	cfg    IdentityMatchConfig
	logger *zap.Logger
}

func NewIdentityMatch(client provider.Client, store identity.Store, cfg IdentityMatchConfig, logger *zap.Logger) *IdentityMatch {
	return &IdentityMatch{client: client, store: store, cfg: cfg, logger: logger.Named("identity_match")}
}

func (c *IdentityMatch) Name() string { return "identity_match" }

func (c *IdentityMatch) Fallback() []report.TestRecord {
	return []report.TestRecord{{Name: report.PersonRecognition, Success: false, Details: report.NoneFound}}
}

func (c *IdentityMatch) Run(ctx context.Context, image []byte) []report.TestRecord {
	res := c.Match(ctx, image)
	if res.Outcome != Matched {
		// Swallowed on purpose: the record stays at its default.
		logging.WithOperation(c.logger, "checks.identity_match", logging.RequestID(ctx)).
			Info("identity not matched", zap.Stringer("outcome", res.Outcome), zap.Error(res.Err))
		return c.Fallback()
	}
	return []report.TestRecord{{Name: report.PersonRecognition, Success: true, Details: res.FullName}}
}

// Match searches for the single best candidate and loads its profile.
func (c *IdentityMatch) Match(ctx context.Context, image []byte) MatchResult {
	matches, err := c.client.SearchFaces(ctx, c.cfg.CollectionID, image, c.cfg.MatchThreshold, 1)
	switch {
	case errors.Is(err, provider.ErrNoFaceMatch):
		return MatchResult{Outcome: NoMatch}
	case err != nil:
		return MatchResult{Outcome: CollaboratorError, Err: err}
	case len(matches) == 0:
		return MatchResult{Outcome: NoMatch}
	}

	best := matches[0]
	profile, err := c.store.Get(ctx, best.ExternalImageID)
	switch {
	case errors.Is(err, identity.ErrProfileNotFound):
		return MatchResult{Outcome: NoMatch, IdentityToken: best.ExternalImageID}
	case err != nil:
		return MatchResult{Outcome: CollaboratorError, Err: err}
	}

	return MatchResult{
		Outcome:       Matched,
		IdentityToken: profile.IdentityToken,
		FullName:      profile.FullName,
		Similarity:    best.Similarity,
	}
}
