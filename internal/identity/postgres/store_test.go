package postgres

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/example/proctor/internal/identity"
	"github.com/example/proctor/internal/retry"
)

func TestRecordConversionKeepsFields(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	in := identity.Profile{CollectionID: "col", IdentityToken: "tok", FullName: "Alice"}

	rec := fromProfile(in, now)
	if rec.CreatedAt != now {
		t.Fatalf("expected created_at %v, got %v", now, rec.CreatedAt)
	}
	if got := *rec.toProfile(); got != in {
		t.Fatalf("expected %+v, got %+v", in, got)
	}
}

func TestInsertIsNeverRetried(t *testing.T) {
	s := New(nil, "profiles", retry.DefaultPolicy(3), zap.NewNop())
	if s.policy.Attempts != 3 {
		t.Fatalf("expected reads to keep 3 attempts, got %d", s.policy.Attempts)
	}
	if s.insertPolicy.Attempts != 1 {
		t.Fatalf("expected a single insert attempt, got %d", s.insertPolicy.Attempts)
	}
}
