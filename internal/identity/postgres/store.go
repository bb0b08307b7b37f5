// Package postgres stores identity profiles in PostgreSQL through gorm.
package postgres

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/proctor/internal/identity"
	"github.com/example/proctor/internal/retry"
)

// ProfileRecord is the persisted row of an identity profile.
type ProfileRecord struct {
	IdentityToken string    `gorm:"column:external_image_id;primaryKey;size:64"`
	CollectionID  string    `gorm:"column:collection_id;index;size:255"`
	FullName      string    `gorm:"column:full_name;type:text"`
	CreatedAt     time.Time `gorm:"column:created_at"`
}

func (r ProfileRecord) toProfile() *identity.Profile {
	return &identity.Profile{
		CollectionID:  r.CollectionID,
		IdentityToken: r.IdentityToken,
		FullName:      r.FullName,
	}
}

func fromProfile(p identity.Profile, now time.Time) ProfileRecord {
	return ProfileRecord{
		IdentityToken: p.IdentityToken,
		CollectionID:  p.CollectionID,
		FullName:      p.FullName,
		CreatedAt:     now,
	}
}

// Store provides persistence for identity profiles.
type Store struct {
	db     *gorm.DB
	table  string
	policy retry.Policy
	// Inserts are not idempotent and run once.
	insertPolicy retry.Policy
	logger       *zap.Logger
}

var _ identity.Store = (*Store)(nil)

// New creates a store writing to table.
func New(db *gorm.DB, table string, policy retry.Policy, logger *zap.Logger) *Store {
	return &Store{
		db:           db,
		table:        table,
		policy:       policy,
		insertPolicy: policy.Once(),
		logger:       logger.Named("profile_store"),
	}
}

// AutoMigrate ensures the schema is available.
func (s *Store) AutoMigrate(ctx context.Context) error {
	return s.db.WithContext(ctx).Table(s.table).AutoMigrate(&ProfileRecord{})
}

func (s *Store) Get(ctx context.Context, identityToken string) (*identity.Profile, error) {
	var rec ProfileRecord
	err := retry.Do(ctx, s.policy, s.logger, "postgres.get_profile", func() error {
		return s.db.WithContext(ctx).Table(s.table).First(&rec, "external_image_id = ?", identityToken).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, identity.ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec.toProfile(), nil
}

// Put inserts the profile. A duplicate token fails on the primary key.
func (s *Store) Put(ctx context.Context, profile identity.Profile) error {
	rec := fromProfile(profile, time.Now().UTC())
	return retry.Do(ctx, s.insertPolicy, s.logger, "postgres.put_profile", func() error {
		return s.db.WithContext(ctx).Table(s.table).Create(&rec).Error
	})
}
