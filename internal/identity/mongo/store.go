// Package mongo stores identity profiles in a MongoDB collection, one
// document per token.
package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/example/proctor/internal/identity"
	"github.com/example/proctor/internal/retry"
)

type Store struct {
	coll   *mongo.Collection
	policy retry.Policy
	// Inserts are not idempotent and run once.
	insertPolicy retry.Policy
	logger       *zap.Logger
}

var _ identity.Store = (*Store)(nil)

// Connect opens a client and pings the primary.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return client, nil
}

func New(client *mongo.Client, database, collection string, policy retry.Policy, logger *zap.Logger) *Store {
	return &Store{
		coll:         client.Database(database).Collection(collection),
		policy:       policy,
		insertPolicy: policy.Once(),
		logger:       logger.Named("profile_store"),
	}
}

func (s *Store) Get(ctx context.Context, identityToken string) (*identity.Profile, error) {
	var p identity.Profile
	err := retry.Do(ctx, s.policy, s.logger, "mongo.get_profile", func() error {
		return s.coll.FindOne(ctx, bson.M{"_id": identityToken}).Decode(&p)
	})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, identity.ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) Put(ctx context.Context, profile identity.Profile) error {
	return retry.Do(ctx, s.insertPolicy, s.logger, "mongo.put_profile", func() error {
		_, err := s.coll.InsertOne(ctx, profile)
		return err
	})
}
