package mongo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
	"go.uber.org/zap"

	"github.com/example/proctor/internal/identity"
	"github.com/example/proctor/internal/retry"
)

func newTestStore(mt *mtest.T) *Store {
	s := New(mt.Client, mt.DB.Name(), mt.Coll.Name(), retry.DefaultPolicy(1), zap.NewNop())
	s.coll = mt.Coll
	return s
}

func TestStore(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("get returns stored profile", func(mt *mtest.T) {
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(1, ns, mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "tok-1"},
			{Key: "collection_id", Value: "exam-faces"},
			{Key: "full_name", Value: "Alice"},
		}))

		got, err := newTestStore(mt).Get(context.Background(), "tok-1")
		require.NoError(mt, err)
		assert.Equal(mt, &identity.Profile{CollectionID: "exam-faces", IdentityToken: "tok-1", FullName: "Alice"}, got)
	})

	mt.Run("get unknown token", func(mt *mtest.T) {
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		_, err := newTestStore(mt).Get(context.Background(), "missing")
		assert.ErrorIs(mt, err, identity.ErrProfileNotFound)
	})

	mt.Run("put inserts", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		err := newTestStore(mt).Put(context.Background(), identity.Profile{IdentityToken: "tok-2", FullName: "Bob"})
		assert.NoError(mt, err)
	})

	mt.Run("put duplicate token fails", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "duplicate key error",
		}))

		err := newTestStore(mt).Put(context.Background(), identity.Profile{IdentityToken: "tok-2", FullName: "Bob"})
		assert.Error(mt, err)
	})

	mt.Run("insert is never retried", func(mt *mtest.T) {
		s := New(mt.Client, mt.DB.Name(), mt.Coll.Name(), retry.DefaultPolicy(3), zap.NewNop())
		assert.Equal(mt, 3, s.policy.Attempts)
		assert.Equal(mt, 1, s.insertPolicy.Attempts)
	})
}
