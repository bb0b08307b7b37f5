package dynamo

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/proctor/internal/identity"
)

type memoryAPI struct {
	items  map[string]map[string]types.AttributeValue
	putIn  *dynamodb.PutItemInput
	getErr error
}

func (m *memoryAPI) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	key := in.Key["ExternalImageId"].(*types.AttributeValueMemberS).Value
	return &dynamodb.GetItemOutput{Item: m.items[key]}, nil
}

func (m *memoryAPI) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.putIn = in
	key := in.Item["ExternalImageId"].(*types.AttributeValueMemberS).Value
	m.items[key] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func TestPutThenGet(t *testing.T) {
	api := &memoryAPI{items: map[string]map[string]types.AttributeValue{}}
	store := New(api, "profiles")

	profile := identity.Profile{CollectionID: "col", IdentityToken: "tok-1", FullName: "Alice"}
	require.NoError(t, store.Put(context.Background(), profile))

	assert.Equal(t, "profiles", aws.ToString(api.putIn.TableName))
	assert.Equal(t, "Alice", api.putIn.Item["FullName"].(*types.AttributeValueMemberS).Value)
	assert.Equal(t, "col", api.putIn.Item["CollectionId"].(*types.AttributeValueMemberS).Value)
	assert.NotNil(t, api.putIn.ConditionExpression)

	got, err := store.Get(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, profile, *got)
}

func TestGetMissingProfile(t *testing.T) {
	store := New(&memoryAPI{items: map[string]map[string]types.AttributeValue{}}, "profiles")
	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, identity.ErrProfileNotFound)
}

func TestGetPropagatesErrors(t *testing.T) {
	boom := errors.New("throttled")
	store := New(&memoryAPI{getErr: boom}, "profiles")
	_, err := store.Get(context.Background(), "tok")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, identity.ErrProfileNotFound)
}
