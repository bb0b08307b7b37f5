// Package dynamo stores identity profiles in a DynamoDB table keyed by
// ExternalImageId.
package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/example/proctor/internal/identity"
	"github.com/example/proctor/internal/logging"
)

// API is the subset of the DynamoDB client used here.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

type Store struct {
	api   API
	table string
}

var _ identity.Store = (*Store)(nil)

func New(api API, table string) *Store {
	return &Store{api: api, table: table}
}

// NewFromConfig builds a Store from an AWS config.
func NewFromConfig(cfg aws.Config, table string) *Store {
	return New(dynamodb.NewFromConfig(cfg), table)
}

func (s *Store) Get(ctx context.Context, identityToken string) (*identity.Profile, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"ExternalImageId": &types.AttributeValueMemberS{Value: identityToken},
		},
	})
	if err != nil {
		return nil, logging.NewOperationError("dynamo.get_profile", logging.RequestID(ctx), err)
	}
	if len(out.Item) == 0 {
		return nil, identity.ErrProfileNotFound
	}

	var p identity.Profile
	if err := attributevalue.UnmarshalMap(out.Item, &p); err != nil {
		return nil, logging.NewOperationError("dynamo.get_profile", logging.RequestID(ctx), fmt.Errorf("decode item: %w", err))
	}
	return &p, nil
}

// Put refuses to overwrite an existing token.
func (s *Store) Put(ctx context.Context, profile identity.Profile) error {
	item, err := attributevalue.MarshalMap(profile)
	if err != nil {
		return logging.NewOperationError("dynamo.put_profile", logging.RequestID(ctx), err)
	}
	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(ExternalImageId)"),
	})
	return logging.NewOperationError("dynamo.put_profile", logging.RequestID(ctx), err)
}
