// Package identity holds enrolled profiles keyed by identity token.
package identity

import (
	"context"
	"errors"
)

// ErrProfileNotFound is returned by Store.Get for an unknown token.
var ErrProfileNotFound = errors.New("identity profile not found")

// Profile is created once at enrollment and never mutated.
type Profile struct {
	CollectionID  string `json:"collection_id" dynamodbav:"CollectionId" bson:"collection_id"`
	IdentityToken string `json:"identity_token" dynamodbav:"ExternalImageId" bson:"_id"`
	FullName      string `json:"full_name" dynamodbav:"FullName" bson:"full_name"`
}

// Store persists and reads profiles.
type Store interface {
	Get(ctx context.Context, identityToken string) (*Profile, error)
	Put(ctx context.Context, profile Profile) error
}
