// Package provider is the contract to the external face, object and content
// detection capability. Implementations live in subpackages.
package provider

import (
	"context"
	"errors"
)

var (
	// ErrNoFaceMatch is returned by SearchFaces when the collection holds no
	// face above the threshold, or the image holds no searchable face.
	ErrNoFaceMatch = errors.New("no matching face in collection")
	// ErrNoFaceIndexed is returned by IndexFace when no face could be indexed.
	ErrNoFaceIndexed = errors.New("no face indexed")
)

// Pose is the head orientation of a detected face, in degrees.
type Pose struct {
	Pitch float64
	Roll  float64
	Yaw   float64
}

// Emotion is one classified emotion, in provider order.
type Emotion struct {
	Type       string
	Confidence float64
}

// Landmark is a facial landmark in ratio coordinates of the image.
type Landmark struct {
	Type string
	X    float64
	Y    float64
}

// FaceDetail carries the attributes of one detected face. A nil pointer or
// empty slice means the provider did not return the attribute.
type FaceDetail struct {
	Confidence float64
	EyesOpen   *bool
	MouthOpen  *bool
	Pose       *Pose
	Emotions   []Emotion
	Landmarks  []Landmark
}

// Label is a detected object or scene label.
type Label struct {
	Name       string
	Confidence float64
	Instances  int
}

// ModerationLabel is a detected unsafe-content label.
type ModerationLabel struct {
	Name       string
	ParentName string
	Confidence float64
}

// FaceMatch is a collection face similar to the searched image.
type FaceMatch struct {
	FaceID          string
	ExternalImageID string
	Similarity      float64
}

// IndexedFace identifies a face stored in a collection.
type IndexedFace struct {
	FaceID          string
	ExternalImageID string
}

// Client exposes the detection capabilities consumed by the checks and by
// enrollment. Thresholds are percentages in [0,100].
type Client interface {
	DetectFaces(ctx context.Context, image []byte) ([]FaceDetail, error)
	DetectLabels(ctx context.Context, image []byte, minConfidence float64) ([]Label, error)
	DetectModerationLabels(ctx context.Context, image []byte, minConfidence float64) ([]ModerationLabel, error)
	SearchFaces(ctx context.Context, collectionID string, image []byte, threshold float64, maxFaces int) ([]FaceMatch, error)
	IndexFace(ctx context.Context, collectionID, externalImageID string, image []byte) ([]IndexedFace, error)
	RemoveFaces(ctx context.Context, collectionID string, faceIDs []string) error
}
