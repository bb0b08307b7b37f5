// Package rekognition implements provider.Client on Amazon Rekognition.
package rekognition

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/example/proctor/internal/logging"
	"github.com/example/proctor/internal/provider"
)

// Rekognition reports "no face in the image" for SearchFacesByImage with
// this code.
const errCodeInvalidParameter = "InvalidParameterException"

// API is the subset of the Rekognition client used here.
type API interface {
	DetectFaces(ctx context.Context, params *rekognition.DetectFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectFacesOutput, error)
	DetectLabels(ctx context.Context, params *rekognition.DetectLabelsInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectLabelsOutput, error)
	DetectModerationLabels(ctx context.Context, params *rekognition.DetectModerationLabelsInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectModerationLabelsOutput, error)
	SearchFacesByImage(ctx context.Context, params *rekognition.SearchFacesByImageInput, optFns ...func(*rekognition.Options)) (*rekognition.SearchFacesByImageOutput, error)
	IndexFaces(ctx context.Context, params *rekognition.IndexFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.IndexFacesOutput, error)
	DeleteFaces(ctx context.Context, params *rekognition.DeleteFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.DeleteFacesOutput, error)
}

// Client adapts API to provider.Client.
type Client struct {
	api    API
	logger *zap.Logger
}

var _ provider.Client = (*Client)(nil)

// New wraps a Rekognition API client.
func New(api API, logger *zap.Logger) *Client {
	return &Client{api: api, logger: logger.Named("rekognition")}
}

// NewFromConfig builds a Client from an AWS config.
func NewFromConfig(cfg aws.Config, logger *zap.Logger) *Client {
	return New(rekognition.NewFromConfig(cfg), logger)
}

func (c *Client) DetectFaces(ctx context.Context, image []byte) ([]provider.FaceDetail, error) {
	out, err := c.api.DetectFaces(ctx, &rekognition.DetectFacesInput{
		Image:      &types.Image{Bytes: image},
		Attributes: []types.Attribute{types.AttributeAll},
	})
	if err != nil {
		return nil, c.wrap(ctx, "rekognition.detect_faces", err)
	}

	faces := make([]provider.FaceDetail, 0, len(out.FaceDetails))
	for _, fd := range out.FaceDetails {
		faces = append(faces, toFaceDetail(fd))
	}
	return faces, nil
}

func (c *Client) DetectLabels(ctx context.Context, image []byte, minConfidence float64) ([]provider.Label, error) {
	out, err := c.api.DetectLabels(ctx, &rekognition.DetectLabelsInput{
		Image:         &types.Image{Bytes: image},
		MinConfidence: aws.Float32(float32(minConfidence)),
	})
	if err != nil {
		return nil, c.wrap(ctx, "rekognition.detect_labels", err)
	}

	labels := make([]provider.Label, 0, len(out.Labels))
	for _, l := range out.Labels {
		labels = append(labels, provider.Label{
			Name:       aws.ToString(l.Name),
			Confidence: float64(aws.ToFloat32(l.Confidence)),
			Instances:  len(l.Instances),
		})
	}
	return labels, nil
}

func (c *Client) DetectModerationLabels(ctx context.Context, image []byte, minConfidence float64) ([]provider.ModerationLabel, error) {
	out, err := c.api.DetectModerationLabels(ctx, &rekognition.DetectModerationLabelsInput{
		Image:         &types.Image{Bytes: image},
		MinConfidence: aws.Float32(float32(minConfidence)),
	})
	if err != nil {
		return nil, c.wrap(ctx, "rekognition.detect_moderation_labels", err)
	}

	labels := make([]provider.ModerationLabel, 0, len(out.ModerationLabels))
	for _, l := range out.ModerationLabels {
		labels = append(labels, provider.ModerationLabel{
			Name:       aws.ToString(l.Name),
			ParentName: aws.ToString(l.ParentName),
			Confidence: float64(aws.ToFloat32(l.Confidence)),
		})
	}
	return labels, nil
}

// SearchFaces returns provider.ErrNoFaceMatch both when nothing in the
// collection matches and when Rekognition finds no face to search with.
func (c *Client) SearchFaces(ctx context.Context, collectionID string, image []byte, threshold float64, maxFaces int) ([]provider.FaceMatch, error) {
	out, err := c.api.SearchFacesByImage(ctx, &rekognition.SearchFacesByImageInput{
		CollectionId:       aws.String(collectionID),
		Image:              &types.Image{Bytes: image},
		FaceMatchThreshold: aws.Float32(float32(threshold)),
		MaxFaces:           aws.Int32(int32(maxFaces)),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == errCodeInvalidParameter {
			return nil, logging.NewOperationError("rekognition.search_faces", logging.RequestID(ctx),
				fmt.Errorf("%w: %s", provider.ErrNoFaceMatch, apiErr.ErrorMessage()))
		}
		return nil, c.wrap(ctx, "rekognition.search_faces", err)
	}
	if len(out.FaceMatches) == 0 {
		return nil, provider.ErrNoFaceMatch
	}

	matches := make([]provider.FaceMatch, 0, len(out.FaceMatches))
	for _, m := range out.FaceMatches {
		match := provider.FaceMatch{Similarity: float64(aws.ToFloat32(m.Similarity))}
		if m.Face != nil {
			match.FaceID = aws.ToString(m.Face.FaceId)
			match.ExternalImageID = aws.ToString(m.Face.ExternalImageId)
		}
		matches = append(matches, match)
	}
	return matches, nil
}

func (c *Client) IndexFace(ctx context.Context, collectionID, externalImageID string, image []byte) ([]provider.IndexedFace, error) {
	out, err := c.api.IndexFaces(ctx, &rekognition.IndexFacesInput{
		CollectionId:    aws.String(collectionID),
		ExternalImageId: aws.String(externalImageID),
		Image:           &types.Image{Bytes: image},
	})
	if err != nil {
		return nil, c.wrap(ctx, "rekognition.index_faces", err)
	}

	faces := make([]provider.IndexedFace, 0, len(out.FaceRecords))
	for _, rec := range out.FaceRecords {
		if rec.Face == nil {
			continue
		}
		faces = append(faces, provider.IndexedFace{
			FaceID:          aws.ToString(rec.Face.FaceId),
			ExternalImageID: aws.ToString(rec.Face.ExternalImageId),
		})
	}
	if len(faces) == 0 {
		return nil, provider.ErrNoFaceIndexed
	}
	return faces, nil
}

func (c *Client) RemoveFaces(ctx context.Context, collectionID string, faceIDs []string) error {
	if len(faceIDs) == 0 {
		return nil
	}
	_, err := c.api.DeleteFaces(ctx, &rekognition.DeleteFacesInput{
		CollectionId: aws.String(collectionID),
		FaceIds:      faceIDs,
	})
	return c.wrap(ctx, "rekognition.delete_faces", err)
}

func (c *Client) wrap(ctx context.Context, operation string, err error) error {
	if err == nil {
		return nil
	}
	wrapped := logging.NewOperationError(operation, logging.RequestID(ctx), err)
	c.logger.Debug("rekognition call failed", zap.Error(wrapped))
	return wrapped
}

func toFaceDetail(fd types.FaceDetail) provider.FaceDetail {
	out := provider.FaceDetail{Confidence: float64(aws.ToFloat32(fd.Confidence))}
	if fd.EyesOpen != nil {
		out.EyesOpen = aws.Bool(fd.EyesOpen.Value)
	}
	if fd.MouthOpen != nil {
		out.MouthOpen = aws.Bool(fd.MouthOpen.Value)
	}
	if fd.Pose != nil {
		out.Pose = &provider.Pose{
			Pitch: float64(aws.ToFloat32(fd.Pose.Pitch)),
			Roll:  float64(aws.ToFloat32(fd.Pose.Roll)),
			Yaw:   float64(aws.ToFloat32(fd.Pose.Yaw)),
		}
	}
	for _, e := range fd.Emotions {
		out.Emotions = append(out.Emotions, provider.Emotion{
			Type:       string(e.Type),
			Confidence: float64(aws.ToFloat32(e.Confidence)),
		})
	}
	for _, l := range fd.Landmarks {
		out.Landmarks = append(out.Landmarks, provider.Landmark{
			Type: string(l.Type),
			X:    float64(aws.ToFloat32(l.X)),
			Y:    float64(aws.ToFloat32(l.Y)),
		})
	}
	return out
}
