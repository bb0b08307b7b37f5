// Package grpcprovider implements provider.Client against a self-hosted
// detection service speaking gRPC. Messages are google.protobuf.Struct
// values so no generated stubs are needed on either side.
package grpcprovider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/example/proctor/internal/logging"
	"github.com/example/proctor/internal/provider"
	"github.com/example/proctor/internal/retry"
)

// ServiceName is the fully qualified gRPC service the client calls.
const ServiceName = "proctor.detection.v1.DetectionService"

const (
	MethodDetectFaces            = "DetectFaces"
	MethodDetectLabels           = "DetectLabels"
	MethodDetectModerationLabels = "DetectModerationLabels"
	MethodSearchFaces            = "SearchFaces"
	MethodIndexFace              = "IndexFace"
	MethodRemoveFaces            = "RemoveFaces"
)

// Dial returns a ready-to-use client for the detection service at addr.
func Dial(ctx context.Context, addr string, policy retry.Policy, logger *zap.Logger, opts ...grpc.DialOption) (*Client, *grpc.ClientConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	}, opts...)
	conn, err := grpc.DialContext(dialCtx, addr, opts...)
	if err != nil {
		wrapped := logging.NewOperationError("grpcprovider.dial", "", err)
		logger.Error("failed to dial detection service", zap.Error(wrapped), zap.String("addr", addr))
		return nil, nil, wrapped
	}
	return New(conn, policy, logger), conn, nil
}

// Client calls the detection service over an existing connection.
type Client struct {
	conn   grpc.ClientConnInterface
	policy retry.Policy
	logger *zap.Logger
}

var _ provider.Client = (*Client)(nil)

// New wraps conn.
func New(conn grpc.ClientConnInterface, policy retry.Policy, logger *zap.Logger) *Client {
	return &Client{conn: conn, policy: policy, logger: logger.Named("grpc_provider")}
}

type wireFace struct {
	Confidence float64        `json:"confidence"`
	EyesOpen   *bool          `json:"eyes_open"`
	MouthOpen  *bool          `json:"mouth_open"`
	Pose       *provider.Pose `json:"pose"`
	Emotions   []wireEmotion  `json:"emotions"`
	Landmarks  []wireLandmark `json:"landmarks"`
}

type wireEmotion struct {
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

type wireLandmark struct {
	Type string  `json:"type"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

type wireLabel struct {
	Name       string  `json:"name"`
	ParentName string  `json:"parent_name"`
	Confidence float64 `json:"confidence"`
	Instances  int     `json:"instances"`
}

type wireIndexedFace struct {
	FaceID          string  `json:"face_id"`
	ExternalImageID string  `json:"external_image_id"`
	Similarity      float64 `json:"similarity"`
}

func (c *Client) DetectFaces(ctx context.Context, image []byte) ([]provider.FaceDetail, error) {
	var resp struct {
		Faces []wireFace `json:"faces"`
	}
	if err := c.call(ctx, MethodDetectFaces, true, map[string]any{"image": encodeImage(image)}, &resp); err != nil {
		return nil, err
	}

	faces := make([]provider.FaceDetail, 0, len(resp.Faces))
	for _, f := range resp.Faces {
		fd := provider.FaceDetail{
			Confidence: f.Confidence,
			EyesOpen:   f.EyesOpen,
			MouthOpen:  f.MouthOpen,
			Pose:       f.Pose,
		}
		for _, e := range f.Emotions {
			fd.Emotions = append(fd.Emotions, provider.Emotion{Type: e.Type, Confidence: e.Confidence})
		}
		for _, l := range f.Landmarks {
			fd.Landmarks = append(fd.Landmarks, provider.Landmark{Type: l.Type, X: l.X, Y: l.Y})
		}
		faces = append(faces, fd)
	}
	return faces, nil
}

func (c *Client) DetectLabels(ctx context.Context, image []byte, minConfidence float64) ([]provider.Label, error) {
	var resp struct {
		Labels []wireLabel `json:"labels"`
	}
	req := map[string]any{"image": encodeImage(image), "min_confidence": minConfidence}
	if err := c.call(ctx, MethodDetectLabels, true, req, &resp); err != nil {
		return nil, err
	}

	labels := make([]provider.Label, 0, len(resp.Labels))
	for _, l := range resp.Labels {
		labels = append(labels, provider.Label{Name: l.Name, Confidence: l.Confidence, Instances: l.Instances})
	}
	return labels, nil
}

func (c *Client) DetectModerationLabels(ctx context.Context, image []byte, minConfidence float64) ([]provider.ModerationLabel, error) {
	var resp struct {
		Labels []wireLabel `json:"moderation_labels"`
	}
	req := map[string]any{"image": encodeImage(image), "min_confidence": minConfidence}
	if err := c.call(ctx, MethodDetectModerationLabels, true, req, &resp); err != nil {
		return nil, err
	}

	labels := make([]provider.ModerationLabel, 0, len(resp.Labels))
	for _, l := range resp.Labels {
		labels = append(labels, provider.ModerationLabel{Name: l.Name, ParentName: l.ParentName, Confidence: l.Confidence})
	}
	return labels, nil
}

// SearchFaces maps a NotFound status and an empty match list to
// provider.ErrNoFaceMatch.
func (c *Client) SearchFaces(ctx context.Context, collectionID string, image []byte, threshold float64, maxFaces int) ([]provider.FaceMatch, error) {
	var resp struct {
		Matches []wireIndexedFace `json:"matches"`
	}
	req := map[string]any{
		"image":         encodeImage(image),
		"collection_id": collectionID,
		"threshold":     threshold,
		"max_faces":     maxFaces,
	}
	if err := c.call(ctx, MethodSearchFaces, true, req, &resp); err != nil {
		if status.Code(errors.Unwrap(err)) == codes.NotFound {
			return nil, fmt.Errorf("%w: %v", provider.ErrNoFaceMatch, err)
		}
		return nil, err
	}
	if len(resp.Matches) == 0 {
		return nil, provider.ErrNoFaceMatch
	}

	matches := make([]provider.FaceMatch, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		matches = append(matches, provider.FaceMatch{FaceID: m.FaceID, ExternalImageID: m.ExternalImageID, Similarity: m.Similarity})
	}
	return matches, nil
}

// IndexFace is not retried: a lost response may still have indexed the face.
func (c *Client) IndexFace(ctx context.Context, collectionID, externalImageID string, image []byte) ([]provider.IndexedFace, error) {
	var resp struct {
		Faces []wireIndexedFace `json:"faces"`
	}
	req := map[string]any{
		"image":             encodeImage(image),
		"collection_id":     collectionID,
		"external_image_id": externalImageID,
	}
	if err := c.call(ctx, MethodIndexFace, false, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Faces) == 0 {
		return nil, provider.ErrNoFaceIndexed
	}

	faces := make([]provider.IndexedFace, 0, len(resp.Faces))
	for _, f := range resp.Faces {
		faces = append(faces, provider.IndexedFace{FaceID: f.FaceID, ExternalImageID: f.ExternalImageID})
	}
	return faces, nil
}

func (c *Client) RemoveFaces(ctx context.Context, collectionID string, faceIDs []string) error {
	if len(faceIDs) == 0 {
		return nil
	}
	ids := make([]any, len(faceIDs))
	for i, id := range faceIDs {
		ids[i] = id
	}
	req := map[string]any{"collection_id": collectionID, "face_ids": ids}
	return c.call(ctx, MethodRemoveFaces, true, req, nil)
}

func (c *Client) call(ctx context.Context, method string, retryable bool, req map[string]any, out any) error {
	operation := "grpcprovider." + method
	in, err := structpb.NewStruct(req)
	if err != nil {
		return logging.NewOperationError(operation, logging.RequestID(ctx), err)
	}

	policy := c.policy
	if !retryable {
		policy.Attempts = 1
	}
	resp := &structpb.Struct{}
	err = retry.Do(ctx, policy, c.logger, operation, func() error {
		return c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, in, resp)
	})
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}

	data, err := protojson.Marshal(resp)
	if err != nil {
		return logging.NewOperationError(operation, logging.RequestID(ctx), err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return logging.NewOperationError(operation, logging.RequestID(ctx), fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func encodeImage(image []byte) string {
	return base64.StdEncoding.EncodeToString(image)
}
