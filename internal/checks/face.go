package checks

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/example/proctor/internal/logging"
	"github.com/example/proctor/internal/provider"
	"github.com/example/proctor/internal/report"
)

var (
	errNoFace           = errors.New("no face detected")
	errAttributeMissing = errors.New("face attribute missing")
)

var faceQualitySlots = []string{
	report.FaceDetection,
	report.EyesOpenDetection,
	report.MouthOpen,
	report.PitchDetection,
	report.RollDetection,
	report.YawDetection,
	report.EmotionDetection,
	report.EyesDetection,
}

// FaceQuality counts faces and reads the attributes of the first one.
//
// Apart from Face Detection, each record only asserts that the attribute was
// readable and truthy: a closed eye or a zero angle fails the record exactly
// like a missing attribute would.
type FaceQuality struct {
	client provider.Client
	logger *zap.Logger
}

func NewFaceQuality(client provider.Client, logger *zap.Logger) *FaceQuality {
	return &FaceQuality{client: client, logger: logger.Named("face_quality")}
}

func (c *FaceQuality) Name() string { return "face_quality" }

func (c *FaceQuality) Fallback() []report.TestRecord {
	return report.Failed(report.ServerError, faceQualitySlots...)
}

func (c *FaceQuality) Run(ctx context.Context, image []byte) []report.TestRecord {
	records, err := c.evaluate(ctx, image)
	if err != nil {
		logging.WithOperation(c.logger, "checks.face_quality", logging.RequestID(ctx)).
			Warn("face quality check failed", zap.Error(err))
		return c.Fallback()
	}
	return records
}

func (c *FaceQuality) evaluate(ctx context.Context, image []byte) ([]report.TestRecord, error) {
	faces, err := c.client.DetectFaces(ctx, image)
	if err != nil {
		return nil, err
	}
	if len(faces) == 0 {
		return nil, errNoFace
	}

	first := faces[0]
	if first.EyesOpen == nil || first.MouthOpen == nil || first.Pose == nil ||
		len(first.Emotions) == 0 || len(first.Landmarks) == 0 {
		return nil, errAttributeMissing
	}

	eyes := *first.EyesOpen
	mouth := *first.MouthOpen
	pose := *first.Pose
	emotion := first.Emotions[0].Type
	landmarkY := first.Landmarks[0].Y

	return []report.TestRecord{
		{Name: report.FaceDetection, Success: len(faces) == 1, Details: report.Count(len(faces))},
		{Name: report.EyesOpenDetection, Success: eyes, Details: report.YesNo(eyes)},
		{Name: report.MouthOpen, Success: mouth, Details: report.YesNo(mouth)},
		{Name: report.PitchDetection, Success: pose.Pitch != 0, Details: report.Number(pose.Pitch)},
		{Name: report.RollDetection, Success: pose.Roll != 0, Details: report.Number(pose.Roll)},
		{Name: report.YawDetection, Success: pose.Yaw != 0, Details: report.Number(pose.Yaw)},
		{Name: report.EmotionDetection, Success: emotion != "", Details: emotion},
		{Name: report.EyesDetection, Success: landmarkY != 0, Details: report.Number(landmarkY)},
	}, nil
}
