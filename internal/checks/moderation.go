package checks

import (
	"context"

	"go.uber.org/zap"

	"github.com/example/proctor/internal/logging"
	"github.com/example/proctor/internal/provider"
	"github.com/example/proctor/internal/report"
)

// Moderation passes only when no unsafe-content label is returned.
type Moderation struct {
	client        provider.Client
	minConfidence float64
	logger        *zap.Logger
}

func NewModeration(client provider.Client, minConfidence float64, logger *zap.Logger) *Moderation {
	return &Moderation{client: client, minConfidence: minConfidence, logger: logger.Named("moderation")}
}

func (c *Moderation) Name() string { return "moderation" }

func (c *Moderation) Fallback() []report.TestRecord {
	return report.Failed(report.ServerError, report.UnsafeContent)
}

func (c *Moderation) Run(ctx context.Context, image []byte) []report.TestRecord {
	labels, err := c.client.DetectModerationLabels(ctx, image, c.minConfidence)
	if err != nil {
		logging.WithOperation(c.logger, "checks.moderation", logging.RequestID(ctx)).
			Warn("moderation detection failed", zap.Error(err))
		return c.Fallback()
	}

	names := make([]string, 0, len(labels))
	for _, l := range labels {
		names = append(names, l.Name)
	}
	return []report.TestRecord{
		{Name: report.UnsafeContent, Success: len(labels) == 0, Details: report.SortedList(names)},
	}
}
