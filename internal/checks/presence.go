package checks

import (
	"context"

	"go.uber.org/zap"

	"github.com/example/proctor/internal/logging"
	"github.com/example/proctor/internal/provider"
	"github.com/example/proctor/internal/report"
)

const personLabel = "Person"

// PresenceConfig configures the object/person check.
type PresenceConfig struct {
	MinConfidence float64
	DenyList      []string
}

// Presence flags deny-listed objects and requires exactly one person.
type Presence struct {
	client        provider.Client
	minConfidence float64
	denied        map[string]struct{}
	logger        *zap.Logger
}

func NewPresence(client provider.Client, cfg PresenceConfig, logger *zap.Logger) *Presence {
	denied := make(map[string]struct{}, len(cfg.DenyList))
	for _, l := range cfg.DenyList {
		denied[l] = struct{}{}
	}
	return &Presence{
		client:        client,
		minConfidence: cfg.MinConfidence,
		denied:        denied,
		logger:        logger.Named("presence"),
	}
}

func (c *Presence) Name() string { return "presence" }

func (c *Presence) Fallback() []report.TestRecord {
	return report.Failed(report.ServerError, report.ObjectsOfInterest, report.PersonDetection)
}

func (c *Presence) Run(ctx context.Context, image []byte) []report.TestRecord {
	labels, err := c.client.DetectLabels(ctx, image, c.minConfidence)
	if err != nil {
		logging.WithOperation(c.logger, "checks.presence", logging.RequestID(ctx)).
			Warn("label detection failed", zap.Error(err))
		return c.Fallback()
	}

	var offending []string
	people := 0
	personSeen := false
	for _, l := range labels {
		if _, ok := c.denied[l.Name]; ok {
			offending = append(offending, l.Name)
		}
		if l.Name == personLabel && !personSeen {
			personSeen = true
			people = l.Instances
		}
	}

	return []report.TestRecord{
		{Name: report.ObjectsOfInterest, Success: len(offending) == 0, Details: report.LabelList(offending)},
		{Name: report.PersonDetection, Success: people == 1, Details: report.Count(people)},
	}
}
