// Package checks holds the independent check units run against a submitted
// image. Each unit always returns the same fixed-size, fixed-order set of
// records; collaborator failures are mapped to failure records inside the
// unit and never returned to the caller.
package checks

import (
	"context"

	"github.com/example/proctor/internal/report"
)

// Check is one failure-isolated unit of verification.
type Check interface {
	// Name identifies the unit in logs, metrics and traces.
	Name() string
	// Run never returns fewer or more records than Fallback.
	Run(ctx context.Context, image []byte) []report.TestRecord
	// Fallback is what the unit reports when it could not finish in time.
	Fallback() []report.TestRecord
}
