package port

import (
	"context"
	"errors"

	"satrack/internal/domain/model"
)

// ErrRejected marks an upstream payload that arrived but cannot become a
// valid position (undecodable body, unusable coordinates). Transport and
// HTTP failures are plain errors, not rejections.
var ErrRejected = errors.New("payload rejected")

// Feed produces the current position from an upstream telemetry source.
// Fetch must honor ctx for cancellation and return a validated, normalized
// position; callers treat any error as a skipped cycle, not a fatal one.
type Feed interface {
	Fetch(ctx context.Context) (model.Position, error)
}
