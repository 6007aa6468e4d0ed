package port

import (
	"context"

	"satrack/internal/domain/model"
)

// Sink receives each position after it has been stored. Sinks are best
// effort: a failing sink is logged and counted, never blocks collection.
type Sink interface {
	// Name identifies the sink in logs and metrics labels.
	Name() string
	Publish(ctx context.Context, p model.Position) error
	Close() error
}
