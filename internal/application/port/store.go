package port

import (
	"context"
	"errors"
	"time"

	"satrack/internal/domain/model"
)

// ErrNoData indicates the store holds no record satisfying the request.
var ErrNoData = errors.New("no data")

// Query selects a page of positions. Day is optional ("" = whole retained
// window). With a day filter results are ordered timestamp ascending; without
// one they are ordered descending (newest first). Ties on equal timestamps
// follow insertion order via the id.
type Query struct {
	Day      string
	Page     int // 1-based
	PageSize int
}

func (q Query) Offset() int { return (q.Page - 1) * q.PageSize }

// Store owns the retained position series. The collector is the only writer
// (Insert, EvictBefore); queries and exports read concurrently. Implementations
// must keep an insert atomic from a reader's point of view.
type Store interface {
	// Insert appends p and returns the assigned id, strictly increasing
	// in insertion order regardless of p's timestamp.
	Insert(ctx context.Context, p model.Position) (int64, error)

	// Count reports the number of live (non-evicted) records.
	Count(ctx context.Context) (int64, error)

	// EvictBefore removes every record with timestamp < cutoff and reports
	// how many were removed. Idempotent: a second pass with nothing new to
	// remove returns 0.
	EvictBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Days lists the distinct day keys with at least one record, most
	// recent first.
	Days(ctx context.Context) ([]string, error)

	// CountByDay reports the number of records per day key.
	CountByDay(ctx context.Context) (map[string]int64, error)

	// Latest returns the most recently inserted record, or ErrNoData.
	Latest(ctx context.Context) (model.Position, error)

	// Query returns one page of records plus the total matching count.
	Query(ctx context.Context, q Query) ([]model.Position, int64, error)

	// Stream invokes fn for every record (optionally limited to one day)
	// in ascending timestamp order without materializing the full set.
	// Eviction racing a stream may drop trailing rows but never corrupts
	// the sequence. fn returning an error aborts the stream.
	Stream(ctx context.Context, day string, fn func(model.Position) error) error

	Close() error
}
