package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"satrack/internal/application/port"
	"satrack/internal/domain/model"
)

// Store keeps the full series in memory. Records are immutable once
// appended and eviction always builds a fresh slice, so a reader holding
// a snapshot of the old slice is never disturbed.
type Store struct {
	mu      sync.RWMutex
	nextID  int64
	records []model.Position
}

var _ port.Store = (*Store)(nil)

func New() *Store {
	return &Store{records: make([]model.Position, 0)}
}

func (s *Store) Insert(ctx context.Context, p model.Position) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	p.ID = s.nextID
	s.records = append(s.records, p)
	return p.ID, nil
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.records)), nil
}

func (s *Store) EvictBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	limit := model.NewUTCTime(cutoff).Time

	s.mu.Lock()
	defer s.mu.Unlock()
	kept := make([]model.Position, 0, len(s.records))
	for _, p := range s.records {
		if !p.Timestamp.Before(limit) {
			kept = append(kept, p)
		}
	}
	evicted := int64(len(s.records) - len(kept))
	s.records = kept
	return evicted, nil
}

func (s *Store) Days(ctx context.Context) ([]string, error) {
	counts, err := s.CountByDay(ctx)
	if err != nil {
		return nil, err
	}
	days := make([]string, 0, len(counts))
	for day := range counts {
		days = append(days, day)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(days)))
	return days, nil
}

func (s *Store) CountByDay(ctx context.Context) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int64)
	for _, p := range s.records {
		counts[p.Day]++
	}
	return counts, nil
}

func (s *Store) Latest(ctx context.Context) (model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.records) == 0 {
		return model.Position{}, port.ErrNoData
	}
	return s.records[len(s.records)-1], nil
}

func (s *Store) Query(ctx context.Context, q port.Query) ([]model.Position, int64, error) {
	matching := s.snapshot(q.Day)
	if q.Day != "" {
		sortAscending(matching)
	} else {
		sortDescending(matching)
	}

	total := int64(len(matching))
	start := q.Offset()
	if start >= len(matching) {
		return []model.Position{}, total, nil
	}
	end := start + q.PageSize
	if end > len(matching) {
		end = len(matching)
	}
	return matching[start:end], total, nil
}

func (s *Store) Stream(ctx context.Context, day string, fn func(model.Position) error) error {
	matching := s.snapshot(day)
	sortAscending(matching)
	for _, p := range matching {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(p); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error { return nil }

// snapshot copies the records matching the optional day filter so callers
// can sort and slice without holding the lock.
func (s *Store) snapshot(day string) []model.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Position, 0, len(s.records))
	for _, p := range s.records {
		if day == "" || p.Day == day {
			out = append(out, p)
		}
	}
	return out
}

func sortAscending(records []model.Position) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].Timestamp.Equal(records[j].Timestamp.Time) {
			return records[i].ID < records[j].ID
		}
		return records[i].Timestamp.Before(records[j].Timestamp.Time)
	})
}

func sortDescending(records []model.Position) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].Timestamp.Equal(records[j].Timestamp.Time) {
			return records[i].ID > records[j].ID
		}
		return records[i].Timestamp.After(records[j].Timestamp.Time)
	})
}
