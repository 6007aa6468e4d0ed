// Package storetest holds the behavioral suite every store backend must
// pass. Backend packages call Run from their own tests so the contract
// stays identical across sqlite, postgres, redis and memory.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"satrack/internal/application/port"
	"satrack/internal/domain/model"
)

// Factory returns a fresh, empty store. The suite closes it via Cleanup.
type Factory func(t *testing.T) port.Store

func open(t *testing.T, factory Factory) port.Store {
	t.Helper()
	s := factory(t)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustInsert(t *testing.T, s port.Store, p model.Position) int64 {
	t.Helper()
	id, err := s.Insert(context.Background(), p)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	return id
}

func at(ts time.Time) model.Position {
	alt := 417.0
	return model.NewPosition(45.5, -73.6, &alt, ts)
}

// Run exercises the full store contract against the given factory.
func Run(t *testing.T, factory Factory) {
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("InsertAssignsIncreasingIDs", func(t *testing.T) {
		s := open(t, factory)
		// deliberately insert newest timestamp first: ids follow insertion
		// order, never timestamp order
		id1 := mustInsert(t, s, at(base.Add(2*time.Hour)))
		id2 := mustInsert(t, s, at(base.Add(time.Hour)))
		id3 := mustInsert(t, s, at(base))
		if !(id1 < id2 && id2 < id3) {
			t.Errorf("ids must increase with insertion order: %d, %d, %d", id1, id2, id3)
		}
	})

	t.Run("CountTracksInserts", func(t *testing.T) {
		s := open(t, factory)
		for i := 0; i < 5; i++ {
			mustInsert(t, s, at(base.Add(time.Duration(i)*time.Minute)))
		}
		n, err := s.Count(context.Background())
		if err != nil {
			t.Fatalf("Count failed: %v", err)
		}
		if n != 5 {
			t.Errorf("expected count 5, got %d", n)
		}
	})

	t.Run("LatestEmptyStore", func(t *testing.T) {
		s := open(t, factory)
		if _, err := s.Latest(context.Background()); !errors.Is(err, port.ErrNoData) {
			t.Errorf("expected ErrNoData, got %v", err)
		}
	})

	t.Run("LatestIsLastInserted", func(t *testing.T) {
		s := open(t, factory)
		mustInsert(t, s, at(base.Add(time.Hour)))
		// an out-of-order (older) timestamp still becomes the latest record
		want := mustInsert(t, s, at(base))
		got, err := s.Latest(context.Background())
		if err != nil {
			t.Fatalf("Latest failed: %v", err)
		}
		if got.ID != want {
			t.Errorf("expected latest id %d, got %d", want, got.ID)
		}
	})

	t.Run("DayMatchesTimestampPrefix", func(t *testing.T) {
		s := open(t, factory)
		mustInsert(t, s, at(time.Date(2025, 3, 9, 23, 59, 59, 0, time.UTC)))
		mustInsert(t, s, at(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)))
		err := s.Stream(context.Background(), "", func(p model.Position) error {
			if p.Day != p.Timestamp.String()[:10] {
				t.Errorf("day %q does not match timestamp %q", p.Day, p.Timestamp)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Stream failed: %v", err)
		}
	})

	t.Run("EvictBeforeRemovesExpiredWindow", func(t *testing.T) {
		s := open(t, factory)
		now := time.Now().UTC()
		start := now.AddDate(0, 0, -2)
		mustInsert(t, s, at(start))
		mustInsert(t, s, at(start.Add(60*time.Second)))
		mustInsert(t, s, at(start.Add(120*time.Second)))

		evicted, err := s.EvictBefore(context.Background(), now.AddDate(0, 0, -1))
		if err != nil {
			t.Fatalf("EvictBefore failed: %v", err)
		}
		if evicted != 3 {
			t.Errorf("expected 3 evicted, got %d", evicted)
		}
		n, _ := s.Count(context.Background())
		if n != 0 {
			t.Errorf("expected empty store after eviction, got %d", n)
		}
	})

	t.Run("EvictBeforeIsIdempotent", func(t *testing.T) {
		s := open(t, factory)
		mustInsert(t, s, at(base))
		cutoff := base.Add(time.Hour)
		if n, err := s.EvictBefore(context.Background(), cutoff); err != nil || n != 1 {
			t.Fatalf("first eviction: n=%d err=%v", n, err)
		}
		if n, err := s.EvictBefore(context.Background(), cutoff); err != nil || n != 0 {
			t.Errorf("second eviction must remove nothing: n=%d err=%v", n, err)
		}
	})

	t.Run("EvictBeforeKeepsBoundaryRecord", func(t *testing.T) {
		s := open(t, factory)
		mustInsert(t, s, at(base.Add(-time.Second)))
		keep := mustInsert(t, s, at(base))

		evicted, err := s.EvictBefore(context.Background(), base)
		if err != nil {
			t.Fatalf("EvictBefore failed: %v", err)
		}
		if evicted != 1 {
			t.Errorf("expected 1 evicted, got %d", evicted)
		}
		got, err := s.Latest(context.Background())
		if err != nil {
			t.Fatalf("Latest failed: %v", err)
		}
		if got.ID != keep {
			t.Errorf("record at the cutoff instant must survive, got id %d", got.ID)
		}
	})

	t.Run("EvictBeforeSplitsDayAtTimestamp", func(t *testing.T) {
		s := open(t, factory)
		morning := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
		noon := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
		mustInsert(t, s, at(morning))
		mustInsert(t, s, at(noon))

		// eviction is per record, not per day bucket: the same day can be
		// partially evicted
		if _, err := s.EvictBefore(context.Background(), time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)); err != nil {
			t.Fatalf("EvictBefore failed: %v", err)
		}
		n, _ := s.Count(context.Background())
		if n != 1 {
			t.Errorf("expected the afternoon record to survive, got %d records", n)
		}
		counts, err := s.CountByDay(context.Background())
		if err != nil {
			t.Fatalf("CountByDay failed: %v", err)
		}
		if counts["2025-03-10"] != 1 {
			t.Errorf("expected day count 1, got %d", counts["2025-03-10"])
		}
	})

	t.Run("DaysNewestFirst", func(t *testing.T) {
		s := open(t, factory)
		mustInsert(t, s, at(time.Date(2025, 3, 8, 10, 0, 0, 0, time.UTC)))
		mustInsert(t, s, at(time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)))
		mustInsert(t, s, at(time.Date(2025, 3, 9, 10, 0, 0, 0, time.UTC)))

		days, err := s.Days(context.Background())
		if err != nil {
			t.Fatalf("Days failed: %v", err)
		}
		want := []string{"2025-03-10", "2025-03-09", "2025-03-08"}
		if len(days) != len(want) {
			t.Fatalf("expected %d days, got %v", len(want), days)
		}
		for i := range want {
			if days[i] != want[i] {
				t.Errorf("expected days %v, got %v", want, days)
				break
			}
		}
	})

	t.Run("CountByDay", func(t *testing.T) {
		s := open(t, factory)
		mustInsert(t, s, at(time.Date(2025, 3, 9, 10, 0, 0, 0, time.UTC)))
		mustInsert(t, s, at(time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)))
		mustInsert(t, s, at(time.Date(2025, 3, 10, 11, 0, 0, 0, time.UTC)))

		counts, err := s.CountByDay(context.Background())
		if err != nil {
			t.Fatalf("CountByDay failed: %v", err)
		}
		if counts["2025-03-09"] != 1 || counts["2025-03-10"] != 2 {
			t.Errorf("unexpected counts: %v", counts)
		}
	})

	t.Run("QueryDayAscending", func(t *testing.T) {
		s := open(t, factory)
		// insert out of chronological order
		mustInsert(t, s, at(base.Add(2*time.Minute)))
		mustInsert(t, s, at(base))
		mustInsert(t, s, at(base.Add(time.Minute)))
		mustInsert(t, s, at(base.AddDate(0, 0, 1))) // next day, excluded

		records, total, err := s.Query(context.Background(), port.Query{Day: "2025-03-10", Page: 1, PageSize: 10})
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if total != 3 {
			t.Errorf("expected total 3, got %d", total)
		}
		if len(records) != 3 {
			t.Fatalf("expected 3 records, got %d", len(records))
		}
		for i := 1; i < len(records); i++ {
			if records[i].Timestamp.Before(records[i-1].Timestamp.Time) {
				t.Error("day query must be timestamp ascending")
				break
			}
		}
	})

	t.Run("QueryFullSetDescending", func(t *testing.T) {
		s := open(t, factory)
		mustInsert(t, s, at(base))
		mustInsert(t, s, at(base.Add(time.Minute)))

		records, _, err := s.Query(context.Background(), port.Query{Page: 1, PageSize: 10})
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if len(records) != 2 {
			t.Fatalf("expected 2 records, got %d", len(records))
		}
		if records[0].Timestamp.Before(records[1].Timestamp.Time) {
			t.Error("unfiltered query must be newest first")
		}
	})

	t.Run("QuerySameTimestampKeepsInsertionOrder", func(t *testing.T) {
		s := open(t, factory)
		first := mustInsert(t, s, at(base))
		second := mustInsert(t, s, at(base))
		third := mustInsert(t, s, at(base))

		records, _, err := s.Query(context.Background(), port.Query{Day: "2025-03-10", Page: 1, PageSize: 10})
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if len(records) != 3 {
			t.Fatalf("expected 3 records, got %d", len(records))
		}
		if records[0].ID != first || records[1].ID != second || records[2].ID != third {
			t.Errorf("ties must keep insertion order, got %d, %d, %d",
				records[0].ID, records[1].ID, records[2].ID)
		}
	})

	t.Run("QueryPaginationCoversTotal", func(t *testing.T) {
		s := open(t, factory)
		for i := 0; i < 17; i++ {
			mustInsert(t, s, at(base.Add(time.Duration(i)*time.Minute)))
		}

		seen := 0
		for page := 1; page <= 4; page++ {
			records, total, err := s.Query(context.Background(), port.Query{Day: "2025-03-10", Page: page, PageSize: 5})
			if err != nil {
				t.Fatalf("Query page %d failed: %v", page, err)
			}
			if total != 17 {
				t.Errorf("page %d: expected total 17, got %d", page, total)
			}
			seen += len(records)
		}
		if seen != 17 {
			t.Errorf("pages must cover all records exactly once, got %d", seen)
		}
	})

	t.Run("QueryPastEndIsEmpty", func(t *testing.T) {
		s := open(t, factory)
		mustInsert(t, s, at(base))
		records, total, err := s.Query(context.Background(), port.Query{Page: 5, PageSize: 10})
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if len(records) != 0 || total != 1 {
			t.Errorf("expected empty page with total 1, got %d records total %d", len(records), total)
		}
	})

	t.Run("StreamAscendingComplete", func(t *testing.T) {
		s := open(t, factory)
		want := make(map[int64]bool)
		for i := 0; i < 12; i++ {
			// shuffle timestamps a little so stream order differs from ids
			offset := time.Duration((i*7)%12) * time.Minute
			want[mustInsert(t, s, at(base.Add(offset)))] = true
		}

		var prev time.Time
		err := s.Stream(context.Background(), "", func(p model.Position) error {
			if p.Timestamp.Before(prev) {
				t.Errorf("stream out of order at id %d", p.ID)
			}
			prev = p.Timestamp.Time
			delete(want, p.ID)
			return nil
		})
		if err != nil {
			t.Fatalf("Stream failed: %v", err)
		}
		if len(want) != 0 {
			t.Errorf("%d records missing from stream", len(want))
		}
	})

	t.Run("StreamDayScoped", func(t *testing.T) {
		s := open(t, factory)
		mustInsert(t, s, at(base))
		mustInsert(t, s, at(base.AddDate(0, 0, 1)))

		calls := 0
		err := s.Stream(context.Background(), "2025-03-10", func(p model.Position) error {
			calls++
			if p.Day != "2025-03-10" {
				t.Errorf("record from wrong day: %s", p.Day)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Stream failed: %v", err)
		}
		if calls != 1 {
			t.Errorf("expected 1 record, got %d", calls)
		}
	})

	t.Run("StreamStopsOnCallbackError", func(t *testing.T) {
		s := open(t, factory)
		for i := 0; i < 10; i++ {
			mustInsert(t, s, at(base.Add(time.Duration(i)*time.Minute)))
		}

		sentinel := errors.New("stop here")
		calls := 0
		err := s.Stream(context.Background(), "", func(p model.Position) error {
			calls++
			if calls == 3 {
				return sentinel
			}
			return nil
		})
		if !errors.Is(err, sentinel) {
			t.Errorf("expected sentinel error, got %v", err)
		}
		if calls != 3 {
			t.Errorf("expected callback to stop after 3 calls, got %d", calls)
		}
	})

	t.Run("AltitudeRoundTrip", func(t *testing.T) {
		s := open(t, factory)
		alt := 421.37
		withAlt := model.NewPosition(10.5, 20.1, &alt, base)
		noAlt := model.NewPosition(-10.5, -20.1, nil, base.Add(time.Minute))
		idWith := mustInsert(t, s, withAlt)
		idWithout := mustInsert(t, s, noAlt)

		records, _, err := s.Query(context.Background(), port.Query{Day: "2025-03-10", Page: 1, PageSize: 10})
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		byID := make(map[int64]model.Position, len(records))
		for _, p := range records {
			byID[p.ID] = p
		}
		if p := byID[idWith]; p.Altitude == nil || *p.Altitude != alt {
			t.Errorf("altitude lost in round trip: %+v", p)
		}
		if p := byID[idWithout]; p.Altitude != nil {
			t.Errorf("absent altitude must stay absent, got %v", *p.Altitude)
		}
	})

	t.Run("ConcurrentReadersWithWriter", func(t *testing.T) {
		s := open(t, factory)
		ctx := context.Background()

		var wg sync.WaitGroup
		errCh := make(chan error, 2)

		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if _, err := s.Insert(ctx, at(base.Add(time.Duration(i)*time.Second))); err != nil {
					errCh <- fmt.Errorf("insert %d: %w", i, err)
					return
				}
			}
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				if _, err := s.Count(ctx); err != nil {
					errCh <- fmt.Errorf("count: %w", err)
					return
				}
				if _, _, err := s.Query(ctx, port.Query{Page: 1, PageSize: 10}); err != nil {
					errCh <- fmt.Errorf("query: %w", err)
					return
				}
				if _, err := s.Latest(ctx); err != nil && !errors.Is(err, port.ErrNoData) {
					errCh <- fmt.Errorf("latest: %w", err)
					return
				}
			}
		}()

		wg.Wait()
		close(errCh)
		for err := range errCh {
			t.Fatalf("concurrent access failed: %v", err)
		}

		n, err := s.Count(ctx)
		if err != nil {
			t.Fatalf("Count failed: %v", err)
		}
		if n != 50 {
			t.Errorf("expected 50 records after concurrent run, got %d", n)
		}
	})
}
