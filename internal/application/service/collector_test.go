package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"satrack/internal/application/port"
	"satrack/internal/domain/model"
)

type fakeFeed struct {
	mu    sync.Mutex
	calls int
	err   error
	pos   model.Position
}

func (f *fakeFeed) Fetch(ctx context.Context) (model.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return model.Position{}, f.err
	}
	return f.pos, nil
}

func (f *fakeFeed) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeFeed) setError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type mockStore struct {
	mu      sync.Mutex
	nextID  int64
	records []model.Position
	evicts  int
}

func (m *mockStore) Insert(ctx context.Context, p model.Position) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	p.ID = m.nextID
	m.records = append(m.records, p)
	return p.ID, nil
}

func (m *mockStore) Count(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.records)), nil
}

func (m *mockStore) EvictBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evicts++
	limit := model.NewUTCTime(cutoff).Time
	kept := m.records[:0]
	for _, p := range m.records {
		if !p.Timestamp.Before(limit) {
			kept = append(kept, p)
		}
	}
	removed := int64(len(m.records) - len(kept))
	m.records = kept
	return removed, nil
}

func (m *mockStore) Days(ctx context.Context) ([]string, error) { return nil, nil }

func (m *mockStore) CountByDay(ctx context.Context) (map[string]int64, error) { return nil, nil }

func (m *mockStore) Latest(ctx context.Context) (model.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.records) == 0 {
		return model.Position{}, port.ErrNoData
	}
	return m.records[len(m.records)-1], nil
}

func (m *mockStore) Query(ctx context.Context, q port.Query) ([]model.Position, int64, error) {
	return nil, 0, nil
}

func (m *mockStore) Stream(ctx context.Context, day string, fn func(model.Position) error) error {
	return nil
}

func (m *mockStore) Close() error { return nil }

func (m *mockStore) inserted() []model.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Position, len(m.records))
	copy(out, m.records)
	return out
}

func (m *mockStore) evictCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.evicts
}

type mockSink struct {
	name string
	mu   sync.Mutex
	got  int
	err  error
}

func (m *mockSink) Name() string { return m.name }

func (m *mockSink) Publish(ctx context.Context, p model.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.got++
	return nil
}

func (m *mockSink) Close() error { return nil }

func (m *mockSink) published() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.got
}

func testPosition() model.Position {
	alt := 417.5
	return model.NewPosition(45.5, -73.6, &alt, time.Now())
}

func stopCollector(t *testing.T, c *Collector) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestCollectorStoresFetchedPositions(t *testing.T) {
	feed := &fakeFeed{pos: testPosition()}
	store := &mockStore{}

	c := NewCollector(feed, store, nil, nil, CollectorOptions{Interval: 10 * time.Millisecond})
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	time.Sleep(80 * time.Millisecond)
	stopCollector(t, c)

	records := store.inserted()
	if len(records) < 2 {
		t.Fatalf("expected at least 2 stored records, got %d", len(records))
	}
	for i := 1; i < len(records); i++ {
		if records[i].ID <= records[i-1].ID {
			t.Errorf("ids not strictly increasing: %d then %d", records[i-1].ID, records[i].ID)
		}
	}
}

func TestCollectorSurvivesFetchErrors(t *testing.T) {
	feed := &fakeFeed{pos: testPosition()}
	feed.setError(errors.New("upstream down"))
	store := &mockStore{}

	c := NewCollector(feed, store, nil, nil, CollectorOptions{Interval: 10 * time.Millisecond})
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if n, _ := store.Count(context.Background()); n != 0 {
		t.Errorf("expected no inserts while feed failing, got %d", n)
	}
	if feed.callCount() < 2 {
		t.Errorf("loop should keep fetching through errors, got %d calls", feed.callCount())
	}

	// recovery: once the feed works again the loop stores records
	feed.setError(nil)
	time.Sleep(50 * time.Millisecond)
	stopCollector(t, c)

	if n, _ := store.Count(context.Background()); n == 0 {
		t.Error("expected inserts after feed recovered")
	}
}

func TestCollectorRunsEvictionOnCadence(t *testing.T) {
	feed := &fakeFeed{pos: testPosition()}
	store := &mockStore{}

	// one-hour interval makes every cycle an eviction cycle; only the
	// immediate first cycle runs before Stop
	c := NewCollector(feed, store, nil, nil, CollectorOptions{Interval: time.Hour})
	if c.evictEvery != 1 {
		t.Fatalf("expected evictEvery 1 for hourly interval, got %d", c.evictEvery)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	stopCollector(t, c)

	if store.evictCalls() != 1 {
		t.Errorf("expected exactly one eviction pass, got %d", store.evictCalls())
	}
	if feed.callCount() != 1 {
		t.Errorf("expected exactly one fetch, got %d", feed.callCount())
	}
}

func TestCollectorEvictionCadenceDerivation(t *testing.T) {
	cases := []struct {
		interval time.Duration
		want     int
	}{
		{60 * time.Second, 60},
		{time.Second, 3600},
		{90 * time.Minute, 1},
		{7 * time.Second, 515}, // ceil(3600/7)
	}
	for _, tc := range cases {
		c := NewCollector(&fakeFeed{}, &mockStore{}, nil, nil, CollectorOptions{Interval: tc.interval})
		if c.evictEvery != tc.want {
			t.Errorf("interval %s: expected evictEvery %d, got %d", tc.interval, tc.want, c.evictEvery)
		}
	}
}

func TestCollectorFansOutToSinks(t *testing.T) {
	feed := &fakeFeed{pos: testPosition()}
	store := &mockStore{}
	bad := &mockSink{name: "bad", err: errors.New("broker gone")}
	good := &mockSink{name: "good"}

	c := NewCollector(feed, store, []port.Sink{bad, good}, nil, CollectorOptions{Interval: time.Hour})
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	stopCollector(t, c)

	// the failing sink must not block the healthy one
	if good.published() != 1 {
		t.Errorf("expected healthy sink to receive 1 position, got %d", good.published())
	}
	if n, _ := store.Count(context.Background()); n != 1 {
		t.Errorf("expected 1 stored record, got %d", n)
	}
}

func TestCollectorStopIsPrompt(t *testing.T) {
	feed := &fakeFeed{pos: testPosition()}
	c := NewCollector(feed, &mockStore{}, nil, nil, CollectorOptions{Interval: time.Hour})
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	start := time.Now()
	stopCollector(t, c)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Stop took %s, expected prompt shutdown", elapsed)
	}
}
