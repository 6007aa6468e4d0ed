package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"satrack/internal/application/port"
	"satrack/internal/domain/model"
	"satrack/internal/infrastructure/metrics"
)

// CollectorOptions tune the fetch loop.
type CollectorOptions struct {
	Interval      time.Duration // time between fetch cycles (default 60s)
	FetchTimeout  time.Duration // upstream request budget (default 8s)
	RetentionDays int           // trailing window to keep (default 3)
}

// Collector runs the background fetch -> normalize -> store loop and owns
// the retention policy. It is the only writer to the store. A failed cycle
// is logged and skipped; nothing short of Stop ends the loop.
type Collector struct {
	feed    port.Feed
	store   port.Store
	sinks   []port.Sink
	metrics *metrics.Metrics

	interval      time.Duration
	fetchTimeout  time.Duration
	retentionDays int

	// evictEvery spreads the retention pass so it runs about once an hour
	// regardless of the fetch interval
	evictEvery int
	cycles     int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewCollector(feed port.Feed, store port.Store, sinks []port.Sink, m *metrics.Metrics, opts CollectorOptions) *Collector {
	if opts.Interval <= 0 {
		opts.Interval = 60 * time.Second
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 8 * time.Second
	}
	if opts.RetentionDays <= 0 {
		opts.RetentionDays = 3
	}
	if m == nil {
		m = metrics.New(prometheus.NewRegistry())
	}

	evictEvery := int(math.Ceil(3600 / opts.Interval.Seconds()))
	if evictEvery < 1 {
		evictEvery = 1
	}

	return &Collector{
		feed:          feed,
		store:         store,
		sinks:         sinks,
		metrics:       m,
		interval:      opts.Interval,
		fetchTimeout:  opts.FetchTimeout,
		retentionDays: opts.RetentionDays,
		evictEvery:    evictEvery,
	}
}

// Start launches the collection loop. The first cycle runs immediately.
func (c *Collector) Start(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(1)
	go c.run()

	log.Info().
		Dur("interval", c.interval).
		Int("retention_days", c.retentionDays).
		Int("evict_every_cycles", c.evictEvery).
		Msg("collector started")

	return nil
}

// Stop signals the loop and waits for the current cycle to finish, bounded
// by ctx. An in-flight fetch completes or times out on its own budget.
func (c *Collector) Stop(ctx context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("collector stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Collector) run() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.cycle()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.cycle()
		}
	}
}

func (c *Collector) cycle() {
	c.collect()

	c.cycles++
	if c.cycles >= c.evictEvery {
		c.evict()
		c.cycles = 0
	}

	if n, err := c.store.Count(context.Background()); err == nil {
		c.metrics.SetStoreRecords(n)
	}
}

func (c *Collector) collect() {
	// detached from the loop context: shutdown lets an in-flight fetch
	// run out its own timeout instead of aborting it mid-request
	ctx, cancel := context.WithTimeout(context.Background(), c.fetchTimeout)
	defer cancel()

	start := time.Now()
	p, err := c.feed.Fetch(ctx)
	elapsed := time.Since(start).Seconds()
	if errors.Is(err, port.ErrRejected) {
		c.metrics.RecordFetch("rejected", elapsed)
		log.Debug().Err(err).Msg("payload rejected, skipping cycle")
		return
	}
	if err != nil {
		c.metrics.RecordFetch("fetch_error", elapsed)
		log.Warn().Err(err).Msg("fetch failed, skipping cycle")
		return
	}
	c.metrics.RecordFetch("ok", elapsed)

	id, err := c.store.Insert(ctx, p)
	if err != nil {
		log.Error().Err(err).Msg("store insert failed")
		return
	}
	c.metrics.RecordInsert()
	p.ID = id

	log.Debug().
		Int64("id", id).
		Float64("lat", p.Latitude).
		Float64("lon", p.Longitude).
		Str("timestamp", p.Timestamp.String()).
		Msg("position stored")

	c.publish(ctx, p)
}

func (c *Collector) publish(ctx context.Context, p model.Position) {
	for _, s := range c.sinks {
		if err := s.Publish(ctx, p); err != nil {
			c.metrics.RecordSinkError(s.Name())
			log.Warn().Str("sink", s.Name()).Err(err).Msg("sink publish failed")
		}
	}
}

func (c *Collector) evict() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().UTC().AddDate(0, 0, -c.retentionDays)
	n, err := c.store.EvictBefore(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Msg("retention eviction failed")
		return
	}
	if n > 0 {
		c.metrics.RecordEvicted(n)
		log.Info().
			Int64("evicted", n).
			Str("cutoff", cutoff.Format("2006-01-02 15:04:05")).
			Msg("old records evicted")
	}
}
