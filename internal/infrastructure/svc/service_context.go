package svc

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"satrack/internal/application/port"
	"satrack/internal/application/service"
	"satrack/internal/infrastructure/config"
	"satrack/internal/infrastructure/feed"
	"satrack/internal/infrastructure/metrics"
	"satrack/internal/infrastructure/storage"
	"satrack/internal/interfaces/mqttsink"
	"satrack/internal/interfaces/rest"
)

// ServiceContext owns every long-lived dependency: store, feed, sinks,
// metrics and the services built on top of them. New initializes everything
// in dependency order; Close tears it down in reverse.
type ServiceContext struct {
	Ctx    context.Context
	Config *config.Config

	Store    port.Store
	Feed     port.Feed
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	Hub   *rest.Hub
	Sinks []port.Sink

	Collector *service.Collector
	Query     *service.QueryService
	Export    *service.ExportService
	Seeder    *service.SeedService

	closerChain []func() error
}

// New builds the full dependency graph from cfg. On any failure the already
// initialized resources are closed before returning.
func New(ctx context.Context, cfg *config.Config) (*ServiceContext, error) {
	sc := &ServiceContext{
		Ctx:         ctx,
		Config:      cfg,
		Registry:    prometheus.NewRegistry(),
		closerChain: make([]func() error, 0),
	}
	sc.Metrics = metrics.New(sc.Registry)

	if err := sc.initializeComponents(); err != nil {
		_ = sc.Close()
		return nil, err
	}
	return sc, nil
}

func (sc *ServiceContext) initializeComponents() error {
	if err := sc.initStorage(); err != nil {
		return fmt.Errorf("storage initialization failed: %w", err)
	}
	sc.initFeed()
	sc.initSinks()
	sc.initServices()

	log.Info().Msg("✓ All components initialized")
	return nil
}

func (sc *ServiceContext) initStorage() error {
	store, err := storage.Open(sc.Ctx, sc.Config.Storage)
	if err != nil {
		return err
	}

	sc.Store = store
	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing store")
		return store.Close()
	})
	return nil
}

func (sc *ServiceContext) initFeed() {
	c := sc.Config.Collector
	sc.Feed = feed.NewClient(c.TelemetryURL, time.Duration(c.FetchTimeoutSec)*time.Second)
	log.Info().Str("url", c.TelemetryURL).Msg("✓ Telemetry feed initialized")
}

func (sc *ServiceContext) initSinks() {
	sc.Hub = rest.NewHub()
	sc.Sinks = []port.Sink{sc.Hub}
	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing websocket hub")
		return sc.Hub.Close()
	})

	if !sc.Config.MQTT.Enabled {
		return
	}

	m := sc.Config.MQTT
	sink, err := mqttsink.New(mqttsink.Options{
		Broker: m.Broker,
		// random suffix avoids client id collisions between instances
		ClientID: m.ClientID + "-" + uuid.New().String(),
		Topic:    m.Topic,
		QoS:      m.QoS,
		Username: m.Username,
		Password: m.Password,
	})
	if err != nil {
		// the tracker keeps collecting without the broker
		log.Warn().Err(err).Msg("mqtt sink unavailable, continuing without it")
		return
	}

	sc.Sinks = append(sc.Sinks, sink)
	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing mqtt sink")
		return sink.Close()
	})
	log.Info().Str("broker", m.Broker).Msg("✓ MQTT sink initialized")
}

func (sc *ServiceContext) initServices() {
	c := sc.Config.Collector
	interval := time.Duration(c.FetchIntervalSec) * time.Second

	sc.Collector = service.NewCollector(sc.Feed, sc.Store, sc.Sinks, sc.Metrics, service.CollectorOptions{
		Interval:      interval,
		FetchTimeout:  time.Duration(c.FetchTimeoutSec) * time.Second,
		RetentionDays: c.RetentionDays,
	})
	sc.Query = service.NewQueryService(sc.Store, sc.Config.Server.MaxPageSize, interval, c.RetentionDays)
	sc.Export = service.NewExportService(sc.Store, c.RetentionDays)
	sc.Seeder = service.NewSeedService(sc.Store)
}

// Close releases all resources in reverse initialization order.
func (sc *ServiceContext) Close() error {
	for i := len(sc.closerChain) - 1; i >= 0; i-- {
		if err := sc.closerChain[i](); err != nil {
			log.Error().Err(err).Msg("error closing resource")
		}
	}
	sc.closerChain = sc.closerChain[:0]
	return nil
}
