package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"

	"satrack/internal/infrastructure/feed"
)

type Config struct {
	Collector CollectorConfig `toml:"collector"`
	Server    ServerConfig    `toml:"server"`
	Storage   StorageConfig   `toml:"storage"`
	MQTT      MQTTConfig      `toml:"mqtt"`
}

type CollectorConfig struct {
	TelemetryURL     string `toml:"telemetry_url" env:"ISS_API_URL"`
	FetchIntervalSec int    `toml:"fetch_interval_sec" env:"FETCH_INTERVAL_SEC"`
	FetchTimeoutSec  int    `toml:"fetch_timeout_sec" env:"FETCH_TIMEOUT_SEC"`
	RetentionDays    int    `toml:"retention_days" env:"MAX_RETENTION_DAYS"`
	SeedSampleData   bool   `toml:"seed_sample_data" env:"SAMPLE_DATA"`
}

type ServerConfig struct {
	Port        int `toml:"port" env:"PORT"`
	MaxPageSize int `toml:"max_page_size" env:"MAX_PAGE_SIZE"`
}

type StorageConfig struct {
	Backend  string         `toml:"backend" env:"STORAGE_BACKEND"`
	SQLite   SQLiteConfig   `toml:"sqlite"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
}

type SQLiteConfig struct {
	Path string `toml:"path" env:"DB_PATH"`
}

type PostgresConfig struct {
	DSN string `toml:"dsn" env:"POSTGRES_DSN"`
}

type RedisConfig struct {
	Addr     string `toml:"addr" env:"REDIS_ADDR"`
	Password string `toml:"password" env:"REDIS_PASSWORD"`
	DB       int    `toml:"db" env:"REDIS_DB"`
	Prefix   string `toml:"prefix" env:"REDIS_PREFIX"`
}

type MQTTConfig struct {
	Enabled  bool   `toml:"enabled" env:"MQTT_ENABLED"`
	Broker   string `toml:"broker" env:"MQTT_BROKER"`
	ClientID string `toml:"client_id" env:"MQTT_CLIENT_ID"`
	Topic    string `toml:"topic" env:"MQTT_TOPIC"`
	QoS      int    `toml:"qos" env:"MQTT_QOS"`
	Username string `toml:"username" env:"MQTT_USERNAME"`
	Password string `toml:"password" env:"MQTT_PASSWORD"`
}

// Load reads the optional TOML file at path, then applies environment
// overrides on top. An empty path means environment-only configuration.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Collector.TelemetryURL) == "" {
		cfg.Collector.TelemetryURL = feed.DefaultURL
	}
	if cfg.Collector.FetchIntervalSec <= 0 {
		cfg.Collector.FetchIntervalSec = 60
	}
	if cfg.Collector.FetchTimeoutSec <= 0 {
		cfg.Collector.FetchTimeoutSec = 8
	}
	if cfg.Collector.RetentionDays <= 0 {
		cfg.Collector.RetentionDays = 3
	}
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 10000
	}
	if cfg.Server.MaxPageSize <= 0 {
		cfg.Server.MaxPageSize = 500
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "sqlite"
	}
	if cfg.Storage.SQLite.Path == "" {
		cfg.Storage.SQLite.Path = "data/satrack.db"
	}
	if cfg.Storage.Redis.Addr == "" {
		cfg.Storage.Redis.Addr = "localhost:6379"
	}
	if cfg.Storage.Redis.Prefix == "" {
		cfg.Storage.Redis.Prefix = "satrack"
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "satrack-collector"
	}
	if cfg.MQTT.Topic == "" {
		cfg.MQTT.Topic = "satrack/position"
	}
}

func validate(cfg *Config) error {
	switch cfg.Storage.Backend {
	case "sqlite", "postgres", "redis", "memory":
	default:
		return fmt.Errorf("storage.backend %q is not one of sqlite, postgres, redis, memory", cfg.Storage.Backend)
	}
	if cfg.Storage.Backend == "postgres" && strings.TrimSpace(cfg.Storage.Postgres.DSN) == "" {
		return fmt.Errorf("storage.postgres.dsn empty but backend is postgres")
	}
	if cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", cfg.Server.Port)
	}
	if cfg.MQTT.Enabled && strings.TrimSpace(cfg.MQTT.Broker) == "" {
		return fmt.Errorf("mqtt.broker empty but mqtt enabled")
	}
	if cfg.MQTT.QoS < 0 || cfg.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos %d out of range", cfg.MQTT.QoS)
	}
	return nil
}
