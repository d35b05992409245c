// Package config loads and validates arewethereyet configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/arewethereyet/internal/transfer"
)

// Store kinds accepted by sinks.store.kind.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// Destination kinds accepted by transfer.destination.kind.
const (
	DestinationLocal  = "local"
	DestinationGCS    = "gcs"
	DestinationMemory = "memory"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Hub       HubConfig       `mapstructure:"hub"`
	Sinks     SinksConfig     `mapstructure:"sinks"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Transfer  TransferConfig  `mapstructure:"transfer"`
	Render    RenderConfig    `mapstructure:"render"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features and the minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// HubConfig tunes event batching between trackers and sinks.
type HubConfig struct {
	BufferSize     int           `mapstructure:"buffer_size"`
	MaxBatchEvents int           `mapstructure:"max_batch_events"`
	MaxBatchWait   time.Duration `mapstructure:"max_batch_wait"`
	SinkTimeout    time.Duration `mapstructure:"sink_timeout"`
}

// SinksConfig selects which progress sinks are attached to the hub.
type SinksConfig struct {
	Log        bool            `mapstructure:"log"`
	Prometheus bool            `mapstructure:"prometheus"`
	Store      StoreConfig     `mapstructure:"store"`
	Milestones MilestoneConfig `mapstructure:"milestones"`
}

// StoreConfig selects the run repository.
type StoreConfig struct {
	Kind   string       `mapstructure:"kind"`
	DB     DBConfig     `mapstructure:"db"`
	SQLite SQLiteConfig `mapstructure:"sqlite"`
}

// DBConfig controls access to Postgres.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	Migrate         bool          `mapstructure:"migrate"`
}

// SQLiteConfig locates the SQLite database file.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// MilestoneConfig enables threshold notifications.
type MilestoneConfig struct {
	Enabled    bool      `mapstructure:"enabled"`
	Thresholds []float64 `mapstructure:"thresholds"`
}

// PubSubConfig holds metadata for publish-subscribe notifications. An empty
// ProjectID keeps milestones in memory.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// TransferConfig describes the objects to copy and where they go.
type TransferConfig struct {
	Name         string            `mapstructure:"name"`
	Concurrency  int               `mapstructure:"concurrency"`
	WeightBySize bool              `mapstructure:"weight_by_size"`
	RatePerHost  float64           `mapstructure:"rate_per_host"`
	Burst        int               `mapstructure:"burst"`
	Destination  DestinationConfig `mapstructure:"destination"`
	Items        []transfer.Item   `mapstructure:"items"`
}

// DestinationConfig selects and configures the transfer destination.
type DestinationConfig struct {
	Kind    string `mapstructure:"kind"`
	BaseDir string `mapstructure:"base_dir"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
}

// RenderConfig controls the terminal progress display.
type RenderConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Color    bool          `mapstructure:"color"`
	Tree     bool          `mapstructure:"tree"`
	Width    int           `mapstructure:"width"`
}

// TelemetryConfig controls OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	ProjectID   string  `mapstructure:"project_id"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AWTY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("hub.buffer_size", 1024)
	v.SetDefault("hub.max_batch_events", 256)
	v.SetDefault("hub.max_batch_wait", "250ms")
	v.SetDefault("hub.sink_timeout", "5s")
	v.SetDefault("sinks.log", true)
	v.SetDefault("sinks.prometheus", true)
	v.SetDefault("sinks.store.kind", StoreMemory)
	v.SetDefault("sinks.store.sqlite.path", "arewethereyet.db")
	v.SetDefault("sinks.milestones.enabled", false)
	v.SetDefault("pubsub.topic_name", "awty-milestones")
	v.SetDefault("transfer.name", "transfer")
	v.SetDefault("transfer.concurrency", 4)
	v.SetDefault("transfer.rate_per_host", 0)
	v.SetDefault("transfer.burst", 1)
	v.SetDefault("transfer.destination.kind", DestinationLocal)
	v.SetDefault("transfer.destination.base_dir", "out")
	v.SetDefault("render.interval", "200ms")
	v.SetDefault("render.color", true)
	v.SetDefault("render.tree", false)
	v.SetDefault("render.width", 40)
	v.SetDefault("telemetry.service_name", "arewethereyet")
	v.SetDefault("telemetry.sample_ratio", 1.0)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return errors.New("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return errors.New("auth.api_key must be set when auth is enabled")
	}
	if c.Hub.BufferSize < 0 || c.Hub.MaxBatchEvents < 0 {
		return errors.New("hub sizes must be >= 0")
	}
	switch c.Sinks.Store.Kind {
	case StoreMemory:
	case StorePostgres:
		if c.Sinks.Store.DB.DSN == "" {
			return errors.New("sinks.store.db.dsn is required for the postgres store")
		}
	case StoreSQLite:
		if c.Sinks.Store.SQLite.Path == "" {
			return errors.New("sinks.store.sqlite.path is required for the sqlite store")
		}
	default:
		return fmt.Errorf("sinks.store.kind %q must be one of memory, postgres, sqlite", c.Sinks.Store.Kind)
	}
	for _, th := range c.Sinks.Milestones.Thresholds {
		if th <= 0 || th > 1 {
			return fmt.Errorf("sinks.milestones.thresholds value %v must be in (0, 1]", th)
		}
	}
	if c.Transfer.Concurrency <= 0 {
		return errors.New("transfer.concurrency must be > 0")
	}
	if c.Transfer.RatePerHost < 0 || c.Transfer.Burst < 0 {
		return errors.New("transfer.rate_per_host and transfer.burst must be >= 0")
	}
	switch c.Transfer.Destination.Kind {
	case DestinationMemory:
	case DestinationLocal:
		if c.Transfer.Destination.BaseDir == "" {
			return errors.New("transfer.destination.base_dir is required for the local destination")
		}
	case DestinationGCS:
		if c.Transfer.Destination.Bucket == "" {
			return errors.New("transfer.destination.bucket is required for the gcs destination")
		}
	default:
		return fmt.Errorf("transfer.destination.kind %q must be one of local, gcs, memory", c.Transfer.Destination.Kind)
	}
	for i, it := range c.Transfer.Items {
		if it.Source == "" {
			return fmt.Errorf("transfer.items[%d].source is required", i)
		}
		if it.Weight < 0 {
			return fmt.Errorf("transfer.items[%d].weight must be >= 0", i)
		}
	}
	if c.Render.Interval <= 0 {
		return errors.New("render.interval must be > 0")
	}
	return nil
}
