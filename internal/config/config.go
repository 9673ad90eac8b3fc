// Package config is the engine's layered configuration: defaults →
// YAML file → environment, via spf13/viper — the library the teacher's
// own internal/config package layers over. Load binds no CLI flags.
package config

import (
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// RealtimeTransport selects the realtime backend (spec.md §4.8).
type RealtimeTransport string

const (
	TransportNATS  RealtimeTransport = "nats"
	TransportKafka RealtimeTransport = "kafka"
)

// Config is the resolved, typed configuration for one orchestrator
// instance.
type Config struct {
	LocalStorePath string        `mapstructure:"local_store_path"`
	RemoteBaseURL  string        `mapstructure:"remote_base_url"`
	TickInterval   time.Duration `mapstructure:"tick_interval"`
	PushBatchSize  int           `mapstructure:"push_batch_size"`

	PushRatePerSecond float64 `mapstructure:"push_rate_per_second"`
	PushRateBurst     int     `mapstructure:"push_rate_burst"`

	Realtime struct {
		Transport    RealtimeTransport `mapstructure:"transport"`
		NATSURL      string            `mapstructure:"nats_url"`
		KafkaBrokers []string          `mapstructure:"kafka_brokers"`
		KafkaGroup   string            `mapstructure:"kafka_group"`
	} `mapstructure:"realtime"`

	LogLevel string `mapstructure:"log_level"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("local_store_path", "tunetrees-sync.db")
	v.SetDefault("remote_base_url", "http://localhost:8080")
	v.SetDefault("tick_interval", 30*time.Second)
	v.SetDefault("push_batch_size", 200)
	v.SetDefault("push_rate_per_second", 5.0)
	v.SetDefault("push_rate_burst", 10)
	v.SetDefault("realtime.transport", string(TransportNATS))
	v.SetDefault("realtime.nats_url", "nats://localhost:4222")
	v.SetDefault("realtime.kafka_group", "tunetrees-sync")
	v.SetDefault("log_level", "info")
}

// Load builds the viper instance reading configPath (if non-empty) and
// the TUNETREES_SYNC_ env prefix, unmarshals into Config, and returns
// both so callers (cmd/tunetrees-syncd) can register a hot-reload
// watch on the returned *viper.Viper.
func Load(configPath string) (*Config, *viper.Viper, error) {
	v := viper.New()
	defaults(v)

	v.SetEnvPrefix("TUNETREES_SYNC")
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, nil, fmt.Errorf("config: read %s: %w", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, v, nil
}

// WatchReload installs an fsnotify-backed hot reload (the teacher's own
// config-file watch loop) that calls onChange with the freshly
// unmarshaled Config whenever the underlying file changes. Only
// realtime.transport and log_level are expected to be safe to change
// without a restart; callers should ignore changes to any other field.
func WatchReload(v *viper.Viper, onChange func(Config)) {
	v.OnConfigChange(func(_ fsnotify.Event) {
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
}
