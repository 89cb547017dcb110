package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultVendor                     = "Vendor"
	DefaultMaxWebHookCount            = 10
	DefaultMaxSubscriptionCount       = 10
	DefaultOutStreamMaxCount          = 10000
	DefaultDeliveryStreamMaxCount     = 1000
	DefaultMaxRetryDelay              = time.Hour
	DefaultMaxDeliveryAttemptDuration = 7 * 24 * time.Hour
	DefaultPageSize                   = 50
	DefaultPublisherSnapshotStream    = "webhooks"
	DefaultSubscriberSnapshotStream   = "subscriptions"
)

type PublisherConfig struct {
	MaxWebHookCount            int           `koanf:"max_webhooks" mapstructure:"max_webhooks" yaml:"max_webhooks"`
	OutStreamMaxCount          int           `koanf:"out_stream_max_count" mapstructure:"out_stream_max_count" yaml:"out_stream_max_count"`
	DeliveryStreamMaxCount     int           `koanf:"delivery_stream_max_count" mapstructure:"delivery_stream_max_count" yaml:"delivery_stream_max_count"`
	MaxRetryDelay              time.Duration `koanf:"max_retry_delay" mapstructure:"max_retry_delay" yaml:"max_retry_delay"`
	MaxDeliveryAttemptDuration time.Duration `koanf:"max_delivery_attempt_duration" mapstructure:"max_delivery_attempt_duration" yaml:"max_delivery_attempt_duration"`
	SnapshotStream             string        `koanf:"snapshot_stream" mapstructure:"snapshot_stream" yaml:"snapshot_stream"`
	PageSize                   int           `koanf:"page_size" mapstructure:"page_size" yaml:"page_size"`
	// SkipAfterDisable stops the attempt that follows an expiry-triggered
	// disable in the same pass.
	SkipAfterDisable      bool `koanf:"skip_after_disable" mapstructure:"skip_after_disable" yaml:"skip_after_disable"`
	RetainStreamsOnDelete bool `koanf:"retain_streams_on_delete" mapstructure:"retain_streams_on_delete" yaml:"retain_streams_on_delete"`
}

type SubscriberConfig struct {
	MaxSubscriptionCount int    `koanf:"max_subscriptions" mapstructure:"max_subscriptions" yaml:"max_subscriptions"`
	SnapshotStream       string `koanf:"snapshot_stream" mapstructure:"snapshot_stream" yaml:"snapshot_stream"`
	PageSize             int    `koanf:"page_size" mapstructure:"page_size" yaml:"page_size"`
}

type PersistenceConfig struct {
	Driver      string        `koanf:"driver" mapstructure:"driver" yaml:"driver"`
	DSN         string        `koanf:"dsn" mapstructure:"dsn" yaml:"dsn"`
	Debug       bool          `koanf:"debug" mapstructure:"debug" yaml:"debug"`
	PingTimeout time.Duration `koanf:"ping_timeout" mapstructure:"ping_timeout" yaml:"ping_timeout"`
}

type ServerConfig struct {
	Addr          string        `koanf:"addr" mapstructure:"addr" yaml:"addr"`
	DrainInterval time.Duration `koanf:"drain_interval" mapstructure:"drain_interval" yaml:"drain_interval"`
}

type CacheConfig struct {
	TTL time.Duration `koanf:"ttl" mapstructure:"ttl" yaml:"ttl"`
}

type RedisConfig struct {
	Addr    string        `koanf:"addr" mapstructure:"addr" yaml:"addr"`
	LockTTL time.Duration `koanf:"lock_ttl" mapstructure:"lock_ttl" yaml:"lock_ttl"`
}

type Config struct {
	ServiceName string            `koanf:"service_name" mapstructure:"service_name" yaml:"service_name"`
	Vendor      string            `koanf:"vendor" mapstructure:"vendor" yaml:"vendor"`
	Publisher   PublisherConfig   `koanf:"publisher" mapstructure:"publisher" yaml:"publisher"`
	Subscriber  SubscriberConfig  `koanf:"subscriber" mapstructure:"subscriber" yaml:"subscriber"`
	Persistence PersistenceConfig `koanf:"persistence" mapstructure:"persistence" yaml:"persistence"`
	Server      ServerConfig      `koanf:"server" mapstructure:"server" yaml:"server"`
	Cache       CacheConfig       `koanf:"cache" mapstructure:"cache" yaml:"cache"`
	Redis       RedisConfig       `koanf:"redis" mapstructure:"redis" yaml:"redis"`
}

func DefaultPublisherConfig() PublisherConfig {
	return PublisherConfig{
		MaxWebHookCount:            DefaultMaxWebHookCount,
		OutStreamMaxCount:          DefaultOutStreamMaxCount,
		DeliveryStreamMaxCount:     DefaultDeliveryStreamMaxCount,
		MaxRetryDelay:              DefaultMaxRetryDelay,
		MaxDeliveryAttemptDuration: DefaultMaxDeliveryAttemptDuration,
		SnapshotStream:             DefaultPublisherSnapshotStream,
		PageSize:                   DefaultPageSize,
	}
}

func DefaultSubscriberConfig() SubscriberConfig {
	return SubscriberConfig{
		MaxSubscriptionCount: DefaultMaxSubscriptionCount,
		SnapshotStream:       DefaultSubscriberSnapshotStream,
		PageSize:             DefaultPageSize,
	}
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "hooks",
		Vendor:      DefaultVendor,
		Publisher:   DefaultPublisherConfig(),
		Subscriber:  DefaultSubscriberConfig(),
		Persistence: PersistenceConfig{
			Driver:      "sqlite3",
			DSN:         "file:hooks.db?cache=shared&_foreign_keys=on",
			PingTimeout: 5 * time.Second,
		},
		Server: ServerConfig{
			Addr:          ":8080",
			DrainInterval: 5 * time.Second,
		},
		Cache: CacheConfig{TTL: time.Minute},
		Redis: RedisConfig{LockTTL: time.Minute},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if strings.TrimSpace(c.Vendor) == "" {
		return fmt.Errorf("core: vendor is required")
	}
	if err := c.Publisher.Validate(); err != nil {
		return err
	}
	return c.Subscriber.Validate()
}

func (c PublisherConfig) Validate() error {
	if c.MaxWebHookCount <= 0 {
		return fmt.Errorf("core: publisher.max_webhooks must be positive")
	}
	if c.OutStreamMaxCount < 0 || c.DeliveryStreamMaxCount < 0 {
		return fmt.Errorf("core: publisher stream max counts must not be negative")
	}
	if c.MaxRetryDelay <= 0 {
		return fmt.Errorf("core: publisher.max_retry_delay must be positive")
	}
	if c.MaxDeliveryAttemptDuration <= 0 {
		return fmt.Errorf("core: publisher.max_delivery_attempt_duration must be positive")
	}
	if strings.TrimSpace(c.SnapshotStream) == "" {
		return fmt.Errorf("core: publisher.snapshot_stream is required")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("core: publisher.page_size must be positive")
	}
	return nil
}

func (c SubscriberConfig) Validate() error {
	if c.MaxSubscriptionCount <= 0 {
		return fmt.Errorf("core: subscriber.max_subscriptions must be positive")
	}
	if strings.TrimSpace(c.SnapshotStream) == "" {
		return fmt.Errorf("core: subscriber.snapshot_stream is required")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("core: subscriber.page_size must be positive")
	}
	return nil
}

// WithDefaults fills zero values from DefaultPublisherConfig.
func (c PublisherConfig) WithDefaults() PublisherConfig {
	defaults := DefaultPublisherConfig()
	if c.MaxWebHookCount <= 0 {
		c.MaxWebHookCount = defaults.MaxWebHookCount
	}
	if c.OutStreamMaxCount <= 0 {
		c.OutStreamMaxCount = defaults.OutStreamMaxCount
	}
	if c.DeliveryStreamMaxCount <= 0 {
		c.DeliveryStreamMaxCount = defaults.DeliveryStreamMaxCount
	}
	if c.MaxRetryDelay <= 0 {
		c.MaxRetryDelay = defaults.MaxRetryDelay
	}
	if c.MaxDeliveryAttemptDuration <= 0 {
		c.MaxDeliveryAttemptDuration = defaults.MaxDeliveryAttemptDuration
	}
	if strings.TrimSpace(c.SnapshotStream) == "" {
		c.SnapshotStream = defaults.SnapshotStream
	}
	if c.PageSize <= 0 {
		c.PageSize = defaults.PageSize
	}
	return c
}

// WithDefaults fills zero values from DefaultSubscriberConfig.
func (c SubscriberConfig) WithDefaults() SubscriberConfig {
	defaults := DefaultSubscriberConfig()
	if c.MaxSubscriptionCount <= 0 {
		c.MaxSubscriptionCount = defaults.MaxSubscriptionCount
	}
	if strings.TrimSpace(c.SnapshotStream) == "" {
		c.SnapshotStream = defaults.SnapshotStream
	}
	if c.PageSize <= 0 {
		c.PageSize = defaults.PageSize
	}
	return c
}
