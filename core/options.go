package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

// StaticConfigLoader serves a fixed raw configuration map.
type StaticConfigLoader struct {
	Values map[string]any
}

func (l StaticConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = StaticConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			ConfigLayer(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			ConfigLayer(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			ConfigLayer(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

// LoadConfig resolves defaults < provider < runtime into a validated Config.
func LoadConfig(ctx context.Context, provider ConfigProvider, resolver OptionsResolver, runtime Config) (Config, error) {
	defaults := DefaultConfig()
	if provider == nil {
		provider = NewCfgxConfigProvider(nil)
	}
	if resolver == nil {
		resolver = GoOptionsResolver{}
	}
	loaded, err := provider.Load(ctx, defaults)
	if err != nil {
		return Config{}, err
	}
	return resolver.Resolve(defaults, loaded, runtime)
}

// ConfigLayer converts cfg into an options layer. Zero values are dropped
// unless includeZero is set, so sparse layers do not mask lower ones.
func ConfigLayer(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	putString(layer, "service_name", cfg.ServiceName, includeZero)
	putString(layer, "vendor", cfg.Vendor, includeZero)

	publisher := map[string]any{}
	putInt(publisher, "max_webhooks", cfg.Publisher.MaxWebHookCount, includeZero)
	putInt(publisher, "out_stream_max_count", cfg.Publisher.OutStreamMaxCount, includeZero)
	putInt(publisher, "delivery_stream_max_count", cfg.Publisher.DeliveryStreamMaxCount, includeZero)
	putAny(publisher, "max_retry_delay", cfg.Publisher.MaxRetryDelay, includeZero || cfg.Publisher.MaxRetryDelay != 0)
	putAny(publisher, "max_delivery_attempt_duration", cfg.Publisher.MaxDeliveryAttemptDuration,
		includeZero || cfg.Publisher.MaxDeliveryAttemptDuration != 0)
	putString(publisher, "snapshot_stream", cfg.Publisher.SnapshotStream, includeZero)
	putInt(publisher, "page_size", cfg.Publisher.PageSize, includeZero)
	putAny(publisher, "skip_after_disable", cfg.Publisher.SkipAfterDisable, includeZero || cfg.Publisher.SkipAfterDisable)
	putAny(publisher, "retain_streams_on_delete", cfg.Publisher.RetainStreamsOnDelete,
		includeZero || cfg.Publisher.RetainStreamsOnDelete)
	putSection(layer, "publisher", publisher)

	subscriber := map[string]any{}
	putInt(subscriber, "max_subscriptions", cfg.Subscriber.MaxSubscriptionCount, includeZero)
	putString(subscriber, "snapshot_stream", cfg.Subscriber.SnapshotStream, includeZero)
	putInt(subscriber, "page_size", cfg.Subscriber.PageSize, includeZero)
	putSection(layer, "subscriber", subscriber)

	persistence := map[string]any{}
	putString(persistence, "driver", cfg.Persistence.Driver, includeZero)
	putString(persistence, "dsn", cfg.Persistence.DSN, includeZero)
	putAny(persistence, "debug", cfg.Persistence.Debug, includeZero || cfg.Persistence.Debug)
	putAny(persistence, "ping_timeout", cfg.Persistence.PingTimeout, includeZero || cfg.Persistence.PingTimeout != 0)
	putSection(layer, "persistence", persistence)

	server := map[string]any{}
	putString(server, "addr", cfg.Server.Addr, includeZero)
	putAny(server, "drain_interval", cfg.Server.DrainInterval, includeZero || cfg.Server.DrainInterval != 0)
	putSection(layer, "server", server)

	cache := map[string]any{}
	putAny(cache, "ttl", cfg.Cache.TTL, includeZero || cfg.Cache.TTL != 0)
	putSection(layer, "cache", cache)

	redis := map[string]any{}
	putString(redis, "addr", cfg.Redis.Addr, includeZero)
	putAny(redis, "lock_ttl", cfg.Redis.LockTTL, includeZero || cfg.Redis.LockTTL != 0)
	putSection(layer, "redis", redis)
	return layer
}

func putString(layer map[string]any, key string, value string, includeZero bool) {
	if includeZero || strings.TrimSpace(value) != "" {
		layer[key] = strings.TrimSpace(value)
	}
}

func putInt(layer map[string]any, key string, value int, includeZero bool) {
	if includeZero || value != 0 {
		layer[key] = value
	}
}

func putAny(layer map[string]any, key string, value any, include bool) {
	if include {
		layer[key] = value
	}
}

func putSection(layer map[string]any, key string, section map[string]any) {
	if len(section) > 0 {
		layer[key] = section
	}
}
