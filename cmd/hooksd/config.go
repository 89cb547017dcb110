package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/goliatone/go-hooks/core"
	"gopkg.in/yaml.v3"
)

// fileConfigLoader reads the YAML config file into a raw map for cfgx. A
// missing path yields an empty layer.
type fileConfigLoader struct {
	path string
}

func (l fileConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	path := strings.TrimSpace(l.path)
	if path == "" {
		return map[string]any{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("hooksd: read config %s: %w", path, err)
	}
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("hooksd: parse config %s: %w", path, err)
	}
	return raw, nil
}

// envOverrides is the runtime layer. Unset variables stay zero and do not
// mask the config file.
type envOverrides struct {
	ServiceName   string        `env:"HOOKS_SERVICE_NAME"`
	Vendor        string        `env:"HOOKS_VENDOR"`
	MaxWebHooks   int           `env:"HOOKS_MAX_WEBHOOKS"`
	MaxSubs       int           `env:"HOOKS_MAX_SUBSCRIPTIONS"`
	MaxRetryDelay time.Duration `env:"HOOKS_MAX_RETRY_DELAY"`
	DBDriver      string        `env:"HOOKS_DB_DRIVER"`
	DBDSN         string        `env:"HOOKS_DB_DSN"`
	DBDebug       bool          `env:"HOOKS_DB_DEBUG"`
	Addr          string        `env:"HOOKS_ADDR"`
	DrainInterval time.Duration `env:"HOOKS_DRAIN_INTERVAL"`
	CacheTTL      time.Duration `env:"HOOKS_CACHE_TTL"`
	RedisAddr     string        `env:"HOOKS_REDIS_ADDR"`
	RedisLockTTL  time.Duration `env:"HOOKS_REDIS_LOCK_TTL"`
}

func (e envOverrides) runtimeConfig() core.Config {
	var cfg core.Config
	cfg.ServiceName = e.ServiceName
	cfg.Vendor = e.Vendor
	cfg.Publisher.MaxWebHookCount = e.MaxWebHooks
	cfg.Publisher.MaxRetryDelay = e.MaxRetryDelay
	cfg.Subscriber.MaxSubscriptionCount = e.MaxSubs
	cfg.Persistence.Driver = e.DBDriver
	cfg.Persistence.DSN = e.DBDSN
	cfg.Persistence.Debug = e.DBDebug
	cfg.Server.Addr = e.Addr
	cfg.Server.DrainInterval = e.DrainInterval
	cfg.Cache.TTL = e.CacheTTL
	cfg.Redis.Addr = e.RedisAddr
	cfg.Redis.LockTTL = e.RedisLockTTL
	return cfg
}

func parseEnvOverrides(environ map[string]string) (envOverrides, error) {
	var out envOverrides
	if err := env.ParseWithOptions(&out, env.Options{Environment: environ}); err != nil {
		return envOverrides{}, fmt.Errorf("hooksd: parse environment: %w", err)
	}
	return out, nil
}

func loadConfig(ctx context.Context, path string, environ map[string]string) (core.Config, error) {
	overrides, err := parseEnvOverrides(environ)
	if err != nil {
		return core.Config{}, err
	}
	return core.LoadConfig(
		ctx,
		core.NewCfgxConfigProvider(fileConfigLoader{path: path}),
		core.GoOptionsResolver{},
		overrides.runtimeConfig(),
	)
}
