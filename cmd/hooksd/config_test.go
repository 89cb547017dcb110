package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goliatone/go-hooks/core"
)

func TestLoadConfigDefaultsWithoutFile(t *testing.T) {
	cfg, err := loadConfig(context.Background(), "", map[string]string{})
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	defaults := core.DefaultConfig()
	if cfg.Publisher.MaxWebHookCount != defaults.Publisher.MaxWebHookCount {
		t.Fatalf("expected default max webhooks, got %d", cfg.Publisher.MaxWebHookCount)
	}
	if cfg.Server.Addr != defaults.Server.Addr {
		t.Fatalf("expected default addr, got %q", cfg.Server.Addr)
	}
}

func TestLoadConfigLayersFileThenEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hooksd.yaml")
	content := []byte(`service_name: hooks-staging
publisher:
  max_webhooks: 25
  skip_after_disable: true
server:
  addr: ":9000"
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := loadConfig(context.Background(), path, map[string]string{
		"HOOKS_ADDR":           ":9100",
		"HOOKS_DRAIN_INTERVAL": "2s",
	})
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ServiceName != "hooks-staging" {
		t.Fatalf("expected service name from file, got %q", cfg.ServiceName)
	}
	if cfg.Publisher.MaxWebHookCount != 25 || !cfg.Publisher.SkipAfterDisable {
		t.Fatalf("expected publisher settings from file, got %+v", cfg.Publisher)
	}
	if cfg.Server.Addr != ":9100" {
		t.Fatalf("expected env to override addr, got %q", cfg.Server.Addr)
	}
	if cfg.Server.DrainInterval != 2*time.Second {
		t.Fatalf("expected env drain interval, got %s", cfg.Server.DrainInterval)
	}
	if cfg.Subscriber.MaxSubscriptionCount != core.DefaultConfig().Subscriber.MaxSubscriptionCount {
		t.Fatalf("expected untouched settings to keep defaults")
	}
}

func TestLoadConfigMissingFileFails(t *testing.T) {
	if _, err := loadConfig(context.Background(), filepath.Join(t.TempDir(), "absent.yaml"), nil); err == nil {
		t.Fatalf("expected error for a missing config file")
	}
}

func TestParseEnvOverridesRejectsBadDuration(t *testing.T) {
	if _, err := parseEnvOverrides(map[string]string{"HOOKS_DRAIN_INTERVAL": "soon"}); err == nil {
		t.Fatalf("expected duration parse error")
	}
}
