// Command hooksd runs the webhook publisher and subscriber over HTTP, with a
// background drain that delivers queued events on an interval.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/caarlos0/env/v11"
	"github.com/goliatone/go-hooks/adapters/gologger"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "hooksd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(ctx, configPath, env.ToMap(os.Environ()))
	if err != nil {
		return err
	}

	base, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = base.Sync() }()
	provider := gologger.NewZapProvider(base.Named(cfg.ServiceName))

	application, err := newApp(ctx, cfg, provider)
	if err != nil {
		return err
	}
	defer application.close()
	return application.run(ctx)
}
