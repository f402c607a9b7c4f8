package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/xhad/askflare/internal/app"
	"github.com/xhad/askflare/pkg/config"
	"github.com/xhad/askflare/pkg/observability"
	"github.com/xhad/askflare/server"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	addr := flag.String("addr", "", "Listen address (overrides server.addr)")
	watch := flag.Bool("watch", false, "Re-ingest files that change in the data directory")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	} else if port := os.Getenv("PORT"); port != "" {
		cfg.Server.Addr = ":" + port
	}

	logger, err := observability.NewLogger(cfg.Log)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	if err := run(cfg, *watch, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, watch bool, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if watch {
		go func() {
			if err := a.Watch(ctx); err != nil {
				logger.Error("watcher stopped", zap.Error(err))
			}
		}()
	}

	srv := server.New(a, cfg.Server, logger,
		server.WithReadiness(a.Store),
		server.WithURLIngester(a),
	)
	return srv.ListenAndServe(ctx)
}
