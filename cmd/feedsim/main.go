package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/feedsim/feedsim/params"
	"github.com/feedsim/feedsim/pkg/api"
	"github.com/feedsim/feedsim/pkg/archive"
	"github.com/feedsim/feedsim/pkg/feed"
	"github.com/feedsim/feedsim/pkg/ledger"
	"github.com/feedsim/feedsim/pkg/market"
	"github.com/feedsim/feedsim/pkg/orders"
	"github.com/feedsim/feedsim/pkg/publish"
	"github.com/feedsim/feedsim/pkg/util"
)

func main() {
	cfg := params.LoadFromEnv("") // "" means load from .env in current directory

	logFile := os.Getenv("LOG_FILE")
	if logFile == "" {
		logFile = "data/feedsim.log"
	}
	logger, err := util.NewLoggerWithFile(logFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", logFile)

	// ---- Catalog + ledger ----
	catalog := market.NewCatalog(cfg.Data.SymbolsFile, sugar)
	if err := catalog.Load(); err != nil {
		sugar.Fatalw("catalog_load_failed", "err", err)
	}

	led := ledger.New(cfg.Data.OrdersDir, sugar)
	if err := led.EnsureReady(); err != nil {
		sugar.Fatalw("ledger_init_failed", "err", err)
	}

	// ---- Feed engine ----
	clock := util.RealClock{}
	engine := feed.NewEngine(catalog, feed.NewGenerator(), clock, sugar, feed.Config{
		IntervalMin: cfg.Feed.TickIntervalMin,
		IntervalMax: cfg.Feed.TickIntervalMax,
		Variance:    cfg.Feed.TickVariance,
	})

	// ---- Orders ----
	validator := orders.NewValidator(catalog, cfg.Feed.PriceVariance)
	orderSvc := orders.NewService(validator, catalog, led, clock, sugar)

	// ---- Optional tick sinks ----
	var arch *archive.Store
	if cfg.Data.ArchiveDir != "" {
		arch, err = archive.Open(cfg.Data.ArchiveDir, sugar)
		if err != nil {
			// The feed works without the archive; keep going.
			sugar.Warnw("archive_open_failed", "path", cfg.Data.ArchiveDir, "err", err)
			arch = nil
		}
	}

	var pub *publish.Kafka
	if len(cfg.Kafka.Brokers) > 0 {
		pub = publish.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic, sugar)
	}

	// ---- Fan-out wiring ----
	hub := api.NewHub(engine, sugar)
	engine.SetBroadcast(func(symbol string, tick market.Tick) {
		hub.BroadcastTick(symbol, tick)
		if arch != nil {
			if err := arch.Put(tick); err != nil {
				sugar.Warnw("tick_archive_failed", "symbol", symbol, "err", err)
			}
		}
		if pub != nil {
			pub.Publish(tick)
		}
	})

	srv := api.NewServer(catalog, engine, orderSvc, arch, hub, cfg.Server.CORSOrigin, sugar)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(cfg.Server.ListenAddr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		sugar.Infow("shutdown_signal", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			sugar.Fatalw("server_failed", "err", err)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		sugar.Warnw("server_shutdown_error", "err", err)
	}
	engine.Shutdown()
	if arch != nil {
		if err := arch.Close(); err != nil {
			sugar.Warnw("archive_close_error", "err", err)
		}
	}
	if pub != nil {
		if err := pub.Close(); err != nil {
			sugar.Warnw("kafka_close_error", "err", err)
		}
	}
	sugar.Infow("shutdown_complete")
}
