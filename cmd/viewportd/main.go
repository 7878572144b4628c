package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/mohammed-shakir/listings-viewport-cache/internal/cache/redisstore"
	"github.com/mohammed-shakir/listings-viewport-cache/internal/cache/snapshot"
	"github.com/mohammed-shakir/listings-viewport-cache/internal/core/config"
	"github.com/mohammed-shakir/listings-viewport-cache/internal/core/server"
	"github.com/mohammed-shakir/listings-viewport-cache/internal/logger"
	h3mapper "github.com/mohammed-shakir/listings-viewport-cache/internal/mapper/h3"
	"github.com/mohammed-shakir/listings-viewport-cache/internal/metrics"
	"github.com/mohammed-shakir/listings-viewport-cache/internal/provider"
	_ "github.com/mohammed-shakir/listings-viewport-cache/internal/provider/fixture"
	_ "github.com/mohammed-shakir/listings-viewport-cache/internal/provider/httpprovider"
	"github.com/mohammed-shakir/listings-viewport-cache/internal/viewport"
	"github.com/mohammed-shakir/listings-viewport-cache/internal/viewportevents"
	"github.com/mohammed-shakir/listings-viewport-cache/pkg/invalidation/kafka"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	start := time.Now()
	envFile := flag.String("env", "", "optional .env file to load before reading the environment")
	flag.Parse()

	if *envFile != "" {
		_ = godotenv.Load(*envFile)
	} else {
		_ = godotenv.Load()
	}

	cfg := config.FromEnv()
	if cfg.Version == "dev" {
		cfg.Version = Version
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Service:   "viewportd",
		Component: "viewport",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	appLog.Info("starting viewportd",
		"addr", cfg.Addr,
		"version", cfg.Version,
		"provider", cfg.Provider.Driver,
		"ttl", cfg.CacheTTL,
		"margin_deg", cfg.MarginDeg)

	mp := metrics.Init(metrics.Config{
		Enabled: cfg.Metrics.Enabled,
		Addr:    cfg.Metrics.Addr,
		Path:    cfg.Metrics.Path,
		Build: metrics.BuildInfo{
			Version:   cfg.Version,
			Revision:  os.Getenv("BUILD_REVISION"),
			BuildDate: os.Getenv("BUILD_DATE"),
		},
	})

	prov, err := provider.New(cfg.Provider, appLog)
	if err != nil {
		appLog.Error("provider setup failed", "err", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mapper := h3mapper.New()
	opts := viewport.Options{
		Provider:        prov,
		Logger:          appLog,
		TTL:             cfg.CacheTTL,
		MarginDeg:       cfg.MarginDeg,
		Limit:           cfg.Provider.Limit,
		SnapshotTimeout: cfg.Snapshot.OpTimeout,
		Cells:           mapper,
		CellRes:         cfg.H3Res,
	}

	if cfg.Snapshot.Enabled {
		rc, err := redisstore.New(ctx, cfg.Snapshot.RedisAddr,
			redisstore.WithReadTimeout(cfg.Snapshot.OpTimeout),
			redisstore.WithWriteTimeout(cfg.Snapshot.OpTimeout),
		)
		if err != nil {
			appLog.Error("redis connect failed", "addr", cfg.Snapshot.RedisAddr, "err", err)
			return 1
		}
		defer func() { _ = rc.Close() }()
		opts.Snapshot = snapshot.NewRedisMirror(rc, cfg.Snapshot.Namespace, cfg.CacheTTL)
	}

	if cfg.Events.Enabled {
		pub, err := viewportevents.NewPublisher(cfg.Events.Brokers, cfg.Events.Topic, cfg.Events.QueueSize, appLog)
		if err != nil {
			appLog.Error("viewport events producer failed", "err", err)
			return 1
		}
		opts.Events = pub
	}

	svc, err := viewport.New(opts)
	if err != nil {
		appLog.Error("viewport service setup failed", "err", err)
		return 1
	}
	defer func() {
		if err := svc.Close(); err != nil {
			appLog.Warn("viewport service close", "err", err)
		}
	}()

	if warmed, err := svc.Warm(ctx); err != nil {
		appLog.Warn("snapshot warm failed; starting cold", "err", err)
	} else if warmed {
		info := svc.CacheInfo()
		appLog.Info("warmed from snapshot", "generation", info.Generation, "houses", info.HousesCount, "ads", info.AdsCount)
	}

	invCfg := kafka.FromEnv()
	runner := kafka.New(invCfg, svc, mapper, kafka.Options{
		Logger:   appLog,
		Register: mp.Registerer(),
	})

	deps := server.Deps{Viewport: svc}
	if runner.Enabled() {
		deps.Ready = runner
	}
	metricsSrv := mp.Server()
	if cfg.Metrics.Enabled && metricsSrv == nil {
		deps.Metrics = mp.Handler()
		deps.MetricsPath = mp.Path()
	}

	g, gctx := errgroup.WithContext(ctx)
	if runner.Enabled() {
		if err := runner.Start(gctx); err != nil {
			appLog.Error("invalidation runner start failed", "err", err)
			return 1
		}
		g.Go(func() error {
			<-gctx.Done()
			runner.Stop()
			return nil
		})
	}
	g.Go(func() error {
		return server.Run(gctx, cfg, appLog, deps)
	})
	if metricsSrv != nil {
		g.Go(func() error {
			return server.Serve(gctx, metricsSrv, appLog)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped", "uptime", time.Since(start).Round(time.Second))
	return 0
}
