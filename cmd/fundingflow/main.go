package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"fundingflow/config"
	"fundingflow/internal/api"
	"fundingflow/internal/archive"
	"fundingflow/internal/engine"
	"fundingflow/internal/fetcher"
	"fundingflow/internal/metrics"
	"fundingflow/internal/refresh"
	"fundingflow/logger"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", config.DefaultPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(config.ResolvePath(*configPath))
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service":     cfg.Fundingflow.Name,
		"version":     cfg.Fundingflow.Version,
		"environment": config.AppEnvironment(),
	}).Info("starting fundingflow")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Prometheus {
		metrics.Init()
	}
	if cfg.Metrics.CloudWatch.Enabled {
		metrics.InitCloudWatch(ctx, cfg.Metrics.CloudWatch)
	}

	httpFetcher := fetcher.New(fetcher.OptionsFromConfig(cfg), log)
	registry := engine.NewRegistryFromConfig(cfg, httpFetcher, log)
	aggregator := engine.New(registry, log)

	log.WithComponent("main").WithFields(logger.Fields{
		"exchanges": registry.IDs(),
		"timeout":   httpFetcher.Timeout().String(),
	}).Info("aggregation engine ready")

	var archiver *archive.Archiver
	if cfg.Storage.S3.Enabled {
		archiver, err = archive.New(ctx, cfg, log)
		if err != nil {
			log.WithError(err).Error("failed to create snapshot archiver")
			os.Exit(1)
		}
		if err := archiver.Start(ctx); err != nil {
			log.WithError(err).Error("failed to start snapshot archiver")
			os.Exit(1)
		}
	} else {
		log.WithComponent("main").Info("S3 storage disabled; skipping archiver")
	}

	var (
		refresher *refresh.Refresher
		snapshots api.SnapshotSource
	)
	if cfg.Refresh.Enabled {
		refresher = refresh.New(aggregator, cfg.Refresh, log)
		if archiver != nil {
			refresher.OnSnapshot(func(snap refresh.Snapshot) {
				if err := archiver.Archive(snap.Rates, snap.UpdatedAt); err != nil {
					log.WithComponent("archive").WithError(err).Warn("snapshot not archived")
				}
			})
		}
		if err := refresher.Start(ctx); err != nil {
			log.WithError(err).Error("failed to start background refresh")
			os.Exit(1)
		}
		snapshots = refresher
	} else {
		log.WithComponent("main").Info("background refresh disabled")
	}

	server, err := api.NewServer(cfg, aggregator, snapshots, registry.IDs(), log)
	if err != nil {
		log.WithError(err).Error("failed to create api server")
		os.Exit(1)
	}

	var wg sync.WaitGroup
	if server != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := server.Run(ctx); err != nil {
				log.WithError(err).Error("api server stopped")
				stop()
			}
		}()
	} else {
		log.WithComponent("main").Info("api server disabled")
	}

	log.Info("all components started successfully")

	<-ctx.Done()
	log.Info("starting graceful shutdown")

	if refresher != nil {
		log.Info("stopping background refresh")
		refresher.Stop()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		if archiver != nil {
			log.Info("stopping snapshot archiver")
			archiver.Stop()
		}
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	log.Info("fundingflow stopped")
}
