package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tokenflow/aggregator"
	"tokenflow/cache"
	"tokenflow/config"
	"tokenflow/ingest"
	"tokenflow/logger"
	"tokenflow/server"
	"tokenflow/source"
	"tokenflow/source/birdeye"
	"tokenflow/source/dexscreener"
	"tokenflow/source/pumpfun"
	"tokenflow/stream"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Tokenflow.Name,
		"version": cfg.Tokenflow.Version,
	}).Info("starting tokenflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.CloudWatch.Enabled {
		logger.InitCloudWatch(cfg.Metrics.CloudWatch.Region, cfg.Metrics.CloudWatch.Namespace, cfg.Metrics.CloudWatch.Dashboard)
	}
	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	adapters := make([]source.Adapter, 0, 3)
	if cfg.Sources.Pumpfun.Enabled {
		adapters = append(adapters, pumpfun.NewClient(cfg.Sources.Pumpfun))
	}
	if cfg.Sources.Dexscreener.Enabled {
		adapters = append(adapters, dexscreener.NewClient(cfg.Sources.Dexscreener))
	}
	if cfg.Sources.Birdeye.Enabled {
		adapters = append(adapters, birdeye.NewClient(cfg.Sources.Birdeye))
	}
	if len(adapters) == 0 && !cfg.Socket.Enabled {
		log.WithComponent("main").Error("no sources enabled; nothing to aggregate")
		os.Exit(1)
	}

	agg := aggregator.New(adapters)

	var ingester *ingest.Ingester
	if cfg.Socket.Enabled {
		ingester = ingest.New(cfg.Socket)
		agg.WithLive(ingester)
		if err := ingester.Connect(); err != nil {
			log.WithError(err).Error("failed to start socket ingester")
			os.Exit(1)
		}
	} else {
		log.WithComponent("main").Info("socket feed disabled; serving REST sources only")
	}

	snapshots := cache.New(cfg.Cache, func(ctx context.Context, key cache.Key) aggregator.Result {
		return agg.Aggregate(ctx, key.Limit, key.Timeframe, key.Realtime)
	})

	publisher := stream.NewPublisher(cfg.Stream, snapshots)

	var socketStatus server.SocketStatus
	if ingester != nil {
		socketStatus = ingester
	}
	srv := server.New(cfg.Server, cfg.Stream, snapshots, publisher, socketStatus)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.WithFields(logger.Fields{"signal": sig.String()}).Info("received shutdown signal")
	case err := <-errCh:
		if err != nil {
			log.WithError(err).Error("http server exited")
		}
	}

	cancel()

	if err := srv.Shutdown(); err != nil {
		log.WithError(err).Warn("http shutdown did not complete cleanly")
	}
	if ingester != nil {
		log.Info("stopping socket ingester")
		ingester.Disconnect()
	}
	log.Info("closing snapshot cache")
	snapshots.Close()

	log.Info("tokenflow stopped")
}
