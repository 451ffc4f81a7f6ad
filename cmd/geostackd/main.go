// geostackd is the weather reading ingestion and dataset stacking daemon.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fieldline/geostack/internal/artifact"
	"github.com/fieldline/geostack/internal/buffer"
	"github.com/fieldline/geostack/internal/catalog"
	"github.com/fieldline/geostack/internal/config"
	"github.com/fieldline/geostack/internal/dataset"
	"github.com/fieldline/geostack/internal/flush"
	"github.com/fieldline/geostack/internal/ingest/mqttsource"
	"github.com/fieldline/geostack/internal/logging"
	"github.com/fieldline/geostack/internal/metrics"
	"github.com/fieldline/geostack/internal/pipeline"
	"github.com/fieldline/geostack/internal/scheduler"
	"github.com/fieldline/geostack/internal/server"
	"github.com/fieldline/geostack/internal/service"
	"github.com/fieldline/geostack/internal/source"
	"github.com/fieldline/geostack/internal/stack"
	"github.com/fieldline/geostack/internal/store"
	"github.com/fieldline/geostack/internal/store/parquetstore"
	"github.com/fieldline/geostack/internal/store/pgstore"
)

// Version is set at build time via ldflags.
var Version = "dev"

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func main() {
	cfgPath := flag.String("config", "config.yaml", "config file path")
	listen := flag.String("listen", "", "listen address (overrides config)")
	envFile := flag.String("env", "", "env file to load before reading config")
	flag.Parse()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			slog.Error("load env file", "path", *envFile, "error", err)
			os.Exit(1)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg, err := config.LoadOrDefault(*cfgPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.Server.Addr = *listen
	}

	logging.Init(parseLevel(cfg.Logging.Level), cfg.Logging.JSON)
	log := logging.Component("main")
	log.Info("geostackd starting", "version", Version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	// Metadata registries, rehydrated from the catalog.
	datasets := dataset.NewRegistry()
	stacks := stack.NewRegistry(datasets)
	cat, err := catalog.Open(cfg.Catalog.Path, datasets, stacks)
	if err != nil {
		log.Error("open catalog", "error", err)
		os.Exit(1)
	}
	defer cat.Close()

	// Durable reading store.
	var readingStore store.Store
	switch cfg.Store.Driver {
	case "memory":
		readingStore = store.NewMemory()
	case "parquet":
		readingStore, err = parquetstore.New(cfg.Store.Parquet.Dir, parquetstore.Options{
			Compression: cfg.Store.Parquet.Compression,
		})
	case "postgres":
		readingStore, err = pgstore.New(ctx, cfg.Store.Postgres.DSN)
	}
	if err != nil {
		log.Error("open store", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	defer readingStore.Close()

	// Aggregation read path. Parquet batches are queryable in place; the
	// other drivers serve only explicitly registered sources.
	sources := source.NewMux()
	if cfg.Store.Driver == "parquet" {
		stations := make(map[string]source.Location, len(cfg.Stations))
		for id, loc := range cfg.Stations {
			stations[id] = source.Location{Lat: loc.Lat, Lon: loc.Lon}
		}
		duck, err := source.NewDuckDB(stations)
		if err != nil {
			log.Error("open duckdb source", "error", err)
			os.Exit(1)
		}
		defer duck.Close()
		duck.SetDefaultGlob(filepath.Join(cfg.Store.Parquet.Dir, "*.parquet"))
		sources.SetDefault(duck)
	}

	artifacts, err := artifact.Open(ctx, artifact.Config{
		Driver: cfg.Artifact.Driver,
		Root:   cfg.Artifact.Root,
		S3: artifact.S3Config{
			Bucket:    cfg.Artifact.S3.Bucket,
			Region:    cfg.Artifact.S3.Region,
			Endpoint:  cfg.Artifact.S3.Endpoint,
			AccessKey: cfg.Artifact.S3.AccessKey,
			SecretKey: cfg.Artifact.S3.SecretKey,
			PathStyle: cfg.Artifact.S3.PathStyle,
			Prefix:    cfg.Artifact.S3.Prefix,
		},
	})
	if err != nil {
		log.Error("open artifact store", "error", err)
		os.Exit(1)
	}
	defer artifacts.Close()

	buffers := buffer.NewRegistry(buffer.Options{
		MaxSize:          cfg.Buffer.MaxSize,
		AutoProcess:      cfg.Buffer.AutoProcess,
		ProcessThreshold: cfg.Buffer.ProcessThreshold,
	})
	coordinator := flush.NewCoordinator(readingStore, m)
	pipe := pipeline.New(datasets, sources)

	svc := service.New(service.Options{
		Buffers:           buffers,
		Policy:            buffer.ThresholdPolicy{},
		Flusher:           coordinator,
		Datasets:          datasets,
		Stacks:            stacks,
		Pipeline:          pipe,
		Artifacts:         artifacts,
		Catalog:           cat,
		Metrics:           m,
		GenerationTimeout: cfg.Pipeline.GenerationTimeout,
	})

	if cfg.MQTT.Enabled {
		sub := mqttsource.New(cfg.MQTT, svc)
		if err := sub.Start(); err != nil {
			log.Error("start mqtt subscriber", "error", err)
			os.Exit(1)
		}
		defer sub.Stop()
		log.Info("mqtt subscriber started", "broker", cfg.MQTT.Broker, "topic", cfg.MQTT.Topic)
	}

	if cfg.Scheduler.Enabled {
		sched := scheduler.New(cfg.Scheduler.SweepInterval, svc)
		if err := sched.Start(); err != nil {
			log.Error("start scheduler", "error", err)
			os.Exit(1)
		}
		defer sched.Stop()
	}

	srv := server.New(cfg.Server, svc, registry)
	if err := srv.Run(ctx); err != nil {
		log.Error("server failed", "error", err)
		os.Exit(1)
	}

	// Final sweep so shutdown does not strand buffered readings.
	sweepCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	svc.SweepBuffers(sweepCtx)

	log.Info("geostackd stopped")
}
