package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chainreport/internal/application"
	"chainreport/internal/config"
	"chainreport/internal/infrastructure/connection"
	"chainreport/internal/infrastructure/kafka"
	"chainreport/internal/infrastructure/logging"
	"chainreport/internal/infrastructure/mysql"
	"chainreport/internal/infrastructure/querycache"
	"chainreport/internal/infrastructure/redis"
	"chainreport/internal/infrastructure/sqlite"
	"chainreport/internal/infrastructure/telemetry"
	"chainreport/internal/interfaces/console"
	"chainreport/internal/interfaces/metrics"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		slog.Error("config error", "err", err)
		return 1
	}

	logWriter, err := logging.Init(logging.Config{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	})
	if err != nil {
		slog.Error("logger init error", "err", err)
	} else if logWriter != nil {
		defer logWriter.Close()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := telemetry.InitTracer(ctx, "chainreport", version, cfg.OtelEndpoint)
	if err != nil {
		slog.Warn("tracing init error", "err", err)
	} else {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(ctx); err != nil {
				slog.Warn("tracing shutdown error", "err", err)
			}
		}()
	}

	runMetrics := metrics.NewMetrics()

	cache, err := openCache(ctx, cfg)
	if err != nil {
		slog.Warn("query cache disabled", "backend", cfg.CacheBackend, "err", err)
	} else if cache != nil {
		slog.Info("query cache enabled", "backend", cfg.CacheBackend, "ttl", cfg.CacheTTL)
		defer cache.Close()
	}

	manager := connection.NewManager(connection.Config{
		MaxInFlight:   cfg.MaxInFlight,
		PageSize:      cfg.EnumeratePageSize,
		Cache:         cache,
		CacheTTL:      cfg.CacheTTL,
		CacheObserver: runMetrics,
	})
	defer func() {
		if err := manager.CloseAll(); err != nil {
			slog.Warn("connection close error", "err", err)
		}
	}()

	presenters := []application.Presenter{console.NewPresenter(os.Stdout)}
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(kafka.ProducerConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
		})
		if err != nil {
			slog.Error("kafka error", "err", err)
			return 1
		}
		defer producer.Close()
		presenters = append(presenters, producer)
	}

	layout := application.IdentityLayoutPeople
	if cfg.IdentityLegacyLayout {
		layout = application.IdentityLayoutLegacy
	}

	connector := application.ConnectorFunc(func(ctx context.Context, endpoint string) (application.ChainClient, error) {
		conn, err := manager.Connect(ctx, endpoint)
		if err != nil {
			return nil, err
		}
		return conn, nil
	})

	pipeline, err := application.NewPipeline(connector, presenters, runMetrics, application.PipelineConfig{
		Endpoints: application.Endpoints{
			Ledger:     cfg.LedgerEndpoint,
			Identity:   cfg.IdentityEndpoint,
			Collective: cfg.CollectiveEndpoint,
		},
		SS58Prefix:       cfg.SS58Prefix,
		MembershipPallet: cfg.MembershipPallet,
		IdentityLayout:   layout,
		ConnectTimeout:   cfg.ConnectTimeout,
		ProbeTimeout:     cfg.ProbeTimeout,
		QueryTimeout:     cfg.QueryTimeout,
		EnumerateTimeout: cfg.EnumerateTimeout,
		Workers:          cfg.JoinWorkers,
	})
	if err != nil {
		slog.Error("pipeline error", "err", err)
		return 1
	}

	_, err = pipeline.Run(ctx)
	slog.Info("run metrics", "metrics", runMetrics.Snapshot())
	if err != nil {
		logRunError(err)
		return 1
	}
	return 0
}

func logRunError(err error) {
	if errors.Is(err, context.Canceled) {
		slog.Warn("report cancelled, nothing emitted")
		return
	}
	var pipelineErr *application.PipelineError
	if errors.As(err, &pipelineErr) {
		slog.Error("report failed",
			"stage", pipelineErr.Stage,
			"endpoint", pipelineErr.Endpoint,
			"err", pipelineErr.Err,
		)
		return
	}
	slog.Error("report failed", "err", err)
}

// openCache returns a nil store when caching is disabled.
func openCache(ctx context.Context, cfg config.Config) (querycache.Store, error) {
	var (
		store querycache.Store
		err   error
	)
	switch cfg.CacheBackend {
	case config.CacheRedis:
		store, err = redis.NewStore(ctx, redis.Config{Addr: cfg.RedisAddr})
	case config.CacheSQLite:
		store, err = sqlite.NewStore(cfg.CacheDSN)
	case config.CacheMySQL:
		store, err = mysql.NewStore(cfg.CacheDSN)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}
