package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/getsentry/snuba-consumer/internal/dlq"
	"github.com/getsentry/snuba-consumer/internal/pipeline"
	"github.com/getsentry/snuba-consumer/internal/registry"
	"github.com/getsentry/snuba-consumer/internal/runtimeconfig"
	"github.com/getsentry/snuba-consumer/pkg/common"
)

func main() {
	logLevel := common.InitSlog()
	cfg := loadConfig()

	db, err := common.ConnectPGXPoolWithRetry(context.Background(), cfg.DatabaseURL, logLevel, 10, 3*time.Second)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := registry.RunMigrations(db); err != nil {
		slog.Error("failed to run storage registry migrations", "error", err)
		os.Exit(1)
	}

	reg := registry.New(db, cfg.RegistryPollInterval)
	if err := reg.Load(context.Background()); err != nil {
		slog.Error("failed to load storage registry", "error", err)
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	cfgStore := runtimeconfig.New(rdb)

	wiring, err := pipeline.BuildWiring(reg, buildHostStorages(cfg.EnabledStorages), pipeline.ClickHouseConfig{
		BaseURL:  cfg.ClickHouseURL,
		Database: cfg.ClickHouseDatabase,
		SliceID:  cfg.ClickHouseSliceID,
	})
	if err != nil {
		slog.Error("failed to wire storages", "error", err)
		os.Exit(1)
	}
	kafkaLogLevel := common.KgoLogLevelFromString(logLevel)

	producer, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.KafkaBrokers...),
		kgo.WithLogger(common.NewKgoSlogLogger(slog.Default().With("component", "kafka-producer"), kafkaLogLevel)),
	)
	if err != nil {
		slog.Error("failed to create kafka producer client", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	var dlqProducer *dlq.Producer
	if cfg.DLQTopic != "" {
		dlqProducer = dlq.New(producer, cfg.DLQTopic)
	}

	pctx := pipeline.NewContext(cfgStore, reg, db)

	consumerCfg := pipeline.Config{
		Topic:                  cfg.KafkaTopic,
		MaxBatchSize:           cfg.MaxBatchSize,
		MaxBatchTime:           cfg.MaxBatchTime,
		Workers:                cfg.Workers,
		CommitLogTopic:         cfg.CommitLogTopic,
		CommitLogGroupID:       cfg.CommitLogGroupID,
		ParallelCollectTimeout: cfg.ParallelCollectTimeout,
	}

	readiness := &pipeline.Readiness{}

	kgoOpts := append([]kgo.Opt{
		kgo.SeedBrokers(cfg.KafkaBrokers...),
		kgo.WithLogger(common.NewKgoSlogLogger(slog.Default().With("component", "kafka-consumer"), kafkaLogLevel)),
		kgo.ConsumerGroup(cfg.KafkaConsumerGroup),
		kgo.ConsumeTopics(cfg.KafkaTopic),
		kgo.DisableAutoCommit(),
	}, readiness.KgoOpts()...)

	consumerClient, err := kgo.NewClient(kgoOpts...)
	if err != nil {
		slog.Error("failed to create kafka consumer client", "error", err)
		os.Exit(1)
	}
	defer consumerClient.Close()

	consumer := pipeline.NewConsumer(pctx, consumerClient, readiness, wiring, nil, producer, dlqProducer, consumerCfg)

	go reg.Watch(context.Background())

	runCtx, runCancel := context.WithCancel(context.Background())
	go consumer.Run(runCtx)

	e := echo.New()
	common.SetupEchoDefaults(e, "snuba-consumer", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}, func(c echo.Context) error {
		if !consumer.Ready() {
			return c.String(http.StatusServiceUnavailable, "not ready")
		}
		return c.NoContent(http.StatusOK)
	})

	echoErrChan := make(chan error, 1)
	go func() {
		slog.Info("starting snuba-consumer", "port", cfg.Port)
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			echoErrChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
		slog.Info("shutting down")
	case err := <-echoErrChan:
		slog.Error("echo failed to start", "error", err)
		os.Exit(1)
	}

	runCancel()
	time.Sleep(5 * time.Second)

	if fatal := consumer.Fatal(); fatal != nil {
		slog.Error("consumer exiting due to a non-ignorable batch join failure", "error", fatal)
		shutdownEcho(e)
		os.Exit(1)
	}

	shutdownEcho(e)
	slog.Info("shutdown complete")
}

func shutdownEcho(e *echo.Echo) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		slog.Error("echo shutdown error", "error", err)
	}
}
