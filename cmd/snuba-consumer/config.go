package main

import (
	"time"

	"github.com/getsentry/snuba-consumer/pkg/common"
)

type Config struct {
	Port string

	KafkaBrokers       []string
	KafkaTopic         string
	KafkaConsumerGroup string

	DatabaseURL string
	RedisAddr   string

	ClickHouseURL      string
	ClickHouseDatabase string
	ClickHouseSliceID  string

	CommitLogTopic         string
	CommitLogGroupID       string
	DLQTopic               string
	EnabledStorages        []string
	MaxBatchSize           int
	MaxBatchTime           time.Duration
	Workers                int
	ParallelCollectTimeout time.Duration
	RegistryPollInterval   time.Duration
}

func loadConfig() Config {
	return Config{
		Port: common.GetenvOrDefault("PORT", "8080"),

		KafkaBrokers:       common.SplitCommaSeparated(common.RequireEnv("KAFKA_BROKERS")),
		KafkaTopic:         common.RequireEnv("KAFKA_TOPIC"),
		KafkaConsumerGroup: common.GetenvOrDefault("KAFKA_CONSUMER_GROUP", "snuba-consumer"),

		DatabaseURL: common.RequireEnv("DATABASE_URL"),
		RedisAddr:   common.GetenvOrDefault("REDIS_ADDR", "localhost:6379"),

		ClickHouseURL:      common.GetenvOrDefault("CLICKHOUSE_URL", "http://localhost:8123"),
		ClickHouseDatabase: common.GetenvOrDefault("CLICKHOUSE_DATABASE", "default"),
		ClickHouseSliceID:  common.GetenvOrDefault("CLICKHOUSE_SLICE_ID", ""),

		CommitLogTopic:         common.GetenvOrDefault("COMMIT_LOG_TOPIC", ""),
		CommitLogGroupID:       common.GetenvOrDefault("COMMIT_LOG_GROUP_ID", common.GetenvOrDefault("KAFKA_CONSUMER_GROUP", "snuba-consumer")),
		DLQTopic:               common.GetenvOrDefault("DLQ_TOPIC", ""),
		EnabledStorages:        common.SplitCommaSeparated(common.GetenvOrDefault("STORAGES", "events_raw")),
		MaxBatchSize:           common.GetenvOrDefaultInt("MAX_BATCH_SIZE", "1000"),
		MaxBatchTime:           time.Millisecond * time.Duration(common.GetenvOrDefaultInt("MAX_BATCH_TIME_MS", "2000")),
		Workers:                common.GetenvOrDefaultInt("TRANSFORM_WORKERS", "0"),
		ParallelCollectTimeout: time.Millisecond * time.Duration(common.GetenvOrDefaultInt("PARALLEL_COLLECT_TIMEOUT_MS", "10000")),
		RegistryPollInterval:   time.Second * time.Duration(common.GetenvOrDefaultInt("REGISTRY_POLL_INTERVAL_SECONDS", "60")),
	}
}
