package main

import (
	"github.com/getsentry/snuba-consumer/pkg/common"
)

type Config struct {
	Port         string
	KafkaBrokers []string
	KafkaTopic   string
}

func loadConfig() Config {
	return Config{
		Port:         common.GetenvOrDefault("PORT", "8081"),
		KafkaBrokers: common.SplitCommaSeparated(common.RequireEnv("KAFKA_BROKERS")),
		KafkaTopic:   common.RequireEnv("KAFKA_TOPIC"),
	}
}
