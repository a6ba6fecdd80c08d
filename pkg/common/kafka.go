package common

import (
	"context"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
)

// KgoSlogLogger adapts franz-go's internal logging interface onto slog so
// every client in this repository logs through the same JSON handler.
type KgoSlogLogger struct {
	logger *slog.Logger
	level  kgo.LogLevel
}

func NewKgoSlogLogger(logger *slog.Logger, level kgo.LogLevel) *KgoSlogLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &KgoSlogLogger{
		logger: logger,
		level:  level,
	}
}

func (l *KgoSlogLogger) Level() kgo.LogLevel {
	return l.level
}

func (l *KgoSlogLogger) Log(level kgo.LogLevel, msg string, keyvals ...any) {
	if level == kgo.LogLevelNone {
		return
	}

	slogLevel := slog.LevelInfo
	switch level {
	case kgo.LogLevelDebug:
		slogLevel = slog.LevelDebug
	case kgo.LogLevelWarn:
		slogLevel = slog.LevelWarn
	case kgo.LogLevelError:
		slogLevel = slog.LevelError
	}

	l.logger.Log(context.Background(), slogLevel, msg, keyvals...)
}

func KgoLogLevelFromString(levelStr string) kgo.LogLevel {
	switch strings.ToLower(levelStr) {
	case "debug":
		return kgo.LogLevelDebug
	case "warn", "warning":
		return kgo.LogLevelWarn
	case "error":
		return kgo.LogLevelError
	case "none":
		return kgo.LogLevelNone
	default:
		return kgo.LogLevelInfo
	}
}

// StartKafkaHealthCheck pings the broker on an interval and flips ready on
// CompareAndSwap transitions only, so a flapping broker doesn't spam logs.
func StartKafkaHealthCheck(ctx context.Context, client *kgo.Client, ready *atomic.Bool) {
	check := func() {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()

		err := client.Ping(pingCtx)
		if err != nil {
			if ready.CompareAndSwap(true, false) {
				slog.Warn("kafka not reachable", "error", err, "brokers", getBrokers(pingCtx, client))
			}
		} else {
			if ready.CompareAndSwap(false, true) {
				slog.Info("kafka connection established", "brokers", getBrokers(pingCtx, client))
			}
		}
	}

	check()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}

func getBrokers(ctx context.Context, client *kgo.Client) []string {
	req := kmsg.NewMetadataRequest()
	md, mdErr := client.RequestCachedMetadata(ctx, &req, 0)

	var brokerList []string
	if mdErr == nil {
		for _, b := range md.Brokers {
			addr := net.JoinHostPort(b.Host, strconv.Itoa(int(b.Port)))
			brokerList = append(brokerList, addr)
		}
	}

	return brokerList
}
