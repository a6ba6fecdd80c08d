// Package dlq routes records the pipeline refuses to process to a
// dead-letter topic, grounded directly on the teacher's DLQ publisher:
// same field names, same base64 encoding of the raw value "to handle any
// malformed input."
package dlq

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/getsentry/snuba-consumer/internal/model"
)

// InvalidMessage is the signal a decode or processor failure raises up to
// the hosting pipeline. The pipeline is expected to have the original
// RawMessage already buffered from fan-out time — no second fetch from the
// broker is required.
type InvalidMessage struct {
	Partition uint32
	Offset    uint64
	Reason    string
	Err       error
}

func (m *InvalidMessage) Error() string {
	if m.Err != nil {
		return m.Reason + ": " + m.Err.Error()
	}
	return m.Reason
}

type DLQRecord struct {
	OriginalTopic     string    `json:"original_topic"`
	OriginalPartition uint32    `json:"original_partition"`
	OriginalOffset    uint64    `json:"original_offset"`
	OriginalKey       string    `json:"original_key,omitempty"`
	OriginalValueB64  string    `json:"original_value_b64"`
	FailedAt          time.Time `json:"failed_at"`
	Reason            string    `json:"reason"`
	Error             string    `json:"error,omitempty"`
}

const (
	ReasonDecodeFailed    = "decode_failed"
	ReasonProcessorFailed = "processor_failed"
)

var dlqMessagesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "snuba_consumer",
		Name:      "dlq_messages_total",
		Help:      "Total number of messages sent to the dead letter queue",
	},
	[]string{"topic", "reason"},
)

// Producer publishes invalid records to a configured dead-letter topic and
// blocks until delivery is confirmed, so the caller can safely advance the
// commit position only after Publish returns without error.
type Producer struct {
	client *kgo.Client
	topic  string
}

func New(client *kgo.Client, topic string) *Producer {
	return &Producer{client: client, topic: topic}
}

// Publish sends raw to the DLQ topic and waits for broker acknowledgement.
// The commit step MUST NOT advance past this record's offset until Publish
// returns nil.
func (p *Producer) Publish(ctx context.Context, raw model.RawMessage, reason string, cause error) error {
	errStr := ""
	if cause != nil {
		errStr = cause.Error()
	}

	rec := DLQRecord{
		OriginalTopic:     raw.Topic,
		OriginalPartition: raw.Metadata.Partition,
		OriginalOffset:    raw.Metadata.Offset,
		OriginalKey:       string(raw.Key),
		OriginalValueB64:  base64.StdEncoding.EncodeToString(raw.Value),
		FailedAt:          time.Now().UTC(),
		Reason:            reason,
		Error:             errStr,
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		slog.Warn("failed to marshal DLQ record", "error", err, "original_error", cause, "offset", raw.Metadata.Offset)
		return err
	}

	done := make(chan error, 1)
	p.client.Produce(ctx, &kgo.Record{Topic: p.topic, Key: raw.Key, Value: payload}, func(r *kgo.Record, produceErr error) {
		if produceErr != nil {
			slog.Warn("failed to produce to DLQ", "error", produceErr, "original_offset", raw.Metadata.Offset, "reason", reason)
			done <- produceErr
			return
		}
		dlqMessagesTotal.WithLabelValues(p.topic, reason).Inc()
		slog.Debug("message sent to DLQ", "reason", reason, "original_offset", raw.Metadata.Offset, "original_partition", raw.Metadata.Partition)
		done <- nil
	})

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
