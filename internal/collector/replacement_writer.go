package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/getsentry/snuba-consumer/internal/model"
)

// Producer is the subset of *kgo.Client the collector's async writers
// depend on. *kgo.Client satisfies it directly.
type Producer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
	Flush(ctx context.Context) error
}

// ReplacementWriter holds an async producer to the replacements topic for
// one StorageKey. close() produces every buffered value as its own record;
// delivery failures are fatal and surface through join().
type ReplacementWriter struct {
	Topic    string
	Producer Producer

	pending []model.ReplacementBatch
	failed  atomic.Bool
	lastErr atomic.Value
}

func NewReplacementWriter(topic string, producer Producer) *ReplacementWriter {
	return &ReplacementWriter{Topic: topic, Producer: producer}
}

func (w *ReplacementWriter) Submit(batch model.ReplacementBatch) {
	w.pending = append(w.pending, batch)
}

func (w *ReplacementWriter) Empty() bool {
	return len(w.pending) == 0
}

// Close produces every pending value. It does not block for delivery;
// Join does.
func (w *ReplacementWriter) Close(ctx context.Context) {
	for _, batch := range w.pending {
		for _, value := range batch.Values {
			payload, err := json.Marshal(value)
			if err != nil {
				w.fail(fmt.Errorf("replacement: marshal value for key %q: %w", batch.Key, err))
				continue
			}
			rec := &kgo.Record{Topic: w.Topic, Key: []byte(batch.Key), Value: payload}
			w.Producer.Produce(ctx, rec, func(_ *kgo.Record, err error) {
				if err != nil {
					w.fail(fmt.Errorf("replacement: produce failed: %w", err))
				}
			})
		}
	}
}

func (w *ReplacementWriter) fail(err error) {
	w.failed.Store(true)
	w.lastErr.Store(err)
}

// Join flushes the producer and reports the first delivery failure, if any.
func (w *ReplacementWriter) Join(ctx context.Context) error {
	if err := w.Producer.Flush(ctx); err != nil {
		return fmt.Errorf("replacement: flush: %w", err)
	}
	if w.failed.Load() {
		if err, ok := w.lastErr.Load().(error); ok {
			return err
		}
		return fmt.Errorf("replacement: delivery failed")
	}
	return nil
}
