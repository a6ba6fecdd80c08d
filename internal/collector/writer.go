package collector

import (
	"context"
	"time"

	"github.com/getsentry/snuba-consumer/internal/model"
)

// BatchWriter issues one blocking bulk-insert call per Write. Implementations
// (internal/clickhouse.BatchWriter) own the HTTP connection and any
// circuit-breaking; the collector only ever calls Write once per close().
type BatchWriter interface {
	Write(ctx context.Context, rows [][]byte) error
}

// pendingMessage is one record's contribution to an InsertWriter, tracked
// separately from its row bytes so close() can compute per-message latency
// metrics without re-parsing the concatenated row buffer.
type pendingMessage struct {
	metadata        model.RecordMetadata
	originTimestamp *time.Time
	rowCount        int
}

// InsertWriter accumulates already-encoded rows for one StorageKey across a
// batch and issues exactly one bulk INSERT at close(). join() is a no-op:
// the write already completed synchronously inside close().
type InsertWriter struct {
	Key    model.StorageKey
	Writer BatchWriter

	rows     [][]byte
	messages []pendingMessage
}

func NewInsertWriter(key model.StorageKey, writer BatchWriter) *InsertWriter {
	return &InsertWriter{Key: key, Writer: writer}
}

// Submit appends encoded's rows to the pending batch for this storage.
func (w *InsertWriter) Submit(metadata model.RecordMetadata, encoded model.EncodedBatch) {
	w.rows = append(w.rows, encoded.Rows...)
	w.messages = append(w.messages, pendingMessage{
		metadata:        metadata,
		originTimestamp: encoded.OriginTimestamp,
		rowCount:        len(encoded.Rows),
	})
}

// Empty reports whether any rows were submitted this batch.
func (w *InsertWriter) Empty() bool {
	return len(w.rows) == 0
}
