package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/getsentry/snuba-consumer/internal/model"
)

type fakeWriter struct {
	rows [][]byte
	err  error
}

func (f *fakeWriter) Write(ctx context.Context, rows [][]byte) error {
	f.rows = rows
	return f.err
}

type fakeProducer struct {
	produced []*kgo.Record
	failNext bool
}

func (f *fakeProducer) Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error)) {
	f.produced = append(f.produced, r)
	if f.failNext {
		promise(r, errors.New("boom"))
		return
	}
	promise(r, nil)
}

func (f *fakeProducer) Flush(ctx context.Context) error { return nil }

func meta(partition uint32, offset uint64) model.RecordMetadata {
	return model.RecordMetadata{Partition: partition, Offset: offset, Timestamp: time.Now()}
}

func TestCollectorSubmitAndCloseWritesConcatenatedRows(t *testing.T) {
	writer := &fakeWriter{}
	spec := &StorageSpec{Key: "storage_x", Insert: NewInsertWriter("storage_x", writer)}
	c := New([]*StorageSpec{spec}, nil)

	c.Submit(meta(0, 10), model.ProcessedFanout{
		{StorageKey: "storage_x", Encoded: &model.EncodedBatch{Rows: [][]byte{[]byte(`{"a":1}` + "\n")}}},
	})
	c.Submit(meta(0, 11), model.ProcessedFanout{
		{StorageKey: "storage_x", Encoded: &model.EncodedBatch{Rows: [][]byte{[]byte(`{"a":2}` + "\n")}}},
	})

	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if len(writer.rows) != 2 {
		t.Fatalf("writer received %d rows, want 2", len(writer.rows))
	}

	offsets := c.OffsetsToCommit()
	if offsets[0].Offset != 11 {
		t.Errorf("offsets_to_commit[0] = %d, want 11", offsets[0].Offset)
	}
}

func TestCollectorPreFilterAdvancesOffsets(t *testing.T) {
	writer := &fakeWriter{}
	spec := &StorageSpec{Key: "storage_x", Insert: NewInsertWriter("storage_x", writer)}
	c := New([]*StorageSpec{spec}, nil)

	// Record surviving no storage's pre-filter: empty fanout, offset must still advance.
	c.Submit(meta(0, 5), model.ProcessedFanout{})

	if got := c.OffsetsToCommit()[0].Offset; got != 5 {
		t.Errorf("offsets_to_commit[0] = %d, want 5", got)
	}
}

func TestCollectorIgnoreErrorsSwallowsInsertFailure(t *testing.T) {
	failing := &fakeWriter{err: errors.New("insert failed")}
	ignorable := &StorageSpec{Key: "storage_y", Insert: NewInsertWriter("storage_y", failing), IgnoreWriteErrors: true}
	c := New([]*StorageSpec{ignorable}, nil)

	c.Submit(meta(0, 1), model.ProcessedFanout{
		{StorageKey: "storage_y", Encoded: &model.EncodedBatch{Rows: [][]byte{[]byte("x\n")}}},
	})

	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("Close() returned error for ignorable storage: %v", err)
	}
}

func TestCollectorNonIgnorableInsertFailureFailsBatch(t *testing.T) {
	failing := &fakeWriter{err: errors.New("insert failed")}
	spec := &StorageSpec{Key: "storage_x", Insert: NewInsertWriter("storage_x", failing)}
	c := New([]*StorageSpec{spec}, nil)

	c.Submit(meta(0, 1), model.ProcessedFanout{
		{StorageKey: "storage_x", Encoded: &model.EncodedBatch{Rows: [][]byte{[]byte("x\n")}}},
	})

	if err := c.Close(context.Background()); err == nil {
		t.Fatal("Close() should fail when a non-ignorable storage's insert fails")
	}
}

func TestCollectorReplacementJoinFailureFailsBatch(t *testing.T) {
	writer := &fakeWriter{}
	producer := &fakeProducer{failNext: true}
	spec := &StorageSpec{
		Key:          "storage_x",
		Insert:       NewInsertWriter("storage_x", writer),
		Replacements: NewReplacementWriter("replacements-topic", producer),
	}
	c := New([]*StorageSpec{spec}, nil)

	c.Submit(meta(2, 99), model.ProcessedFanout{
		{StorageKey: "storage_x", Replacement: &model.ReplacementBatch{Key: "k", Values: []any{map[string]any{"op": "del", "id": 1}}}},
	})

	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := c.Join(context.Background(), time.Second); err == nil {
		t.Fatal("Join() should fail when a replacement delivery callback reports an error")
	}
}

func TestCollectorCommitLogProducesOneRecordPerPartition(t *testing.T) {
	writer := &fakeWriter{}
	producer := &fakeProducer{}
	spec := &StorageSpec{Key: "storage_x", Insert: NewInsertWriter("storage_x", writer)}
	commitLog := NewCommitLogProducer("commit-log-topic", "group-1", producer)
	c := New([]*StorageSpec{spec}, commitLog)

	c.Submit(meta(2, 99), model.ProcessedFanout{
		{StorageKey: "storage_x", Encoded: &model.EncodedBatch{Rows: [][]byte{[]byte("x\n")}}},
	})

	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := c.Join(context.Background(), time.Second); err != nil {
		t.Fatalf("Join() error: %v", err)
	}
	if len(producer.produced) != 1 {
		t.Fatalf("commit-log produced %d records, want 1", len(producer.produced))
	}
}
