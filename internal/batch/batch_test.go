package batch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/getsentry/snuba-consumer/internal/collector"
	"github.com/getsentry/snuba-consumer/internal/model"
)

type fakeInsertWriter struct {
	mu   sync.Mutex
	rows [][]byte
}

func (f *fakeInsertWriter) Write(ctx context.Context, rows [][]byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, rows...)
	return nil
}

func newTestCollectorFactory(writer *fakeInsertWriter) CollectorFactory {
	return func() *collector.Collector {
		spec := &collector.StorageSpec{Key: "storage_x", Insert: collector.NewInsertWriter("storage_x", writer)}
		return collector.New([]*collector.StorageSpec{spec}, nil)
	}
}

func TestReducerSizeTriggeredFlush(t *testing.T) {
	writer := &fakeInsertWriter{}
	var commits [][]model.PartitionOffset
	var mu sync.Mutex

	r := New(Config{
		MaxBatchSize: 2,
		MaxBatchTime: time.Minute,
		NewCollector: newTestCollectorFactory(writer),
		Commit: func(ctx context.Context, offsets map[uint32]model.PartitionOffset) error {
			mu.Lock()
			defer mu.Unlock()
			for _, po := range offsets {
				commits = append(commits, []model.PartitionOffset{po})
			}
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)

	row := func(i int) model.ProcessedFanout {
		return model.ProcessedFanout{
			{StorageKey: "storage_x", Encoded: &model.EncodedBatch{Rows: [][]byte{[]byte("row\n")}}},
		}
	}

	r.Submit(ctx, Item{Metadata: model.RecordMetadata{Partition: 0, Offset: 10, Timestamp: time.Now()}, Fanout: row(1)})
	r.Submit(ctx, Item{Metadata: model.RecordMetadata{Partition: 0, Offset: 11, Timestamp: time.Now()}, Fanout: row(2)})

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(commits)
		mu.Unlock()
		if n >= 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for size-triggered flush to commit")
		case <-time.After(10 * time.Millisecond):
		}
	}

	writer.mu.Lock()
	gotRows := len(writer.rows)
	writer.mu.Unlock()
	if gotRows != 2 {
		t.Errorf("writer received %d rows, want 2", gotRows)
	}

	cancel()
	<-r.Done()
}

func TestReducerDrainsOnShutdown(t *testing.T) {
	writer := &fakeInsertWriter{}
	flushed := make(chan struct{}, 1)

	r := New(Config{
		MaxBatchSize: 1000,
		MaxBatchTime: time.Minute,
		NewCollector: newTestCollectorFactory(writer),
		Commit: func(ctx context.Context, offsets map[uint32]model.PartitionOffset) error {
			select {
			case flushed <- struct{}{}:
			default:
			}
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)

	r.Submit(ctx, Item{
		Metadata: model.RecordMetadata{Partition: 0, Offset: 1, Timestamp: time.Now()},
		Fanout: model.ProcessedFanout{
			{StorageKey: "storage_x", Encoded: &model.EncodedBatch{Rows: [][]byte{[]byte("row\n")}}},
		},
	})

	cancel()

	select {
	case <-flushed:
	case <-time.After(2 * time.Second):
		t.Fatal("expected shutdown to drain and flush the in-flight batch")
	}
	<-r.Done()
}
