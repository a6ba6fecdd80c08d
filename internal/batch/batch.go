// Package batch implements the Reduce stage: a bounded accumulator that
// rotates its Collector by count or wallclock and hands the closed batch
// to a single background flush worker, so fill of batch k+1 overlaps with
// flush of batch k. Grounded directly on the teacher's processor-svc
// processBatches: same shape of submit channel + ticker + ctx.Done()
// drain, generalized from "batch of batchItem" to "batch owned by a
// collector.Collector".
package batch

import (
	"context"
	"log/slog"
	"time"

	"github.com/getsentry/snuba-consumer/internal/collector"
	"github.com/getsentry/snuba-consumer/internal/model"
)

// Item is one transformed record ready for Reduce.
type Item struct {
	Metadata model.RecordMetadata
	Fanout   model.ProcessedFanout
}

// CollectorFactory builds a fresh Collector for the next batch. Called
// once at startup and once after every rotation.
type CollectorFactory func() *collector.Collector

// CommitFunc advances the consumer's durable offsets after a batch has
// closed and joined successfully. It MUST NOT be called for a batch whose
// join failed.
type CommitFunc func(ctx context.Context, offsets map[uint32]model.PartitionOffset) error

// Config configures one Reducer.
type Config struct {
	MaxBatchSize int
	MaxBatchTime time.Duration
	JoinTimeout  time.Duration
	NewCollector CollectorFactory
	Commit       CommitFunc
	// OnJoinError is called, non-fatally, whenever a batch fails to close,
	// join, or commit; the caller decides whether that's fatal for the process
	// (spec.md §7: non-ignorable write failures crash the consumer).
	OnJoinError func(err error)
}

// Reducer owns exactly one in-flight Collector at a time and rotates it
// by count or wallclock. Run must be started in its own goroutine before
// any Submit; Submit is called from a different goroutine than Run's.
type Reducer struct {
	cfg Config

	submitCh chan Item
	flushCh  chan *collector.Collector // depth 1: at most one outstanding flush
	doneCh   chan struct{}
}

func New(cfg Config) *Reducer {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 1
	}
	if cfg.MaxBatchTime <= 0 {
		cfg.MaxBatchTime = time.Second
	}
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = 10 * time.Second
	}
	return &Reducer{
		cfg:      cfg,
		submitCh: make(chan Item, cfg.MaxBatchSize),
		flushCh:  make(chan *collector.Collector, 1),
		doneCh:   make(chan struct{}),
	}
}

// Submit enqueues item for the current batch. It blocks if the submit
// channel is full, which is the pipeline's natural back-pressure onto the
// broker poll loop.
func (r *Reducer) Submit(ctx context.Context, item Item) {
	select {
	case r.submitCh <- item:
	case <-ctx.Done():
	}
}

// Run drives the accumulate/rotate/flush loop until ctx is cancelled. It
// starts the single flush worker goroutine and blocks until both the main
// loop and the flush worker have drained.
func (r *Reducer) Run(ctx context.Context) {
	flushDone := make(chan struct{})
	go r.runFlushWorker(flushDone)

	current := r.cfg.NewCollector()
	count := 0

	ticker := time.NewTicker(r.cfg.MaxBatchTime)
	defer ticker.Stop()

	rotate := func() {
		if count == 0 {
			return
		}
		r.flushCh <- current
		current = r.cfg.NewCollector()
		count = 0
		ticker.Reset(r.cfg.MaxBatchTime)
	}

	for {
		select {
		case item := <-r.submitCh:
			current.Submit(item.Metadata, item.Fanout)
			count++
			if count >= r.cfg.MaxBatchSize {
				rotate()
			}

		case <-ticker.C:
			rotate()

		case <-ctx.Done():
			drain := true
			for drain {
				select {
				case item := <-r.submitCh:
					current.Submit(item.Metadata, item.Fanout)
					count++
				default:
					drain = false
				}
			}
			rotate()
			close(r.flushCh)
			<-flushDone
			close(r.doneCh)
			return
		}
	}
}

// Done returns a channel closed once Run has fully drained, including the
// flush worker.
func (r *Reducer) Done() <-chan struct{} {
	return r.doneCh
}

func (r *Reducer) runFlushWorker(done chan struct{}) {
	defer close(done)
	ctx := context.Background()
	for col := range r.flushCh {
		if err := r.flushOne(ctx, col); err != nil {
			if r.cfg.OnJoinError != nil {
				r.cfg.OnJoinError(err)
			} else {
				slog.Error("batch flush failed", "error", err)
			}
		}
	}
}

func (r *Reducer) flushOne(ctx context.Context, col *collector.Collector) error {
	if err := col.Close(ctx); err != nil {
		return err
	}
	if err := col.Join(ctx, r.cfg.JoinTimeout); err != nil {
		return err
	}
	if r.cfg.Commit != nil {
		return r.cfg.Commit(ctx, col.OffsetsToCommit())
	}
	return nil
}
