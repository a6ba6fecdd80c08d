package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/getsentry/snuba-consumer/internal/batch"
	"github.com/getsentry/snuba-consumer/internal/collector"
	"github.com/getsentry/snuba-consumer/internal/dlq"
	"github.com/getsentry/snuba-consumer/internal/fanout"
	"github.com/getsentry/snuba-consumer/internal/model"
	"github.com/getsentry/snuba-consumer/internal/schema"
	"github.com/getsentry/snuba-consumer/internal/transform"
)

// Config bundles the consumer loop's tuning knobs, mirroring spec.md §6's
// configuration surface table.
type Config struct {
	Topic                  string
	MaxBatchSize           int
	MaxBatchTime           time.Duration
	Workers                int
	CommitLogTopic         string
	CommitLogGroupID       string
	ParallelCollectTimeout time.Duration
}

// Readiness tracks partition assignment across the consumer group
// rebalance callbacks. It is constructed before the kgo.Client that will
// invoke it, since kgo.Opt callbacks must be supplied at client creation
// time, before a Consumer (which needs that same client) can exist.
type Readiness struct {
	ready atomic.Bool
}

func (r *Readiness) Ready() bool { return r.ready.Load() }

// KgoOpts returns the partition-assignment callbacks wiring the
// readiness flag, for inclusion in kgo.NewClient's option list.
func (r *Readiness) KgoOpts() []kgo.Opt {
	return []kgo.Opt{
		kgo.OnPartitionsAssigned(func(ctx context.Context, cl *kgo.Client, assigned map[string][]int32) {
			if r.ready.CompareAndSwap(false, true) {
				slog.Info("consumer partitions assigned", "assignments", assigned)
			}
		}),
		kgo.OnPartitionsRevoked(func(ctx context.Context, cl *kgo.Client, revoked map[string][]int32) {
			if r.ready.CompareAndSwap(true, false) {
				slog.Info("consumer partitions revoked", "assignments", revoked)
			}
		}),
		kgo.OnPartitionsLost(func(ctx context.Context, cl *kgo.Client, lost map[string][]int32) {
			if r.ready.CompareAndSwap(true, false) {
				slog.Warn("consumer partitions lost", "assignments", lost)
			}
		}),
	}
}

// Consumer drives one kgo.Client's fetch loop through fanout, transform,
// and reduce, exactly mirroring the teacher's consume/processBatches
// split but generalized to the multi-storage pipeline.
type Consumer struct {
	client    *kgo.Client
	wiring    *Wiring
	tf        *transform.Transformer
	reducer   *batch.Reducer
	dlq       *dlq.Producer
	cfg       Config
	readiness *Readiness

	fatal atomic.Pointer[error]
}

func NewConsumer(pctx *Context, client *kgo.Client, readiness *Readiness, wiring *Wiring, codecs *schema.Registry, replProducer collector.Producer, dlqProducer *dlq.Producer, cfg Config) *Consumer {
	if cfg.ParallelCollectTimeout <= 0 {
		cfg.ParallelCollectTimeout = 10 * time.Second
	}
	if codecs == nil {
		codecs = schema.NewRegistry(nil)
	}
	if readiness == nil {
		readiness = &Readiness{}
	}

	c := &Consumer{
		client:    client,
		wiring:    wiring,
		dlq:       dlqProducer,
		cfg:       cfg,
		readiness: readiness,
	}

	c.tf = &transform.Transformer{
		Codecs:  codecs,
		Config:  pctx.Config,
		Workers: cfg.Workers,
		EnableDLQ: func(topic string) bool {
			return pctx.Config.EnableNewDLQ(context.Background(), topic)
		},
	}

	var commitLog *collector.CommitLogProducer
	if cfg.CommitLogTopic != "" && replProducer != nil {
		commitLog = collector.NewCommitLogProducer(cfg.CommitLogTopic, cfg.CommitLogGroupID, replProducer)
	}

	newCollector := func() *collector.Collector {
		specs := wiring.StorageSpecs(replProducer)
		return collector.New(specs, commitLog)
	}

	c.reducer = batch.New(batch.Config{
		MaxBatchSize: cfg.MaxBatchSize,
		MaxBatchTime: cfg.MaxBatchTime,
		JoinTimeout:  cfg.ParallelCollectTimeout,
		NewCollector: newCollector,
		Commit:       c.commit,
		OnJoinError:  c.onJoinError,
	})

	return c
}

// Ready reports whether this consumer currently holds a partition
// assignment, for the /readyz handler.
func (c *Consumer) Ready() bool { return c.readiness.Ready() }

// Fatal returns the first unrecoverable batch-join error, if any. The
// hosting binary checks this after Run returns and os.Exit(1)s, matching
// spec.md §7's fail-fast posture on non-ignorable write failures.
func (c *Consumer) Fatal() error {
	if p := c.fatal.Load(); p != nil {
		return *p
	}
	return nil
}

// Run polls fetches until ctx is cancelled, tagging, transforming, and
// submitting each record into the Reducer. Each fetch's records are
// transformed together through Transformer.RunAll so cfg.Workers actually
// parallelizes decode/validate/process across the batch; RunAll preserves
// input order, so per-partition offset ordering survives the pool exactly
// as it would running inline. It blocks until the Reducer has fully
// drained.
func (c *Consumer) Run(ctx context.Context) {
	go c.reducer.Run(ctx)

	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			break
		}
		if ctx.Err() != nil {
			break
		}

		fetches.EachError(func(topic string, partition int32, err error) {
			if errors.Is(err, context.Canceled) || errors.Is(err, kgo.ErrClientClosed) {
				return
			}
			slog.Warn("kafka fetch error", "error", err, "topic", topic, "partition", partition)
		})

		iter := fetches.RecordIter()
		var raws []model.RawMessage
		for !iter.Done() {
			raws = append(raws, c.toRawMessage(iter.Next()))
		}
		c.processBatch(ctx, raws)
	}

	<-c.reducer.Done()
}

func (c *Consumer) toRawMessage(record *kgo.Record) model.RawMessage {
	raw := model.RawMessage{
		Topic: record.Topic,
		Key:   record.Key,
		Value: record.Value,
		Metadata: model.RecordMetadata{
			Partition: uint32(record.Partition),
			Offset:    uint64(record.Offset),
			Timestamp: record.Timestamp,
		},
	}
	for _, h := range record.Headers {
		raw.Headers = append(raw.Headers, model.MessageHeader{Key: h.Key, Value: h.Value})
	}
	return raw
}

func (c *Consumer) processBatch(ctx context.Context, raws []model.RawMessage) {
	if len(raws) == 0 {
		return
	}

	inputs := make([]transform.Input, len(raws))
	for i, raw := range raws {
		inputs[i] = transform.Input{Payload: fanout.Tag(raw, c.wiring.Destinations)}
	}

	results := c.tf.RunAll(ctx, inputs, c.wiring.TransformTargets)

	for i, result := range results {
		raw := raws[i]

		if result.Invalid != nil {
			if c.dlq != nil {
				if err := c.dlq.Publish(ctx, raw, result.Invalid.Reason, result.Invalid.Err); err != nil {
					slog.Error("failed to publish to DLQ, will not advance offset", "error", err, "partition", raw.Metadata.Partition, "offset", raw.Metadata.Offset)
					continue
				}
			}
			// DLQ delivery confirmed (or no DLQ configured): progress the offset
			// via an empty fanout, same as a record dropped by every pre-filter.
			result.Fanout = model.ProcessedFanout{}
		}

		c.reducer.Submit(ctx, batch.Item{Metadata: raw.Metadata, Fanout: result.Fanout})
	}
}

func (c *Consumer) commit(ctx context.Context, offsets map[uint32]model.PartitionOffset) error {
	records := make([]*kgo.Record, 0, len(offsets))
	for partition, po := range offsets {
		records = append(records, &kgo.Record{
			Topic:     c.cfg.Topic,
			Partition: int32(partition),
			Offset:    int64(po.Offset),
		})
	}
	if len(records) == 0 {
		return nil
	}
	if err := c.client.CommitRecords(ctx, records...); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (c *Consumer) onJoinError(err error) {
	slog.Error("batch join failed, this consumer will not advance the affected offsets", "error", err)
	c.fatal.CompareAndSwap(nil, &err)
}
