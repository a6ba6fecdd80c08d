// Package collector implements the per-batch aggregator: one InsertWriter
// per destination storage, an optional ReplacementWriter per storage, an
// optional CommitLogProducer, and the offset bookkeeping the commit step
// needs once everything durably lands. This is the direct port of the
// distilled system's InsertBatchWriter / ReplacementBatchWriter /
// MultistorageCollector trio.
package collector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/snuba-consumer/internal/model"
)

// StorageSpec is everything the collector needs to know about one
// destination storage for the lifetime of a single batch.
type StorageSpec struct {
	Key               model.StorageKey
	Insert            *InsertWriter
	Replacements      *ReplacementWriter // nil if this storage doesn't support replacements
	IgnoreWriteErrors bool
}

// Collector composes the per-storage writers for one in-flight batch plus
// the shared commit-log producer. A Collector is used exactly once:
// constructed, submitted into, closed, joined, then discarded.
type Collector struct {
	storages  map[model.StorageKey]*StorageSpec
	commitLog *CommitLogProducer

	offsetsToCommit map[uint32]model.PartitionOffset
	closed          bool

	now func() time.Time
}

func New(storages []*StorageSpec, commitLog *CommitLogProducer) *Collector {
	byKey := make(map[model.StorageKey]*StorageSpec, len(storages))
	for _, s := range storages {
		byKey[s.Key] = s
	}
	return &Collector{
		storages:        byKey,
		commitLog:       commitLog,
		offsetsToCommit: make(map[uint32]model.PartitionOffset),
		now:             time.Now,
	}
}

// Submit dispatches each entry of fanout to its matching storage's writer
// and advances offsets_to_commit[metadata.Partition] to the max offset seen
// so far in this batch. Called once per input record, even if its
// surviving StorageKey set is empty — offsets MUST still advance.
func (c *Collector) Submit(metadata model.RecordMetadata, fanout model.ProcessedFanout) {
	if c.closed {
		panic("collector: submit called after close")
	}

	for _, entry := range fanout {
		spec, ok := c.storages[entry.StorageKey]
		if !ok {
			continue
		}
		switch {
		case entry.Encoded != nil:
			spec.Insert.Submit(metadata, *entry.Encoded)
		case entry.Replacement != nil:
			if spec.Replacements != nil {
				spec.Replacements.Submit(*entry.Replacement)
			}
		}
	}

	current, ok := c.offsetsToCommit[metadata.Partition]
	if !ok || metadata.Offset > current.Offset {
		c.offsetsToCommit[metadata.Partition] = model.PartitionOffset{
			Offset:    metadata.Offset,
			Timestamp: metadata.Timestamp,
		}
	}
}

// OffsetsToCommit returns the batch's accumulated per-partition high-water
// marks. Valid to call only after Close/Join have returned.
func (c *Collector) OffsetsToCommit() map[uint32]model.PartitionOffset {
	return c.offsetsToCommit
}

// Close freezes the batch and issues the bulk inserts synchronously, then
// kicks off (but does not wait for) the replacement and commit-log
// produces. Ordering matters: inserts land before any replacement or
// commit-log record that might reference them becomes visible.
func (c *Collector) Close(ctx context.Context) error {
	if c.closed {
		panic("collector: close called twice")
	}
	c.closed = true

	var insertErr error
	for _, spec := range c.storages {
		if spec.Insert.Empty() {
			continue
		}
		if err := c.closeInsert(ctx, spec); err != nil {
			if spec.IgnoreWriteErrors {
				ignorableWriteFailuresTotal.WithLabelValues(string(spec.Key)).Inc()
				slog.Warn("ignoring insert failure for storage marked ignore_errors", "storage", spec.Key, "error", err)
				continue
			}
			if insertErr == nil {
				insertErr = fmt.Errorf("collector: insert failed for storage %q: %w", spec.Key, err)
			}
		}
	}
	if insertErr != nil {
		return insertErr
	}

	for _, spec := range c.storages {
		if spec.Replacements != nil && !spec.Replacements.Empty() {
			spec.Replacements.Close(ctx)
		}
	}

	if c.commitLog != nil && len(c.offsetsToCommit) > 0 {
		c.commitLog.Close(ctx, c.offsetsToCommit)
	}

	return nil
}

func (c *Collector) closeInsert(ctx context.Context, spec *StorageSpec) error {
	w := spec.Insert
	start := c.now()

	if err := w.Writer.Write(ctx, w.rows); err != nil {
		return err
	}

	elapsed := c.now().Sub(start)
	batchWriteMs.WithLabelValues(string(spec.Key)).Observe(float64(elapsed.Milliseconds()))
	batchWriteMsgs.WithLabelValues(string(spec.Key)).Add(float64(len(w.messages)))

	var maxLatency, sumLatency time.Duration
	var maxE2E, sumE2E time.Duration
	var e2eCount int
	now := c.now()
	for _, msg := range w.messages {
		latency := now.Sub(msg.metadata.Timestamp)
		sumLatency += latency
		if latency > maxLatency {
			maxLatency = latency
		}
		if msg.originTimestamp != nil {
			e2e := now.Sub(*msg.originTimestamp)
			sumE2E += e2e
			e2eCount++
			if e2e > maxE2E {
				maxE2E = e2e
			}
		}
	}
	if n := len(w.messages); n > 0 {
		maxLatencyMs.WithLabelValues(string(spec.Key)).Set(float64(maxLatency.Milliseconds()))
		latencyMs.WithLabelValues(string(spec.Key)).Set(float64(sumLatency.Milliseconds()) / float64(n))
	}
	if e2eCount > 0 {
		maxEndToEndLatencyMs.WithLabelValues(string(spec.Key)).Set(float64(maxE2E.Milliseconds()))
		endToEndLatencyMs.WithLabelValues(string(spec.Key)).Set(float64(sumE2E.Milliseconds()) / float64(e2eCount))
	}

	return nil
}

// Join waits for every producer this batch touched to confirm delivery,
// consulting each storage's ignore_errors opt-out. It returns the first
// non-ignorable failure; on success the caller may safely invoke the
// consumer's commit callback.
func (c *Collector) Join(ctx context.Context, deadline time.Duration) error {
	joinCtx := ctx
	var cancel context.CancelFunc
	if deadline > 0 {
		joinCtx, cancel = context.WithTimeout(ctx, deadline)
		defer cancel()
	}

	var firstErr error
	for _, spec := range c.storages {
		if spec.Replacements == nil || spec.Replacements.Empty() {
			continue
		}
		if err := spec.Replacements.Join(joinCtx); err != nil {
			if spec.IgnoreWriteErrors {
				ignorableWriteFailuresTotal.WithLabelValues(string(spec.Key)).Inc()
				slog.Warn("ignoring replacement delivery failure for storage marked ignore_errors", "storage", spec.Key, "error", err)
				continue
			}
			if firstErr == nil {
				firstErr = fmt.Errorf("collector: replacement join failed for storage %q: %w", spec.Key, err)
			}
		}
	}

	if c.commitLog != nil {
		if err := c.commitLog.Join(joinCtx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("collector: commit-log join failed: %w", err)
		}
	}

	return firstErr
}
