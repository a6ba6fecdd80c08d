package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/getsentry/snuba-consumer/internal/model"
)

// commitLogRecord is the codec-encoded payload published once per touched
// partition per batch.
type commitLogRecord struct {
	GroupID   string `json:"group_id"`
	Partition uint32 `json:"partition"`
	Offset    uint64 `json:"offset"`
	Timestamp int64  `json:"timestamp_ms"`
}

// CommitLogProducer republishes the batch's offsets_to_commit to a
// coordination topic, one record per touched partition. Close() produces;
// Join() flushes, per Design Note §9(a) (flushed once, not also at close).
type CommitLogProducer struct {
	Topic    string
	GroupID  string
	Producer Producer

	failed  atomic.Bool
	lastErr atomic.Value
}

func NewCommitLogProducer(topic, groupID string, producer Producer) *CommitLogProducer {
	return &CommitLogProducer{Topic: topic, GroupID: groupID, Producer: producer}
}

// Close produces one record per entry in offsets. It does not flush.
func (c *CommitLogProducer) Close(ctx context.Context, offsets map[uint32]model.PartitionOffset) {
	for partition, po := range offsets {
		rec := commitLogRecord{
			GroupID:   c.GroupID,
			Partition: partition,
			Offset:    po.Offset,
			Timestamp: po.Timestamp.UnixMilli(),
		}
		payload, err := json.Marshal(rec)
		if err != nil {
			c.fail(fmt.Errorf("commitlog: marshal: %w", err))
			continue
		}
		kr := &kgo.Record{Topic: c.Topic, Value: payload}
		c.Producer.Produce(ctx, kr, func(_ *kgo.Record, err error) {
			if err != nil {
				c.fail(fmt.Errorf("commitlog: produce failed: %w", err))
			}
		})
	}
}

func (c *CommitLogProducer) fail(err error) {
	c.failed.Store(true)
	c.lastErr.Store(err)
}

// Join flushes the producer, per §9(a): the commit-log producer is flushed
// once, here, rather than also at close().
func (c *CommitLogProducer) Join(ctx context.Context) error {
	if err := c.Producer.Flush(ctx); err != nil {
		return fmt.Errorf("commitlog: flush: %w", err)
	}
	if c.failed.Load() {
		if err, ok := c.lastErr.Load().(error); ok {
			return err
		}
		return fmt.Errorf("commitlog: delivery failed")
	}
	return nil
}
