// Package transform implements the decode-once, dispatch-per-storage
// stage: it turns a fanned-out MultiStoragePayload into a ProcessedFanout
// (or an *dlq.InvalidMessage signal) by running each destination's
// MessageProcessor and encoding its result to wire bytes.
package transform

import (
	"context"
	"log/slog"

	"github.com/getsentry/snuba-consumer/internal/dlq"
	"github.com/getsentry/snuba-consumer/internal/encode"
	"github.com/getsentry/snuba-consumer/internal/model"
	"github.com/getsentry/snuba-consumer/internal/processor"
	"github.com/getsentry/snuba-consumer/internal/runtimeconfig"
	"github.com/getsentry/snuba-consumer/internal/schema"
)

// Destination binds a StorageKey to the processor that handles it and the
// columns its VALUES encoder projects onto (used only for aggregate
// results; ordinary inserts always use the JSON row encoder).
type Destination struct {
	Key             model.StorageKey
	Processor       processor.MessageProcessor
	WritableColumns []string
}

// Input is one fanned-out record ready for transform.
type Input struct {
	Payload model.MultiStoragePayload
}

// Result is the outcome of transforming one Input: exactly one of Fanout
// or Invalid is non-nil. EnableDLQ being false turns a would-be Invalid
// into a dropped record instead (Fanout is empty, Invalid is nil).
type Result struct {
	Fanout  model.ProcessedFanout
	Invalid *dlq.InvalidMessage
}

// Transformer holds everything the transform stage needs beyond the pure
// per-record algorithm: the schema codec registry, the runtime-config
// store driving validation sampling, and the worker pool sizing.
type Transformer struct {
	Codecs   *schema.Registry
	Config   *runtimeconfig.Store
	Workers  int
	EnableDLQ func(topic string) bool
}

// Transform decodes payload.Raw once and dispatches it to every destination
// in destinations, building one ProcessedEntry per StorageKey. A decode
// failure produces a Result with Invalid set (or, if DLQ is disabled for
// the topic, an empty Fanout so the record is dropped but still progresses
// offsets).
func (t *Transformer) Transform(ctx context.Context, in Input, destinations []Destination) Result {
	payload := in.Payload
	raw := payload.Raw

	codec := t.Codecs.Get(raw.Topic)
	decoded, err := codec.Decode(raw.Value)
	if err != nil {
		return t.decodeFailure(raw, dlq.ReasonDecodeFailed, err)
	}

	if rate := t.Config.ValidateSchemaSampleRate(ctx, raw.Topic); runtimeconfig.Sample(rate) {
		if verr := codec.Validate(decoded); verr != nil {
			logRate := t.Config.LogValidateSchemaSampleRate(ctx, raw.Topic)
			if runtimeconfig.Sample(logRate) {
				slog.Warn("schema validation failed", "topic", raw.Topic, "partition", raw.Metadata.Partition, "offset", raw.Metadata.Offset, "error", verr)
			}
			validationFailuresTotal.WithLabelValues(raw.Topic).Inc()
		}
	}

	byKey := make(map[model.StorageKey]Destination, len(destinations))
	for _, d := range destinations {
		byKey[d.Key] = d
	}

	fanout := make(model.ProcessedFanout, 0, len(payload.StorageKeys))
	for _, key := range payload.StorageKeys {
		dest, ok := byKey[key]
		if !ok {
			continue
		}

		result, err := dest.Processor.ProcessMessage(decoded, raw.Metadata)
		if err != nil {
			return t.decodeFailure(raw, dlq.ReasonProcessorFailed, err)
		}

		entry, err := encodeResult(key, result, dest.WritableColumns)
		if err != nil {
			return t.decodeFailure(raw, dlq.ReasonProcessorFailed, err)
		}
		fanout = append(fanout, entry)
	}

	return Result{Fanout: fanout}
}

func (t *Transformer) decodeFailure(raw model.RawMessage, reason string, cause error) Result {
	invalidMessagesTotal.WithLabelValues(raw.Topic, reason).Inc()

	if t.EnableDLQ != nil && t.EnableDLQ(raw.Topic) {
		return Result{Invalid: &dlq.InvalidMessage{Partition: raw.Metadata.Partition, Offset: raw.Metadata.Offset, Reason: reason, Err: cause}}
	}

	slog.Warn("dropping invalid message", "topic", raw.Topic, "partition", raw.Metadata.Partition, "offset", raw.Metadata.Offset, "reason", reason, "error", cause)
	return Result{Fanout: model.ProcessedFanout{}}
}

func encodeResult(key model.StorageKey, result model.ProcessorResult, writableColumns []string) (model.ProcessedEntry, error) {
	switch result.Kind {
	case model.ResultNone:
		return model.ProcessedEntry{StorageKey: key}, nil

	case model.ResultInsert:
		encoded, err := encode.JSONRowEncoder{}.Encode(*result.Insert)
		if err != nil {
			return model.ProcessedEntry{}, err
		}
		return model.ProcessedEntry{StorageKey: key, Encoded: &encoded}, nil

	case model.ResultAggregateInsert:
		enc := encode.ValuesRowEncoder{Columns: writableColumns}
		encoded, err := enc.Encode(model.InsertBatch{Rows: result.Aggregate.Rows, OriginTimestamp: result.Aggregate.OriginTimestamp})
		if err != nil {
			return model.ProcessedEntry{}, err
		}
		return model.ProcessedEntry{StorageKey: key, Encoded: &encoded}, nil

	case model.ResultReplacement:
		return model.ProcessedEntry{StorageKey: key, Replacement: result.Replacement}, nil

	default:
		return model.ProcessedEntry{StorageKey: key}, nil
	}
}
