// Package model holds the wire and in-flight types shared across the
// pipeline stages: what comes off the broker, what a processor plug-in
// returns, and what eventually reaches a storage's bulk insert endpoint.
package model

import "time"

// StorageKey interns the identifier of a destination table. It is
// comparable and hashable so it can key maps directly.
type StorageKey string

// RecordMetadata is captured from the broker frame at fan-out time and
// threaded through decode, transform, and encode unchanged.
type RecordMetadata struct {
	Partition uint32
	Offset    uint64
	Timestamp time.Time
}

// MessageHeader is a single Kafka record header.
type MessageHeader struct {
	Key   string
	Value []byte
}

// RawMessage is immutable after receipt from the broker.
type RawMessage struct {
	Topic    string
	Metadata RecordMetadata
	Key      []byte
	Value    []byte
	Headers  []MessageHeader
}

// MultiStoragePayload is produced by fan-out: StorageKeys is the subset of
// configured storages whose pre-filter did not drop this record.
type MultiStoragePayload struct {
	StorageKeys []StorageKey
	Raw         RawMessage
}

// Row is an opaque, domain-specific record ready for encoding. What keys
// it holds is entirely up to the MessageProcessor plug-in that produced it.
type Row map[string]any

// InsertBatch is the ordinary processor output: each row is encoded as one
// newline-terminated JSON object.
type InsertBatch struct {
	Rows            []Row
	OriginTimestamp *time.Time
}

// AggregateInsertBatch is the aggregate-flavored processor output: each row
// is encoded as one tab-separated VALUES tuple over the storage's writable
// columns.
type AggregateInsertBatch struct {
	Rows            []Row
	OriginTimestamp *time.Time
}

// ReplacementBatch carries mutation descriptors destined for the
// replacements topic. Key partitions the downstream consumer; Values are
// JSON-serializable payloads, one produced message per value.
type ReplacementBatch struct {
	Key    string
	Values []any
}

// EncodedBatch is the wire-ready form of an InsertBatch or
// AggregateInsertBatch: each entry in Rows is one already-encoded row,
// newline-terminated JSON or tab-separated VALUES depending on which
// encoder produced it.
type EncodedBatch struct {
	Rows            [][]byte
	OriginTimestamp *time.Time
}

// ResultKind tags which variant of the processor's sum type a
// ProcessorResult carries. Go has no native sum types, so the parallel
// transform stage switches on this instead of doing type assertions on an
// `any`.
type ResultKind int

const (
	ResultNone ResultKind = iota
	ResultInsert
	ResultAggregateInsert
	ResultReplacement
)

// ProcessorResult is what a MessageProcessor plug-in returns for one
// StorageKey: exactly one of Insert, Aggregate, or Replacement is set,
// matching Kind.
type ProcessorResult struct {
	Kind        ResultKind
	Insert      *InsertBatch
	Aggregate   *AggregateInsertBatch
	Replacement *ReplacementBatch
}

// NoneResult is the canonical "drop this record for this storage" result.
func NoneResult() ProcessorResult {
	return ProcessorResult{Kind: ResultNone}
}

// ProcessedEntry is one (StorageKey, result) tuple produced by the parallel
// transform for a single input record. Encoded is populated for
// ResultInsert/ResultAggregateInsert, Replacement for ResultReplacement;
// both are nil when Kind is ResultNone.
type ProcessedEntry struct {
	StorageKey  StorageKey
	Encoded     *EncodedBatch
	Replacement *ReplacementBatch
}

// ProcessedFanout is the parallel transform's output for one input record:
// one ProcessedEntry per StorageKey the record fanned out to.
type ProcessedFanout []ProcessedEntry

// PartitionOffset is the highest offset observed for a partition within a
// batch, and the broker timestamp of that record.
type PartitionOffset struct {
	Offset    uint64
	Timestamp time.Time
}
