package transform

import (
	"context"
	"fmt"
	"testing"

	"github.com/getsentry/snuba-consumer/internal/model"
	"github.com/getsentry/snuba-consumer/internal/processor"
	"github.com/getsentry/snuba-consumer/internal/runtimeconfig"
	"github.com/getsentry/snuba-consumer/internal/schema"
)

func passthroughProcessor(row model.Row) processor.MessageProcessor {
	return processor.MessageProcessorFunc(func(decoded any, metadata model.RecordMetadata) (model.ProcessorResult, error) {
		return model.ProcessorResult{Kind: model.ResultInsert, Insert: &model.InsertBatch{Rows: []model.Row{row}}}, nil
	})
}

func newTestTransformer() *Transformer {
	return &Transformer{
		Codecs: schema.NewRegistry(nil),
		Config: runtimeconfig.New(nil),
	}
}

func TestTransformFanoutTotality(t *testing.T) {
	tr := newTestTransformer()
	destinations := []Destination{
		{Key: "storage_x", Processor: passthroughProcessor(model.Row{"a": 1})},
	}
	raw := model.RawMessage{Topic: "events", Value: []byte(`{"a":1}`)}
	payload := model.MultiStoragePayload{StorageKeys: []model.StorageKey{"storage_x"}, Raw: raw}

	result := tr.Transform(context.Background(), Input{Payload: payload}, destinations)

	if result.Invalid != nil {
		t.Fatalf("unexpected invalid result: %v", result.Invalid)
	}
	if len(result.Fanout) != 1 || result.Fanout[0].StorageKey != "storage_x" {
		t.Errorf("Fanout = %v, want one entry for storage_x", result.Fanout)
	}
	if result.Fanout[0].Encoded == nil || len(result.Fanout[0].Encoded.Rows) != 1 {
		t.Errorf("expected one encoded row, got %+v", result.Fanout[0].Encoded)
	}
}

func TestTransformDecodeFailureWithoutDLQDrops(t *testing.T) {
	tr := newTestTransformer()
	raw := model.RawMessage{Topic: "events", Value: []byte(`not json`)}
	payload := model.MultiStoragePayload{StorageKeys: []model.StorageKey{"storage_x"}, Raw: raw}

	result := tr.Transform(context.Background(), Input{Payload: payload}, nil)

	if result.Invalid != nil {
		t.Errorf("expected no DLQ signal when EnableDLQ is unset, got %v", result.Invalid)
	}
	if len(result.Fanout) != 0 {
		t.Errorf("expected empty fanout on dropped decode failure, got %v", result.Fanout)
	}
}

func TestTransformDecodeFailureWithDLQSignals(t *testing.T) {
	tr := newTestTransformer()
	tr.EnableDLQ = func(topic string) bool { return true }
	raw := model.RawMessage{Topic: "events", Value: []byte(`not json`), Metadata: model.RecordMetadata{Partition: 0, Offset: 7}}
	payload := model.MultiStoragePayload{StorageKeys: []model.StorageKey{"storage_x"}, Raw: raw}

	result := tr.Transform(context.Background(), Input{Payload: payload}, nil)

	if result.Invalid == nil {
		t.Fatal("expected a DLQ signal")
	}
	if result.Invalid.Offset != 7 {
		t.Errorf("Invalid.Offset = %d, want 7", result.Invalid.Offset)
	}
}

func TestRunAllPreservesOrderWithWorkerPool(t *testing.T) {
	tr := newTestTransformer()
	tr.Workers = 4

	var inputs []Input
	var destinations []Destination
	for i := 0; i < 20; i++ {
		key := model.StorageKey(fmt.Sprintf("storage_%d", i))
		destinations = append(destinations, Destination{Key: key, Processor: passthroughProcessor(model.Row{"i": i})})
		inputs = append(inputs, Input{Payload: model.MultiStoragePayload{
			StorageKeys: []model.StorageKey{key},
			Raw:         model.RawMessage{Topic: "events", Value: []byte(fmt.Sprintf(`{"i":%d}`, i))},
		}})
	}

	results := tr.RunAll(context.Background(), inputs, destinations)

	for i, r := range results {
		want := model.StorageKey(fmt.Sprintf("storage_%d", i))
		if len(r.Fanout) != 1 || r.Fanout[0].StorageKey != want {
			t.Errorf("results[%d] = %v, want storage key %s", i, r.Fanout, want)
		}
	}
}
