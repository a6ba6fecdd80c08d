package pipeline

import (
	"testing"

	"github.com/getsentry/snuba-consumer/internal/model"
	"github.com/getsentry/snuba-consumer/internal/processor"
	"github.com/getsentry/snuba-consumer/internal/registry"
)

func TestBuildWiringFailsOnEmptyRegistry(t *testing.T) {
	reg := registry.New(nil, 0)
	// We can't call reg.Load without a real DB; BuildWiring operates on
	// whatever All() currently holds, which is empty for a freshly
	// constructed registry, so it should fail with "no enabled storages".
	_, err := BuildWiring(reg, nil, ClickHouseConfig{})
	if err == nil {
		t.Fatal("expected an error when the registry has no enabled storages")
	}
}

func TestHostStorageKeepsKey(t *testing.T) {
	host := HostStorage{
		Key:       "events_raw",
		Filter:    processor.NoopFilter{},
		Processor: processor.MessageProcessorFunc(func(any, model.RecordMetadata) (model.ProcessorResult, error) { return model.NoneResult(), nil }),
	}
	if host.Key != "events_raw" {
		t.Errorf("unexpected host key: %s", host.Key)
	}
}
