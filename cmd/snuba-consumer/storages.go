package main

import (
	"time"

	"github.com/getsentry/snuba-consumer/internal/model"
	"github.com/getsentry/snuba-consumer/internal/pipeline"
	"github.com/getsentry/snuba-consumer/internal/processor"
)

// passthroughRowProcessor turns a decoded JSON object into a single row
// carrying the decoded payload plus its broker metadata, the simplest
// MessageProcessor that still exercises the full pipeline end to end. Real
// deployments register their own domain-specific processors per storage
// instead of this one.
func passthroughRowProcessor() processor.MessageProcessor {
	return processor.MessageProcessorFunc(func(decoded any, metadata model.RecordMetadata) (model.ProcessorResult, error) {
		row, ok := decoded.(map[string]any)
		if !ok {
			return model.NoneResult(), nil
		}
		row["_partition"] = metadata.Partition
		row["_offset"] = metadata.Offset
		row["_consumed_at"] = time.Now().UTC().Format(time.RFC3339Nano)

		return model.ProcessorResult{
			Kind:   model.ResultInsert,
			Insert: &model.InsertBatch{Rows: []model.Row{row}},
		}, nil
	})
}

// buildHostStorages constructs the Go-code half of every enabled storage:
// the registry supplies data (topic, columns, flags), this supplies
// behavior (filter, processor), joined by StorageKey in pipeline.BuildWiring.
func buildHostStorages(enabled []string) []pipeline.HostStorage {
	hosts := make([]pipeline.HostStorage, 0, len(enabled))
	for _, key := range enabled {
		hosts = append(hosts, pipeline.HostStorage{
			Key:       model.StorageKey(key),
			Filter:    nil, // accepts every record; real storages supply their own PreFilter
			Processor: passthroughRowProcessor(),
		})
	}
	return hosts
}
