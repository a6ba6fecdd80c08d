package pipeline

import (
	"fmt"

	"github.com/getsentry/snuba-consumer/internal/clickhouse"
	"github.com/getsentry/snuba-consumer/internal/collector"
	"github.com/getsentry/snuba-consumer/internal/fanout"
	"github.com/getsentry/snuba-consumer/internal/model"
	"github.com/getsentry/snuba-consumer/internal/processor"
	"github.com/getsentry/snuba-consumer/internal/registry"
	"github.com/getsentry/snuba-consumer/internal/transform"
)

// HostStorage is the Go code a host binary supplies for one StorageKey:
// the registry only carries data (topic, columns, flags), never
// behavior, resolving the "cyclic module imports" design note the way
// spec.md proposes.
type HostStorage struct {
	Key       model.StorageKey
	Filter    processor.PreFilter
	Processor processor.MessageProcessor
}

// ClickHouseConfig parameterizes the bulk-insert endpoint shared by every
// storage (single cluster, one database per deployment).
type ClickHouseConfig struct {
	BaseURL  string
	Database string
	SliceID  string
}

// BuildWiring joins each registry.Entry with its host-supplied PreFilter
// and MessageProcessor, producing everything fanout/transform/collector
// need for the configured set of storages.
type Wiring struct {
	Destinations     []fanout.Destination
	TransformTargets []transform.Destination
	StorageSpecs     func(replProducer collector.Producer) []*collector.StorageSpec
}

func BuildWiring(reg *registry.StorageRegistry, hosts []HostStorage, ch ClickHouseConfig) (*Wiring, error) {
	byKey := make(map[model.StorageKey]HostStorage, len(hosts))
	for _, h := range hosts {
		byKey[h.Key] = h
	}

	entries := reg.All()
	if len(entries) == 0 {
		return nil, fmt.Errorf("pipeline: storage registry has no enabled storages")
	}

	var destinations []fanout.Destination
	var transformTargets []transform.Destination
	type resolved struct {
		entry registry.Entry
		host  HostStorage
	}
	var resolvedEntries []resolved

	for _, entry := range entries {
		host, ok := byKey[entry.Key]
		if !ok {
			return nil, fmt.Errorf("pipeline: storage %q is registered but has no host-supplied processor", entry.Key)
		}
		destinations = append(destinations, fanout.Destination{Key: entry.Key, Filter: host.Filter})
		transformTargets = append(transformTargets, transform.Destination{
			Key:             entry.Key,
			Processor:       host.Processor,
			WritableColumns: entry.WritableColumns,
		})
		resolvedEntries = append(resolvedEntries, resolved{entry: entry, host: host})
	}

	storageSpecsFn := func(replProducer collector.Producer) []*collector.StorageSpec {
		specs := make([]*collector.StorageSpec, 0, len(resolvedEntries))
		for _, r := range resolvedEntries {
			writer := clickhouse.New(clickhouse.Config{
				BaseURL:  ch.BaseURL,
				Database: ch.Database,
				Table:    string(r.entry.Key),
				Format:   clickhouse.Format(r.entry.WriteFormat),
				SliceID:  ch.SliceID,
			})
			spec := &collector.StorageSpec{
				Key:               r.entry.Key,
				Insert:            collector.NewInsertWriter(r.entry.Key, writer),
				IgnoreWriteErrors: r.entry.IgnoreWriteErrors,
			}
			if r.entry.SupportsReplacements && replProducer != nil {
				spec.Replacements = collector.NewReplacementWriter(r.entry.ReplacementsTopic, replProducer)
			}
			specs = append(specs, spec)
		}
		return specs
	}

	return &Wiring{
		Destinations:     destinations,
		TransformTargets: transformTargets,
		StorageSpecs:     storageSpecsFn,
	}, nil
}
