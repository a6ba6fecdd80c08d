// Package fanout applies each destination storage's cheap, pre-decode
// predicate to a raw record and tags it with the set of storages that
// accepted it, before any JSON work happens.
package fanout

import (
	"bytes"

	"github.com/getsentry/snuba-consumer/internal/model"
	"github.com/getsentry/snuba-consumer/internal/processor"
)

// Destination pairs a StorageKey with the filter that gates it.
type Destination struct {
	Key    model.StorageKey
	Filter processor.PreFilter
}

// Tag computes the subset of destinations whose filter does not drop raw,
// in configured order. A record accepted by no destination still returns
// an empty, non-nil slice — callers MUST still route it through the
// Collector so its offset advances commit progress.
func Tag(raw model.RawMessage, destinations []Destination) model.MultiStoragePayload {
	keys := make([]model.StorageKey, 0, len(destinations))
	for _, d := range destinations {
		if d.Filter == nil {
			keys = append(keys, d.Key)
			continue
		}
		if !d.Filter.ShouldDrop(raw) {
			keys = append(keys, d.Key)
		}
	}
	return model.MultiStoragePayload{StorageKeys: keys, Raw: raw}
}

// HeaderMatchFilter drops any record whose header named Name is absent, or
// present but not equal to Value. It never inspects the payload body,
// matching the pre-filter contract's "no decode" requirement.
type HeaderMatchFilter struct {
	Name  string
	Value []byte
}

func (f HeaderMatchFilter) ShouldDrop(raw model.RawMessage) bool {
	for _, h := range raw.Headers {
		if h.Key == f.Name {
			return !bytes.Equal(h.Value, f.Value)
		}
	}
	return true
}
