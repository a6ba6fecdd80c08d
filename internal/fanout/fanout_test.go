package fanout

import (
	"testing"

	"github.com/getsentry/snuba-consumer/internal/model"
)

func TestTagFiltersByDestination(t *testing.T) {
	raw := model.RawMessage{
		Headers: []model.MessageHeader{{Key: "domain", Value: []byte("events")}},
	}
	destinations := []Destination{
		{Key: "events_raw", Filter: HeaderMatchFilter{Name: "domain", Value: []byte("events")}},
		{Key: "transactions_raw", Filter: HeaderMatchFilter{Name: "domain", Value: []byte("transactions")}},
	}

	got := Tag(raw, destinations)

	if len(got.StorageKeys) != 1 || got.StorageKeys[0] != "events_raw" {
		t.Errorf("Tag() keys = %v, want [events_raw]", got.StorageKeys)
	}
}

func TestTagEmptySurvivingSetStillReturnsNonNil(t *testing.T) {
	raw := model.RawMessage{}
	destinations := []Destination{
		{Key: "events_raw", Filter: HeaderMatchFilter{Name: "domain", Value: []byte("events")}},
	}

	got := Tag(raw, destinations)

	if got.StorageKeys == nil {
		t.Fatal("Tag() returned nil StorageKeys, want empty non-nil slice")
	}
	if len(got.StorageKeys) != 0 {
		t.Errorf("Tag() keys = %v, want empty", got.StorageKeys)
	}
}

func TestTagNilFilterAcceptsAll(t *testing.T) {
	destinations := []Destination{{Key: "events_raw", Filter: nil}}
	got := Tag(model.RawMessage{}, destinations)
	if len(got.StorageKeys) != 1 {
		t.Errorf("Tag() keys = %v, want [events_raw]", got.StorageKeys)
	}
}

func TestHeaderMatchFilterMissingHeaderDrops(t *testing.T) {
	f := HeaderMatchFilter{Name: "domain", Value: []byte("events")}
	if !f.ShouldDrop(model.RawMessage{}) {
		t.Error("ShouldDrop() = false, want true for missing header")
	}
}
