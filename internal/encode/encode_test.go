package encode

import (
	"strings"
	"testing"

	"github.com/getsentry/snuba-consumer/internal/model"
)

func TestJSONRowEncoderEncode(t *testing.T) {
	batch := model.InsertBatch{
		Rows: []model.Row{
			{"event_id": "abc", "retention_days": 90},
		},
	}
	out, err := JSONRowEncoder{}.Encode(batch)
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	if len(out.Rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(out.Rows))
	}
	if !strings.Contains(string(out.Rows[0]), `"event_id":"abc"`) {
		t.Errorf("unexpected row encoding: %s", out.Rows[0])
	}
	if out.Rows[0][len(out.Rows[0])-1] != '\n' {
		t.Errorf("row not newline-terminated: %q", out.Rows[0])
	}
}

func TestValuesRowEncoderMissingColumn(t *testing.T) {
	enc := ValuesRowEncoder{Columns: []string{"event_id", "message"}}
	batch := model.InsertBatch{
		Rows: []model.Row{{"event_id": "abc"}},
	}
	out, err := enc.Encode(batch)
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	want := "abc\t\n"
	if string(out.Rows[0]) != want {
		t.Errorf("Encode() = %q, want %q", out.Rows[0], want)
	}
}

func TestValuesRowEncoderEscaping(t *testing.T) {
	enc := ValuesRowEncoder{Columns: []string{"message"}}
	batch := model.InsertBatch{
		Rows: []model.Row{{"message": "a\tb\nc"}},
	}
	out, err := enc.Encode(batch)
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	want := "a\\tb\\nc\n"
	if string(out.Rows[0]) != want {
		t.Errorf("Encode() = %q, want %q", out.Rows[0], want)
	}
}
