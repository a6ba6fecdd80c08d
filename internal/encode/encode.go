// Package encode turns a model.InsertBatch's in-memory Rows into the
// exact bytes the column-store HTTP endpoint expects on the wire, one
// encoder per supported wire format.
package encode

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/getsentry/snuba-consumer/internal/model"
)

// RowEncoder turns a batch of rows into an EncodedBatch ready to hand to a
// BatchWriter. Implementations must not mutate batch.
type RowEncoder interface {
	Encode(batch model.InsertBatch) (model.EncodedBatch, error)
}

// JSONRowEncoder emits one JSON object per row, newline-terminated, for use
// with ClickHouse's JSONEachRow input format.
type JSONRowEncoder struct{}

func (JSONRowEncoder) Encode(batch model.InsertBatch) (model.EncodedBatch, error) {
	rows := make([][]byte, 0, len(batch.Rows))
	for i, row := range batch.Rows {
		buf, err := json.Marshal(row)
		if err != nil {
			return model.EncodedBatch{}, fmt.Errorf("encode: row %d: %w", i, err)
		}
		buf = append(buf, '\n')
		rows = append(rows, buf)
	}
	return model.EncodedBatch{Rows: rows, OriginTimestamp: batch.OriginTimestamp}, nil
}

// ValuesRowEncoder projects each row onto a fixed, ordered set of writable
// columns and emits a tab-separated tuple per row, for ClickHouse's TSV
// input format. A row missing a column encodes it as an empty field rather
// than failing the whole batch, matching the original's tolerant handling
// of storages whose processors don't populate every optional column.
type ValuesRowEncoder struct {
	Columns []string
}

func (e ValuesRowEncoder) Encode(batch model.InsertBatch) (model.EncodedBatch, error) {
	rows := make([][]byte, 0, len(batch.Rows))
	for _, row := range batch.Rows {
		var buf bytes.Buffer
		for i, col := range e.Columns {
			if i > 0 {
				buf.WriteByte('\t')
			}
			buf.WriteString(tsvField(row[col]))
		}
		buf.WriteByte('\n')
		rows = append(rows, buf.Bytes())
	}
	return model.EncodedBatch{Rows: rows, OriginTimestamp: batch.OriginTimestamp}, nil
}

func tsvField(v any) string {
	if v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return escapeTSV(t)
	case []byte:
		return escapeTSV(string(t))
	case bool:
		if t {
			return "1"
		}
		return "0"
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	default:
		buf, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return escapeTSV(string(buf))
	}
}

func escapeTSV(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\t", "\\t")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}
