// Package clickhouse implements the column-store bulk-insert client: one
// blocking HTTP POST per Write call, guarded by a circuit breaker so a
// flapping column-store fails fast instead of hanging the single flush
// worker shared by every storage in a batch.
package clickhouse

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Format selects the wire encoding already produced upstream by
// internal/encode; it only changes the FORMAT clause of the INSERT query.
type Format string

const (
	FormatJSONEachRow    Format = "JSONEachRow"
	FormatTabSeparated   Format = "TabSeparated"
)

// Config describes one destination table's bulk-insert endpoint.
type Config struct {
	BaseURL  string
	Database string
	Table    string
	Format   Format
	SliceID  string // optional shard selector, forwarded as a query parameter when set

	// HTTPClient defaults to a client with a generous timeout; override in
	// tests or to tune connection pooling.
	HTTPClient *http.Client

	// BreakerName identifies this writer's circuit breaker in logs/metrics.
	BreakerName string
}

// BatchWriter issues one blocking POST per Write, sending the rows,
// concatenated into one in-memory buffer, as the request body. It implements collector.BatchWriter by structural typing
// (no import of internal/collector here, to keep the dependency direction
// pointing from collector outward to its plug-ins, not the reverse).
type BatchWriter struct {
	cfg     Config
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[struct{}]
}

func New(cfg Config) *BatchWriter {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Format == "" {
		cfg.Format = FormatJSONEachRow
	}
	name := cfg.BreakerName
	if name == "" {
		name = fmt.Sprintf("clickhouse-%s", cfg.Table)
	}

	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:    name,
		Timeout: 30 * time.Second,
		OnStateChange: func(bname string, from gobreaker.State, to gobreaker.State) {
			// intentionally no import of slog here: callers pass their own
			// logger context via the returned error, keeping this package
			// free of process-wide logging dependencies.
		},
	})

	return &BatchWriter{cfg: cfg, client: cfg.HTTPClient, breaker: breaker}
}

// Write concatenates rows and issues exactly one INSERT against the
// column-store's bulk HTTP endpoint, with insert_distributed_sync=1 and
// load_balancing=in_order pinned as query parameters.
func (w *BatchWriter) Write(ctx context.Context, rows [][]byte) error {
	if len(rows) == 0 {
		return nil
	}

	_, err := w.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, w.doInsert(ctx, rows)
	})
	return err
}

func (w *BatchWriter) doInsert(ctx context.Context, rows [][]byte) error {
	query := fmt.Sprintf("INSERT INTO %s.%s FORMAT %s", w.cfg.Database, w.cfg.Table, w.cfg.Format)

	params := url.Values{}
	params.Set("query", query)
	params.Set("insert_distributed_sync", "1")
	params.Set("load_balancing", "in_order")
	if w.cfg.SliceID != "" {
		params.Set("slice_id", w.cfg.SliceID)
	}

	body := bytes.NewBuffer(nil)
	for _, row := range rows {
		body.Write(row)
	}

	endpoint := w.cfg.BaseURL + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return fmt.Errorf("clickhouse: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("clickhouse: insert request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("clickhouse: insert into %s.%s failed with status %d: %s", w.cfg.Database, w.cfg.Table, resp.StatusCode, string(respBody))
	}
	return nil
}
