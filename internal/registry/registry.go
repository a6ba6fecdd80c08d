// Package registry resolves StorageKeys to their catalog metadata
// (destination topic, writable columns, replacement/ignore-error flags)
// from Postgres instead of import-time wiring. This breaks the cyclic
// module imports the distilled design notes call out: a processor is
// looked up by key against this registry, never by importing its
// defining package.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/getsentry/snuba-consumer/internal/model"
)

// Entry is one row of the storage_specs catalog: everything about a
// destination storage that can be expressed as data rather than code. The
// PreFilter and MessageProcessor implementations themselves are Go code
// supplied by the host binary and joined against an Entry by StorageKey at
// wiring time (see pipeline.BuildWiring).
type Entry struct {
	Key                  model.StorageKey
	Topic                string
	WritableColumns      []string
	SupportsReplacements bool
	ReplacementsTopic    string
	IgnoreWriteErrors    bool
	Enabled              bool

	// WriteFormat pins the column-store FORMAT clause to the encoder this
	// storage's processor actually produces: "JSONEachRow" for ordinary
	// ResultInsert rows, "TabSeparated" for ResultAggregateInsert rows.
	// Mismatching the two silently corrupts every insert, so this is data
	// on the same Entry as WritableColumns rather than a host-side default.
	WriteFormat string
}

const DefaultWriteFormat = "JSONEachRow"

// StorageRegistry caches the storage_specs catalog in memory and refreshes
// it on a polling interval. pipeline.BuildWiring reads it once, at
// startup, so a running consumer's set of destination storages changes
// only when the process restarts.
type StorageRegistry struct {
	db           *pgxpool.Pool
	mu           sync.RWMutex
	byKey        map[model.StorageKey]Entry
	pollInterval time.Duration
}

func New(db *pgxpool.Pool, pollInterval time.Duration) *StorageRegistry {
	if pollInterval <= 0 {
		pollInterval = time.Minute
	}
	return &StorageRegistry{
		db:           db,
		byKey:        make(map[model.StorageKey]Entry),
		pollInterval: pollInterval,
	}
}

// Load performs a synchronous fetch-and-swap of the catalog. Call it once
// at startup before the pipeline begins consuming.
func (r *StorageRegistry) Load(ctx context.Context) error {
	entries, err := r.fetch(ctx)
	if err != nil {
		return fmt.Errorf("registry: initial load: %w", err)
	}
	r.swap(entries)
	return nil
}

// Watch polls the catalog until ctx is cancelled. Run it in its own
// goroutine after Load has succeeded at least once.
func (r *StorageRegistry) Watch(ctx context.Context) {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			entries, err := r.fetch(ctx)
			if err != nil {
				slog.Warn("storage registry refresh failed, keeping previous catalog", "error", err)
				continue
			}
			r.swap(entries)
		}
	}
}

func (r *StorageRegistry) fetch(ctx context.Context) (map[model.StorageKey]Entry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT storage_key, topic, writable_columns, supports_replacements,
		       replacements_topic, ignore_write_errors, enabled, write_format
		FROM storage_specs
		WHERE enabled = true
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[model.StorageKey]Entry)
	for rows.Next() {
		var (
			key               string
			topic             string
			writableColumns   []string
			supportsReplace   bool
			replacementsTopic *string
			ignoreWriteErrors bool
			enabled           bool
			writeFormat       string
		)
		if err := rows.Scan(&key, &topic, &writableColumns, &supportsReplace, &replacementsTopic, &ignoreWriteErrors, &enabled, &writeFormat); err != nil {
			return nil, err
		}
		if writeFormat == "" {
			writeFormat = DefaultWriteFormat
		}
		entry := Entry{
			Key:                  model.StorageKey(key),
			Topic:                topic,
			WritableColumns:      writableColumns,
			SupportsReplacements: supportsReplace,
			IgnoreWriteErrors:    ignoreWriteErrors,
			Enabled:              enabled,
			WriteFormat:          writeFormat,
		}
		if replacementsTopic != nil {
			entry.ReplacementsTopic = *replacementsTopic
		}
		out[entry.Key] = entry
	}
	return out, rows.Err()
}

func (r *StorageRegistry) swap(entries map[model.StorageKey]Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byKey = entries
}

func (r *StorageRegistry) Get(key model.StorageKey) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.byKey[key]
	return entry, ok
}

// All returns a snapshot of every enabled storage, ordered by key for
// deterministic iteration (mirroring spec.md's "ordered list of
// destination StorageKeys" configuration option).
func (r *StorageRegistry) All() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, len(r.byKey))
	for _, entry := range r.byKey {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
