// Package pipeline wires internal/fanout, internal/transform,
// internal/batch, and internal/collector into the running consumer loop:
// poll the broker, tag, transform, reduce, and advance offsets once a
// batch has durably landed.
package pipeline

import (
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/getsentry/snuba-consumer/internal/registry"
	"github.com/getsentry/snuba-consumer/internal/runtimeconfig"
)

// Context is the explicit dependency bag passed to NewConsumer, replacing the process-wide singletons
// (metrics client, state store) the distilled design notes call out.
// Nothing in internal/* outside this struct reaches for a package-level
// mutable global, except prometheus's default registry, which every
// promauto call in this repository (and the teacher's) relies on.
type Context struct {
	Metrics  *prometheus.Registry
	Config   *runtimeconfig.Store
	Registry *registry.StorageRegistry
	DB       *pgxpool.Pool

	// Now defaults to time.Now. No component in this repository reads it;
	// the collector and DLQ producer call time.Now directly.
	Now func() time.Time
}

func NewContext(cfg *runtimeconfig.Store, reg *registry.StorageRegistry, db *pgxpool.Pool) *Context {
	return &Context{
		Metrics:  prometheus.DefaultRegisterer.(*prometheus.Registry),
		Config:   cfg,
		Registry: reg,
		DB:       db,
		Now:      time.Now,
	}
}
