package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/sensor-reading-engine/internal/domain"
	"github.com/couchcryptid/sensor-reading-engine/internal/observability"
	"github.com/jonboulle/clockwork"
)

// RegistryReloader periodically refreshes the reading registry from its store.
// Every hook runs after a successful reload, so caches derived from the old
// definitions can be dropped.
type RegistryReloader struct {
	registry *domain.Registry
	store    domain.ReadingDefinitionStore
	interval time.Duration
	clock    clockwork.Clock
	hooks    []func()
	logger   *slog.Logger
	metrics  *observability.Metrics
}

func NewRegistryReloader(
	registry *domain.Registry,
	store domain.ReadingDefinitionStore,
	interval time.Duration,
	clock clockwork.Clock,
	logger *slog.Logger,
	metrics *observability.Metrics,
	hooks ...func(),
) *RegistryReloader {
	return &RegistryReloader{
		registry: registry,
		store:    store,
		interval: interval,
		clock:    clock,
		hooks:    hooks,
		logger:   logger,
		metrics:  metrics,
	}
}

// Reload fetches the definitions once. On failure the previous snapshot stays
// in use.
func (r *RegistryReloader) Reload(ctx context.Context) error {
	version, err := r.registry.Reload(ctx, r.store)
	if err != nil {
		r.metrics.RegistryReloads.WithLabelValues("error").Inc()
		r.logger.Error("registry reload failed", "error", err, "version", r.registry.Version())
		return err
	}

	r.metrics.RegistryReloads.WithLabelValues("success").Inc()
	r.metrics.RegistryVersion.Set(float64(version))
	for _, hook := range r.hooks {
		hook()
	}
	r.logger.Info("registry reloaded", "version", version, "readings", r.registry.Snapshot().Len())
	return nil
}

// Run reloads on every interval tick until ctx is cancelled. A zero interval
// disables periodic reloads.
func (r *RegistryReloader) Run(ctx context.Context) {
	if r.interval <= 0 {
		r.logger.Info("periodic registry reload disabled")
		return
	}

	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			_ = r.Reload(ctx)
		}
	}
}
