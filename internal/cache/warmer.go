package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"transitcat/internal/domain"
)

// Store is what the warmer needs from a cache backend
type Store interface {
	CachedVersion(ctx context.Context) (string, error)
	SetVersion(ctx context.Context, version string) error
	SetBusInfo(ctx context.Context, version string, info domain.BusInfo, ttl time.Duration) error
	PurgeVersion(ctx context.Context, version string) (int, error)
}

type BusLister interface {
	BusNames() []string
}

type BusInfoSource interface {
	GetBusInfo(name string) (domain.BusInfo, bool)
}

// CacheWarmer precomputes the statistics of every bus for one catalogue version.
// Warms run one at a time and a warm superseded by a newer version is skipped.
type CacheWarmer struct {
	cache  Store
	buses  BusLister
	source BusInfoSource
	ttl    time.Duration
	logger *slog.Logger

	mu       sync.Mutex
	latestMu sync.Mutex
	latest   string
}

func NewCacheWarmer(cache Store, buses BusLister, source BusInfoSource, ttl time.Duration, logger *slog.Logger) *CacheWarmer {
	return &CacheWarmer{
		cache:  cache,
		buses:  buses,
		source: source,
		ttl:    ttl,
		logger: logger.With("component", "cache_warmer"),
	}
}

func (w *CacheWarmer) setLatest(version string) {
	w.latestMu.Lock()
	w.latest = version
	w.latestMu.Unlock()
}

func (w *CacheWarmer) superseded(version string) bool {
	w.latestMu.Lock()
	defer w.latestMu.Unlock()
	return w.latest != version
}

// WarmAll stores the statistics of every bus under version, then drops the
// entries of the version cached before it. It returns without touching the
// cache when a later call has asked for a newer version in the meantime.
func (w *CacheWarmer) WarmAll(ctx context.Context, version string) error {
	w.setLatest(version)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.superseded(version) {
		w.logger.Debug("cache warming superseded", "version", version)
		return nil
	}

	start := time.Now()
	w.logger.Info("starting cache warming", "version", version)

	previous, err := w.cache.CachedVersion(ctx)
	if err != nil {
		return fmt.Errorf("read cached version: %w", err)
	}

	names := w.buses.BusNames()
	warmed := 0
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}

		info, ok := w.source.GetBusInfo(name)
		if !ok {
			continue
		}
		if err := w.cache.SetBusInfo(ctx, version, info, w.ttl); err != nil {
			w.logger.Debug("failed to cache bus info", "bus", name, "error", err)
			continue
		}
		warmed++
	}

	if err := w.cache.SetVersion(ctx, version); err != nil {
		return fmt.Errorf("store cached version: %w", err)
	}

	if previous != "" && previous != version {
		deleted, err := w.cache.PurgeVersion(ctx, previous)
		if err != nil {
			w.logger.Warn("failed to purge previous version", "version", previous, "error", err)
		} else {
			w.logger.Info("purged previous version", "version", previous, "keys", deleted)
		}
	}

	w.logger.Info("cache warming completed",
		"buses_warmed", warmed,
		"total_buses", len(names),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
