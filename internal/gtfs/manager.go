package gtfs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrNotConfigured is returned by Refresh when no feed URL is set. It is a
// distinct condition from a transient transport failure: retrying will not
// help until configuration changes.
var ErrNotConfigured = errors.New("no GTFS feed URL configured")

const defaultFeedMaxAge = 24 * time.Hour

// ManagerConfig configures a feed Manager.
type ManagerConfig struct {
	// URL of the GTFS zip archive. May be empty when the device runs
	// purely off a provisioned bundle.
	URL string
	// TargetStops, when non-empty, prunes each freshly parsed feed to
	// the dependency closure of these stops before publishing it.
	TargetStops []string
	// BundlePath, when non-empty, persists the parsed (and possibly
	// pruned) store across restarts.
	BundlePath string
	// MaxAge is how old a store may grow before NeedsRefresh reports
	// true. Zero means 24 hours.
	MaxAge time.Duration
}

// Manager owns the current feed Store and replaces it wholesale on each
// successful refresh. Readers always observe either the previous complete
// snapshot or the new one, never a partially built store.
type Manager struct {
	cfg        ManagerConfig
	downloader *Downloader
	logger     *slog.Logger
	now        func() time.Time

	refreshing atomic.Bool

	mu          sync.RWMutex
	store       *Store
	lastRefresh time.Time
	etag        string
}

// NewManager creates a Manager and, when a bundle path is configured,
// seeds the store from the persisted bundle so the device can serve
// arrivals before its first download completes.
func NewManager(cfg ManagerConfig, logger *slog.Logger) *Manager {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = defaultFeedMaxAge
	}
	m := &Manager{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
	if cfg.URL != "" {
		m.downloader = NewDownloader(cfg.URL, logger)
	}
	if cfg.BundlePath != "" {
		m.loadBundle()
	}
	return m
}

// Store returns the current immutable snapshot, or nil when no feed has
// been loaded yet.
func (m *Manager) Store() *Store {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store
}

// Ready reports whether a feed snapshot with at least one stop is loaded.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store != nil && len(m.store.Stops) > 0
}

// NeedsRefresh reports whether the current snapshot is missing or older
// than the configured maximum age.
func (m *Manager) NeedsRefresh() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.store == nil {
		return true
	}
	if m.lastRefresh.IsZero() {
		return true
	}
	return m.now().Sub(m.lastRefresh) > m.cfg.MaxAge
}

// Refresh downloads, parses, optionally prunes, and publishes a new
// store. A failed download or parse leaves the previous snapshot in
// place. Overlapping calls are collapsed: while one refresh is running,
// further calls return immediately without error.
func (m *Manager) Refresh(ctx context.Context) error {
	if m.cfg.URL == "" {
		return ErrNotConfigured
	}
	if !m.refreshing.CompareAndSwap(false, true) {
		m.logger.Info("feed refresh already in progress")
		return nil
	}
	defer m.refreshing.Store(false)

	m.mu.RLock()
	etag := m.etag
	m.mu.RUnlock()

	data, newETag, notModified, err := m.downloader.Fetch(ctx, etag)
	if err != nil {
		return err
	}
	if notModified {
		m.mu.Lock()
		m.lastRefresh = m.now()
		m.mu.Unlock()
		return nil
	}

	store, err := LoadBytes(data, m.logger)
	if err != nil {
		return err
	}

	if len(m.cfg.TargetStops) > 0 {
		pruned, stats := Prune(store, m.cfg.TargetStops)
		m.logger.Info("feed pruned to target stops",
			"stops", m.cfg.TargetStops,
			"stops_removed", stats.StopsRemoved,
			"trips_removed", stats.TripsRemoved,
			"routes_removed", stats.RoutesRemoved,
		)
		store = pruned
	}

	m.mu.Lock()
	m.store = store
	m.lastRefresh = m.now()
	m.etag = newETag
	m.mu.Unlock()

	if m.cfg.BundlePath != "" {
		m.saveBundle(store)
	}
	return nil
}

// loadBundle seeds the store from the persisted bundle. A missing,
// corrupt, or mismatched bundle is ignored: the first refresh rebuilds it.
func (m *Manager) loadBundle() {
	b, err := ReadBundle(m.cfg.BundlePath)
	if err != nil {
		return
	}
	if m.cfg.URL != "" && b.SourceURL != m.cfg.URL {
		m.logger.Info("ignoring persisted feed bundle from different source", "source", b.SourceURL)
		return
	}
	store, err := FromBundle(b)
	if err != nil {
		m.logger.Warn("persisted feed bundle unreadable", "error", err)
		return
	}
	m.store = store
	m.lastRefresh = b.GeneratedAt
	m.logger.Info("feed loaded from persisted bundle",
		"path", m.cfg.BundlePath,
		"stops", len(store.Stops),
		"generated_at", b.GeneratedAt,
	)
}

// saveBundle persists the freshly published store. Persistence is best
// effort; a failure only costs a re-download after the next restart.
func (m *Manager) saveBundle(store *Store) {
	b := store.Bundle(m.cfg.URL, m.now())
	if err := WriteBundle(m.cfg.BundlePath, b); err != nil {
		m.logger.Warn("failed to persist feed bundle", "error", err)
		return
	}
	m.logger.Info("feed bundle persisted", "path", m.cfg.BundlePath)
}
