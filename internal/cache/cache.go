// Package cache provides durable, staleness-aware storage of the last
// known schedule per stop. It is written after successful live arrivals
// computations and read only when every live backend has failed.
package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultMaxAge is how old an entry may grow before it is stale.
const DefaultMaxAge = 24 * time.Hour

// Stop is the stop snapshot stored alongside cached schedule rows.
type Stop struct {
	ID   string  `json:"stop_id"`
	Name string  `json:"stop_name"`
	Code string  `json:"stop_code,omitempty"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// ScheduleRow is one raw scheduled visit. Rows deliberately carry the
// published arrival time rather than a computed minutes-away value, so
// minutes away is recomputed relative to load time.
type ScheduleRow struct {
	RouteShortName string `json:"route_short_name"`
	RouteColor     string `json:"route_color"`
	Headsign       string `json:"headsign"`
	ArrivalTime    string `json:"arrival_time"`
}

// Cache wraps a SQLite database holding one entry per stop. Saves are
// whole-row upserts, so readers never see a partially written entry.
type Cache struct {
	db     *sql.DB
	logger *slog.Logger
	maxAge time.Duration
	now    func() time.Time
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS schedule_cache (
		stop_id   TEXT PRIMARY KEY,
		stop      TEXT NOT NULL,
		rows      TEXT NOT NULL,
		cached_at TEXT NOT NULL
	)`,
}

// Open creates or opens the cache database at the given path.
func Open(path string, logger *slog.Logger) (*Cache, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping cache database: %w", err)
	}
	for i, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("cache migration %d: %w", i, err)
		}
	}
	logger.Info("offline cache opened", "path", path)
	return &Cache{
		db:     db,
		logger: logger,
		maxAge: DefaultMaxAge,
		now:    time.Now,
	}, nil
}

// Close releases the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Save stores the schedule for a stop, replacing any previous entry.
func (c *Cache) Save(stopID string, stop Stop, rows []ScheduleRow) error {
	stopJSON, err := json.Marshal(stop)
	if err != nil {
		return fmt.Errorf("encode stop: %w", err)
	}
	rowsJSON, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("encode schedule rows: %w", err)
	}
	_, err = c.db.Exec(
		`INSERT OR REPLACE INTO schedule_cache (stop_id, stop, rows, cached_at) VALUES (?, ?, ?, ?)`,
		stopID, string(stopJSON), string(rowsJSON), c.now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("save cache entry: %w", err)
	}
	c.logger.Info("cached schedule for stop", "stop", stopID, "rows", len(rows))
	return nil
}

// Load returns the cached schedule for a stop. A missing, corrupt, or
// schema-mismatched entry reports absent, never an error.
func (c *Cache) Load(stopID string) (Stop, []ScheduleRow, bool) {
	var stopJSON, rowsJSON string
	err := c.db.QueryRow(
		`SELECT stop, rows FROM schedule_cache WHERE stop_id = ?`, stopID,
	).Scan(&stopJSON, &rowsJSON)
	if err != nil {
		if err != sql.ErrNoRows {
			c.logger.Warn("cache read failed", "stop", stopID, "error", err)
		}
		return Stop{}, nil, false
	}

	var stop Stop
	if err := json.Unmarshal([]byte(stopJSON), &stop); err != nil {
		c.logger.Warn("corrupt cached stop, ignoring entry", "stop", stopID, "error", err)
		return Stop{}, nil, false
	}
	var rows []ScheduleRow
	if err := json.Unmarshal([]byte(rowsJSON), &rows); err != nil {
		c.logger.Warn("corrupt cached schedule, ignoring entry", "stop", stopID, "error", err)
		return Stop{}, nil, false
	}
	return stop, rows, true
}

// Stale reports whether a stop's entry is missing or older than the
// refresh interval.
func (c *Cache) Stale(stopID string) bool {
	var cachedAt string
	err := c.db.QueryRow(
		`SELECT cached_at FROM schedule_cache WHERE stop_id = ?`, stopID,
	).Scan(&cachedAt)
	if err != nil {
		return true
	}
	t, err := time.Parse(time.RFC3339, cachedAt)
	if err != nil {
		return true
	}
	return c.now().Sub(t) > c.maxAge
}
