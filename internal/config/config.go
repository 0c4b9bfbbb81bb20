package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Data source modes.
const (
	ModeGTFS = "gtfs" // standalone: local feed only
	ModeAPI  = "api"  // prediction API primary, local feed fallback
)

// Config holds application configuration from environment variables.
type Config struct {
	StopID string // GTFS stop id the display is bound to
	Mode   string // ModeGTFS or ModeAPI

	GTFSURL   string // URL of the static GTFS zip
	GTFSRTURL string // optional GTFS-RT trip updates feed
	APIURL    string // prediction API base URL (ModeAPI)

	DataDir         string // holds the feed bundle and offline cache
	RefreshInterval time.Duration
	MaxArrivals     int // display cap for combined arrival lists
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		StopID:          envStr("STOPBOARD_STOP_ID", ""),
		Mode:            envStr("STOPBOARD_MODE", ModeGTFS),
		GTFSURL:         envStr("STOPBOARD_GTFS_URL", ""),
		GTFSRTURL:       envStr("STOPBOARD_GTFS_RT_URL", ""),
		APIURL:          envStr("STOPBOARD_API_URL", "http://localhost:8000"),
		DataDir:         envStr("STOPBOARD_DATA_DIR", "./data"),
		RefreshInterval: time.Duration(envInt("STOPBOARD_REFRESH_SECONDS", 30)) * time.Second,
		MaxArrivals:     envInt("STOPBOARD_MAX_ARRIVALS", 8),
	}
}

// BundlePath is where the parsed feed bundle persists across restarts.
func (c *Config) BundlePath() string {
	return filepath.Join(c.DataDir, "feed_bundle.json")
}

// CachePath is the offline schedule cache database.
func (c *Config) CachePath() string {
	return filepath.Join(c.DataDir, "schedule_cache.db")
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
