// Package config holds runtime settings for the offline cache engine,
// layered as defaults -> JSON file -> command-line flags, later sources
// winning.
package config

import (
	"time"

	"github.com/talentflow/offlinecache/internal/models"
)

// Config holds every tunable the engine and CLI need.
type Config struct {
	// DatabasePath is the SQLite DSN for the local cache database.
	DatabasePath string

	// DraftFallbackDir is where drafts land when the primary store fails.
	DraftFallbackDir string

	// RemoteBaseURL is the base URL of the remote backend's JSON API.
	RemoteBaseURL string

	// OnlineCheckInterval is how often connectivity is probed.
	OnlineCheckInterval time.Duration

	// SyncInterval is the timer-driven sync cadence while online.
	SyncInterval time.Duration

	// SyncBatchSize caps how many queue items one sync pass dequeues.
	SyncBatchSize int

	// CacheTTL maps each entity type to its segment freshness window.
	CacheTTL map[models.EntityType]time.Duration

	// DraftMaxEntries / DraftMaxBytes bound the draft store.
	DraftMaxEntries int
	DraftMaxBytes   int64

	// StorageQuotaBytes is the advertised local storage budget.
	StorageQuotaBytes int64

	// MetricsAddr is where the Prometheus endpoint listens; empty disables it.
	MetricsAddr string
}

// TTL returns the freshness window for t, falling back to a conservative
// five minutes for unknown types.
func (c *Config) TTL(t models.EntityType) time.Duration {
	if d, ok := c.CacheTTL[t]; ok {
		return d
	}
	return 5 * time.Minute
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.DatabasePath = "offlinecache.db"
	c.DraftFallbackDir = "drafts-fallback"
	c.RemoteBaseURL = "http://127.0.0.1:8080/api"
	c.OnlineCheckInterval = 3 * time.Second
	c.SyncInterval = 30 * time.Second
	c.SyncBatchSize = 10
	c.CacheTTL = map[models.EntityType]time.Duration{
		models.EntityRequirement: 10 * time.Minute,
		models.EntityConsultant:  30 * time.Minute,
		models.EntityInterview:   5 * time.Minute,
		models.EntityDocument:    30 * time.Minute,
		models.EntityEmail:       15 * time.Minute,
	}
	c.DraftMaxEntries = 200
	c.DraftMaxBytes = 5 << 20
	c.StorageQuotaBytes = 50 << 20
	c.MetricsAddr = "127.0.0.1:9464"
}

// LoadConfig constructs a Config, applies defaults, then overlays values
// from JSON (if a config file was given) and command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
