package config

import (
	"encoding/json"
	"os"

	"github.com/talentflow/offlinecache/internal/flagx"
	"github.com/talentflow/offlinecache/internal/models"
	"github.com/talentflow/offlinecache/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Durations
// may be written either as strings like "10m" or integer nanoseconds.
// Zero values mean "not set" and leave the runtime Config untouched.
type JsonConfig struct {
	DatabasePath        string                    `json:"database_path"`
	DraftFallbackDir    string                    `json:"draft_fallback_dir"`
	RemoteBaseURL       string                    `json:"remote_base_url"`
	OnlineCheckInterval timex.Duration            `json:"online_check_interval"`
	SyncInterval        timex.Duration            `json:"sync_interval"`
	SyncBatchSize       int                       `json:"sync_batch_size"`
	CacheTTL            map[string]timex.Duration `json:"cache_ttl"`
	DraftMaxEntries     int                       `json:"draft_max_entries"`
	DraftMaxBytes       int64                     `json:"draft_max_bytes"`
	StorageQuotaBytes   int64                     `json:"storage_quota_bytes"`
	MetricsAddr         string                    `json:"metrics_addr"`
}

// parseJson overlays cfg with values loaded from the JSON file named by the
// -c/-config flag. Missing flag means no JSON is loaded. Read or unmarshal
// errors panic; config problems should stop startup loudly.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.DatabasePath != "" {
		cfg.DatabasePath = jc.DatabasePath
	}
	if jc.DraftFallbackDir != "" {
		cfg.DraftFallbackDir = jc.DraftFallbackDir
	}
	if jc.RemoteBaseURL != "" {
		cfg.RemoteBaseURL = jc.RemoteBaseURL
	}
	if jc.OnlineCheckInterval.Duration > 0 {
		cfg.OnlineCheckInterval = jc.OnlineCheckInterval.Duration
	}
	if jc.SyncInterval.Duration > 0 {
		cfg.SyncInterval = jc.SyncInterval.Duration
	}
	if jc.SyncBatchSize > 0 {
		cfg.SyncBatchSize = jc.SyncBatchSize
	}
	for name, d := range jc.CacheTTL {
		t := models.EntityType(name)
		if t.Valid() && d.Duration > 0 {
			cfg.CacheTTL[t] = d.Duration
		}
	}
	if jc.DraftMaxEntries > 0 {
		cfg.DraftMaxEntries = jc.DraftMaxEntries
	}
	if jc.DraftMaxBytes > 0 {
		cfg.DraftMaxBytes = jc.DraftMaxBytes
	}
	if jc.StorageQuotaBytes > 0 {
		cfg.StorageQuotaBytes = jc.StorageQuotaBytes
	}
	if jc.MetricsAddr != "" {
		cfg.MetricsAddr = jc.MetricsAddr
	}
}
