// Package config implements env-var driven configuration (spec.md §6's
// "Environment / configuration" list), grounded on the teacher's
// internal/config/config.go: the same env()/envInt() helper pattern,
// extended with envDuration/envBool/envList for the additional settings
// this domain needs, plus a settings-table DB overlay via MergeFromDB.
package config

import (
	"database/sql"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config holds every setting spec.md §6 recognizes.
type Config struct {
	Port          int
	DatabaseURL   string
	RedisAddr     string
	MigrationsDir string
	ExtractorPath string
	MetricsAddr   string

	// DownloadRoot is the filesystem root all Source directories nest
	// under. AudioDir/VideoDir are loaded from the environment, but no path
	// is built from them: Source directories sit directly below
	// DownloadRoot.
	DownloadRoot string
	AudioDir     string
	VideoDir     string

	// DefaultMediaTemplate is loaded and merged like the other settings,
	// but no code in this module reads it when a Source is created.
	DefaultMediaTemplate string

	// Per-queue settings for spec.md §4.5's named-queue Scheduler. main
	// sums all four into asynq's total worker count and passes WorkersDB,
	// WorkersFS and WorkersNet as queue priority weights; asynq runs one
	// shared worker pool, so none of them caps a single queue.
	WorkersDB    int
	WorkersFS    int
	WorkersNet   int
	WorkersLimit int

	// TaskHistoryRetention bounds how long completed/failed task_history
	// rows are kept before the daily cleanup job deletes them.
	TaskHistoryRetention time.Duration

	// MaxInFlightDownloads is passed as the limit queue's priority weight
	// in place of WorkersLimit. It sets that queue's share of the shared
	// worker pool; it does not bound how many downloads run at once.
	MaxInFlightDownloads int

	// EnglishLanguageCodes is the ordered tie-break preference list the
	// Format Matcher falls back on (spec.md §4.3), overriding
	// internal/matcher's default.
	EnglishLanguageCodes []string

	// HDCutoffHeight and MinFallbackHeight override internal/matcher's
	// REQUIRE_HD and refill-candidate-set defaults (spec.md §4.3).
	HDCutoffHeight    int
	MinFallbackHeight int

	// DefaultSponsorCategories is loaded from the environment, but no code
	// in this module reads it when a Source is created or downloaded.
	DefaultSponsorCategories []string

	// UpgradeOnHigherResolution: after a download that used a fallback
	// (non-exact) format, the Downloader enqueues a delayed override
	// re-download when a taller Format is available.
	UpgradeOnHigherResolution bool

	// RenameAllSources, when true, runs the rename task across every
	// Source on a template change; when false, only Sources whose
	// directory appears in RenameDirectoryAllowlist are renamed.
	RenameAllSources         bool
	RenameDirectoryAllowlist []string

	// ShrinkMetadata is loaded and merged like the other settings, but no
	// code in this module reads it; Metadata rows always hold only the
	// fixed known-field subset (spec.md §9's "normalize on ingest" note).
	ShrinkMetadata bool
}

// Load reads Config from the environment, grounded on the teacher's
// env()/envInt() helpers with envDuration/envBool/envList added for the
// richer settings this domain needs.
func Load() *Config {
	return &Config{
		Port:          envInt("PORT", 8080),
		DatabaseURL:   env("DATABASE_URL", "postgres://tubevault:tubevault@db:5432/tubevault?sslmode=disable"),
		RedisAddr:     env("REDIS_ADDR", "redis:6379"),
		MigrationsDir: env("MIGRATIONS_DIR", "migrations"),
		ExtractorPath: env("EXTRACTOR_PATH", "yt-dlp"),
		MetricsAddr:   env("METRICS_ADDR", ":9090"),

		DownloadRoot: env("DOWNLOAD_ROOT", "/downloads"),
		AudioDir:     env("AUDIO_DIR", "audio"),
		VideoDir:     env("VIDEO_DIR", "video"),

		DefaultMediaTemplate: env("DEFAULT_MEDIA_TEMPLATE", "{source}/{title}.{ext}"),

		WorkersDB:    envInt("WORKERS_DB", 4),
		WorkersFS:    envInt("WORKERS_FS", 3),
		WorkersNet:   envInt("WORKERS_NET", 6),
		WorkersLimit: envInt("WORKERS_LIMIT", 1),

		TaskHistoryRetention: envDuration("TASK_HISTORY_RETENTION", 30*24*time.Hour),
		MaxInFlightDownloads: envInt("MAX_IN_FLIGHT_DOWNLOADS", 2),

		EnglishLanguageCodes: envList("ENGLISH_LANGUAGE_CODES", []string{"en", "en-US", "en-GB", "en-us", "en-gb"}),
		HDCutoffHeight:       envInt("HD_CUTOFF_HEIGHT", 500),
		MinFallbackHeight:    envInt("MIN_FALLBACK_HEIGHT", 360),

		DefaultSponsorCategories: envList("DEFAULT_SPONSOR_CATEGORIES", []string{"sponsor", "selfpromo", "interaction"}),

		UpgradeOnHigherResolution: envBool("UPGRADE_ON_HIGHER_RESOLUTION", false),
		RenameAllSources:          envBool("RENAME_ALL_SOURCES", true),
		RenameDirectoryAllowlist:  envList("RENAME_DIRECTORY_ALLOWLIST", nil),

		ShrinkMetadata: envBool("SHRINK_METADATA", false),
	}
}

// MergeFromDB overlays a generic `settings` key/value table, allowing an
// external admin UI to change a subset of these at runtime without a
// restart (spec.md §6; the admin UI itself is out of scope, but the table
// it writes to is not).
func (c *Config) MergeFromDB(db *sql.DB, logger zerolog.Logger) {
	rows, err := db.Query("SELECT key, value FROM settings")
	if err != nil {
		logger.Warn().Err(err).Msg("config: skipping DB settings merge")
		return
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			continue
		}
		switch key {
		case "download_root":
			c.DownloadRoot = value
		case "default_media_template":
			c.DefaultMediaTemplate = value
		case "max_in_flight_downloads":
			if v, err := strconv.Atoi(value); err == nil {
				c.MaxInFlightDownloads = v
			}
		case "hd_cutoff_height":
			if v, err := strconv.Atoi(value); err == nil {
				c.HDCutoffHeight = v
			}
		case "min_fallback_height":
			if v, err := strconv.Atoi(value); err == nil {
				c.MinFallbackHeight = v
			}
		case "upgrade_on_higher_resolution":
			c.UpgradeOnHigherResolution = value == "true"
		case "rename_all_sources":
			c.RenameAllSources = value == "true"
		case "shrink_metadata":
			c.ShrinkMetadata = value == "true"
		}
	}
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// envList splits a comma-separated env var, trimming whitespace around
// each element and dropping empties.
func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
