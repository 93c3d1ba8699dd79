// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Backend selects the repository transport implementation.
type Backend string

const (
	BackendGit    Backend = "git"
	BackendSQLite Backend = "sqlite"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	SecretKey     string
	AgeKey        string
	Backend       Backend
	RepoPath      string
	Remote        string
	DBPath        string
	AccountLimit  int
	ManifestLimit int
	RetentionDays int
	ShardIndex    int
	ShardCount    int
	SummaryPath   string
}

// Load reads configuration from environment variables and returns a validated
// Config. DEPOTVAULT_SECRET_KEY is optional at load time; without it credential
// operations fail at first use. Optional variables with defaults:
// DEPOTVAULT_BACKEND (git), DEPOTVAULT_REPO_PATH (.), DEPOTVAULT_DB_PATH
// (depotvault.db), DEPOTVAULT_ACCOUNT_LIMIT (4), DEPOTVAULT_MANIFEST_LIMIT (8),
// DEPOTVAULT_RETENTION_DAYS (30), DEPOTVAULT_SHARD_INDEX/COUNT (0/1).
func Load() (*Config, error) {
	cfg := &Config{
		SecretKey:     os.Getenv("DEPOTVAULT_SECRET_KEY"),
		AgeKey:        os.Getenv("DEPOTVAULT_AGE_KEY"),
		Backend:       BackendGit,
		RepoPath:      ".",
		Remote:        os.Getenv("DEPOTVAULT_REMOTE"),
		DBPath:        "depotvault.db",
		AccountLimit:  4,
		ManifestLimit: 8,
		RetentionDays: 30,
		ShardIndex:    0,
		ShardCount:    1,
		SummaryPath:   os.Getenv("DEPOTVAULT_SUMMARY_PATH"),
	}

	if v, ok := os.LookupEnv("DEPOTVAULT_BACKEND"); ok {
		switch Backend(v) {
		case BackendGit, BackendSQLite:
			cfg.Backend = Backend(v)
		default:
			return nil, fmt.Errorf("DEPOTVAULT_BACKEND must be %q or %q, got %q", BackendGit, BackendSQLite, v)
		}
	}
	if v, ok := os.LookupEnv("DEPOTVAULT_REPO_PATH"); ok {
		cfg.RepoPath = v
	}
	if v, ok := os.LookupEnv("DEPOTVAULT_DB_PATH"); ok {
		cfg.DBPath = v
	}

	var err error
	if cfg.AccountLimit, err = intEnv("DEPOTVAULT_ACCOUNT_LIMIT", cfg.AccountLimit, 1); err != nil {
		return nil, err
	}
	if cfg.ManifestLimit, err = intEnv("DEPOTVAULT_MANIFEST_LIMIT", cfg.ManifestLimit, 1); err != nil {
		return nil, err
	}
	if cfg.RetentionDays, err = intEnv("DEPOTVAULT_RETENTION_DAYS", cfg.RetentionDays, 1); err != nil {
		return nil, err
	}
	if cfg.ShardIndex, err = intEnv("DEPOTVAULT_SHARD_INDEX", cfg.ShardIndex, 0); err != nil {
		return nil, err
	}
	if cfg.ShardCount, err = intEnv("DEPOTVAULT_SHARD_COUNT", cfg.ShardCount, 1); err != nil {
		return nil, err
	}
	if cfg.ShardIndex >= cfg.ShardCount {
		return nil, fmt.Errorf("DEPOTVAULT_SHARD_INDEX %d must be below DEPOTVAULT_SHARD_COUNT %d", cfg.ShardIndex, cfg.ShardCount)
	}

	return cfg, nil
}

func intEnv(name string, def, floor int) (int, error) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return def, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid integer %q: %w", name, v, err)
	}
	if parsed < floor {
		return 0, fmt.Errorf("%s must be at least %d, got %d", name, floor, parsed)
	}
	return parsed, nil
}
