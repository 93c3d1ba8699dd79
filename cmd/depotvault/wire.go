package main

import (
	"log/slog"
	"time"

	"github.com/depotvault/depotvault/internal/adapter/driven/gitrepo"
	"github.com/depotvault/depotvault/internal/adapter/driven/sqlite"
	"github.com/depotvault/depotvault/internal/adapter/driven/vault"
	"github.com/depotvault/depotvault/internal/cipher"
	"github.com/depotvault/depotvault/internal/config"
	"github.com/depotvault/depotvault/internal/domain/port/driven"
)

// buildStore assembles the storage stack for the configured backend.
// The returned cleanup releases backend resources and must run after
// the last store operation.
func buildStore(cfg *config.Config) (*vault.Store, func(), error) {
	fieldCipher, err := cipher.New(cfg.SecretKey)
	if err != nil {
		return nil, nil, err
	}
	if !fieldCipher.Enabled() {
		slog.Warn("DEPOTVAULT_SECRET_KEY not set, credential operations will fail")
	}

	retention := time.Duration(cfg.RetentionDays) * 24 * time.Hour

	var repo driven.RepoTransport
	cleanup := func() {}

	switch cfg.Backend {
	case config.BackendSQLite:
		tr, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		repo = tr
		cleanup = func() {
			if err := tr.Close(); err != nil {
				slog.Error("error closing database", "error", err)
			}
		}
		slog.Info("sqlite backend opened", "path", cfg.DBPath)

	default:
		tr, err := gitrepo.New(cfg.RepoPath, cfg.Remote)
		if err != nil {
			return nil, nil, err
		}
		repo = tr
		slog.Info("git backend opened", "path", cfg.RepoPath, "remote", cfg.Remote)
	}

	return vault.New(repo, fieldCipher, retention), cleanup, nil
}
