package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/depotvault/depotvault/internal/application"
	"github.com/depotvault/depotvault/internal/cipher"
	"github.com/depotvault/depotvault/internal/config"
	"github.com/depotvault/depotvault/internal/roster"
	"github.com/depotvault/depotvault/internal/session"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a full-refresh pass over every stored account",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		factory, err := session.Factory()
		if err != nil {
			return err
		}

		store, cleanup, err := buildStore(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		svc := application.NewArchiveService(store, factory, application.Limits{
			AccountLimit:  cfg.AccountLimit,
			ManifestLimit: cfg.ManifestLimit,
		}, cfg.SummaryPath)

		return svc.RunFullRefresh(ctx)
	},
}

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Run a targeted credentials pass over an operator-supplied account list",
	Long: `Run a targeted credentials pass over an operator-supplied account list.

The roster file is a JSON array of {"name", "password", "refresh_token"}
entries, optionally wrapped in an age-encrypted envelope. With sharding
configured, only this process's share of the roster is attempted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		if file == "" {
			return fmt.Errorf("--file is required")
		}

		ctx, stop := signalContext()
		defer stop()

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		factory, err := session.Factory()
		if err != nil {
			return err
		}

		opener, err := cipher.NewEnvelopeOpener(cfg.AgeKey)
		if err != nil {
			return err
		}
		entries, err := roster.Load(file, opener)
		if err != nil {
			return err
		}
		entries = roster.Shard(entries, cfg.ShardIndex, cfg.ShardCount)
		slog.Info("roster loaded", "file", file, "accounts", len(entries),
			"shard_index", cfg.ShardIndex, "shard_count", cfg.ShardCount)

		store, cleanup, err := buildStore(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		svc := application.NewArchiveService(store, factory, application.Limits{
			AccountLimit:  cfg.AccountLimit,
			ManifestLimit: cfg.ManifestLimit,
		}, cfg.SummaryPath)

		return svc.RunTargeted(ctx, roster.Records(entries))
	},
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove retention tags older than the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		store, cleanup, err := buildStore(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		pruned, err := store.PruneExpiredTags(ctx)
		if err != nil {
			return err
		}
		slog.Info("prune complete", "tags_pruned", pruned, "retention_days", cfg.RetentionDays)
		return nil
	},
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the current tracking status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		store, cleanup, err := buildStore(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		report, err := store.ReportTrackingStatus(ctx)
		if err != nil {
			return err
		}
		fmt.Print(report)
		return nil
	},
}

func init() {
	accountsCmd.Flags().String("file", "", "path to the roster JSON file")
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
