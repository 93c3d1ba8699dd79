// Package application contains use-case orchestration services.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/depotvault/depotvault/internal/domain/model"
	"github.com/depotvault/depotvault/internal/domain/port/driven"
)

// manifestWrite is a completed download queued for the single storage
// writer, so slow repository writes never block the download pools.
type manifestWrite struct {
	account string
	key     model.ManifestKey
	payload []byte
}

// Limits holds the two pool sizes of the pass pipeline: at most
// AccountLimit accounts connected at once, and within each account at
// most ManifestLimit concurrent downloads.
type Limits struct {
	AccountLimit  int
	ManifestLimit int
}

// ArchiveService drives an archival pass end to end: bounded-parallel
// account sessions, bounded-parallel manifest downloads per account,
// deferred writes funneled into the store's single writer, then flush,
// prune, and summary.
type ArchiveService struct {
	store       driven.AccountStore
	newSession  driven.SessionFactory
	limits      Limits
	summaryPath string

	accountsProcessed atomic.Int64
	accountsDenied    atomic.Int64
	accountsFailed    atomic.Int64
	downloadsFailed   atomic.Int64
}

// NewArchiveService creates the scheduler. summaryPath names an optional
// sink for the plain-text pass report; empty means log-only.
func NewArchiveService(store driven.AccountStore, factory driven.SessionFactory, limits Limits, summaryPath string) *ArchiveService {
	if limits.AccountLimit < 1 {
		limits.AccountLimit = 1
	}
	if limits.ManifestLimit < 1 {
		limits.ManifestLimit = 1
	}
	return &ArchiveService{
		store:       store,
		newSession:  factory,
		limits:      limits,
		summaryPath: summaryPath,
	}
}

// RunFullRefresh runs a pass over every stored account, including the
// manifest download phase. The listing is shuffled so a truncated run
// does not always starve the same accounts.
func (s *ArchiveService) RunFullRefresh(ctx context.Context) error {
	accounts, err := s.store.ListAccounts(ctx, true)
	if err != nil {
		return err
	}
	return s.runPass(ctx, accounts, true)
}

// RunTargeted runs a credentials-only pass over an operator-supplied
// account list. No manifests are downloaded.
func (s *ArchiveService) RunTargeted(ctx context.Context, accounts []model.AccountRecord) error {
	return s.runPass(ctx, accounts, false)
}

func (s *ArchiveService) runPass(ctx context.Context, accounts []model.AccountRecord, downloadManifests bool) error {
	start := time.Now()
	slog.Info("pass starting",
		"accounts", len(accounts),
		"account_limit", s.limits.AccountLimit,
		"manifest_limit", s.limits.ManifestLimit,
		"manifests", downloadManifests,
	)

	// All manifest writes across all accounts funnel through this one
	// consumer: the backing repository supports only a single writer.
	writes := make(chan manifestWrite, 64)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for w := range writes {
			if err := s.store.WriteManifest(ctx, w.key, w.payload); err != nil {
				slog.Error("manifest write failed", "account", w.account, "manifest", w.key, "error", err)
			}
		}
	}()

	sem := semaphore.NewWeighted(int64(s.limits.AccountLimit))
	var wg sync.WaitGroup
	for _, rec := range accounts {
		if err := sem.Acquire(ctx, 1); err != nil {
			slog.Error("account dispatch interrupted", "error", err)
			break
		}
		wg.Add(1)
		go func(rec model.AccountRecord) {
			defer wg.Done()
			defer sem.Release(1)
			s.processAccount(ctx, rec, downloadManifests, writes)
		}(rec)
	}
	wg.Wait()

	// Every account unit has reached Done; join the deferred writes
	// before anything that must not race them.
	close(writes)
	<-writerDone

	if err := s.store.Flush(ctx, fmt.Sprintf("archive pass %s", start.UTC().Format(time.RFC3339))); err != nil {
		return err
	}

	pruned, err := s.store.PruneExpiredTags(ctx)
	if err != nil {
		return err
	}

	report, err := s.store.ReportTrackingStatus(ctx)
	if err != nil {
		return err
	}
	s.publishSummary(report)

	slog.Info("pass complete",
		"accounts", s.accountsProcessed.Load(),
		"denied", s.accountsDenied.Load(),
		"failed", s.accountsFailed.Load(),
		"downloads_failed", s.downloadsFailed.Load(),
		"tags_pruned", pruned,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return nil
}

// processAccount is one account's unit of work: connect, authenticate,
// persist credentials, optionally download manifests, disconnect. Every
// failure is contained here; nothing propagates to the pass.
func (s *ArchiveService) processAccount(ctx context.Context, rec model.AccountRecord, downloadManifests bool, writes chan<- manifestWrite) {
	s.accountsProcessed.Add(1)

	sess := s.newSession()
	if err := sess.Connect(ctx); err != nil {
		s.accountsFailed.Add(1)
		slog.Error("connect failed", "account", rec.Name, "error", err)
		return
	}
	defer sess.Disconnect()

	outcome := sess.Authenticate(ctx, rec)

	if reason, ok := outcome.Denied(); ok {
		s.accountsDenied.Add(1)
		slog.Warn("account permanently denied, retiring", "account", rec.Name, "reason", reason)
		if err := s.store.RemoveAccount(ctx, rec); err != nil {
			slog.Error("retire account failed", "account", rec.Name, "error", err)
		}
		return
	}
	if err, ok := outcome.Failed(); ok {
		s.accountsFailed.Add(1)
		slog.Error("authentication failed", "account", rec.Name, "error", err)
		return
	}

	info, ok := outcome.Success()
	if !ok {
		// A session returning none of the three outcome variants is a
		// provider bug; treat it like a transient failure rather than
		// persisting an empty record.
		s.accountsFailed.Add(1)
		slog.Error("authentication produced no outcome", "account", rec.Name)
		return
	}

	// Credentials must be persisted before any manifest write for this
	// account is queued.
	updated := model.AccountRecord{
		Name:         info.Name,
		RefreshToken: info.RefreshToken,
		LastSeen:     time.Now(),
	}
	if err := s.store.WriteAccount(ctx, updated); err != nil {
		s.accountsFailed.Add(1)
		slog.Error("persist account failed", "account", rec.Name, "error", err)
		return
	}

	if !downloadManifests {
		return
	}

	keys, err := sess.ListOwnedDepotManifests(ctx)
	if err != nil {
		s.accountsFailed.Add(1)
		slog.Error("depot enumeration failed", "account", rec.Name, "error", err)
		return
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.limits.ManifestLimit)
	for _, key := range keys {
		g.Go(func() error {
			payload, err := sess.DownloadManifest(gCtx, key)
			if err != nil {
				s.downloadsFailed.Add(1)
				slog.Error("manifest download failed", "account", rec.Name, "manifest", key, "error", err)
				return nil // contained: one manifest never aborts the account
			}
			writes <- manifestWrite{account: rec.Name, key: key, payload: payload}
			return nil
		})
	}
	_ = g.Wait()

	slog.Debug("account archived", "account", rec.Name, "manifests", len(keys))
}

// publishSummary writes the pass report to the configured sink. A
// missing sink is a warning, not an error.
func (s *ArchiveService) publishSummary(report string) {
	if s.summaryPath == "" {
		slog.Warn("no summary sink configured, logging report only")
		slog.Info("pass report", "report", report)
		return
	}
	if err := os.WriteFile(s.summaryPath, []byte(report), 0o644); err != nil {
		slog.Warn("summary sink unavailable", "path", s.summaryPath, "error", err)
		slog.Info("pass report", "report", report)
		return
	}
	slog.Info("pass report written", "path", s.summaryPath)
}
