// Package vault implements the versioned storage engine: account records
// and manifest blobs encoded onto the repository transport's commit/tag
// graph, with field-level encryption and time-based retention.
package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/depotvault/depotvault/internal/cipher"
	"github.com/depotvault/depotvault/internal/domain/model"
	"github.com/depotvault/depotvault/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.AccountStore = (*Store)(nil)

const (
	accountPrefix  = "accounts/"
	manifestPrefix = "manifests/"
)

// storedAccount is the persisted JSON shape of an account record. The
// refresh token field holds ciphertext.
type storedAccount struct {
	Name         string    `json:"name"`
	RefreshToken string    `json:"refresh_token"`
	LastSeen     time.Time `json:"last_seen"`
}

// Store is the AccountStore implementation over a RepoTransport. It owns
// all persisted state; per-name mutexes serialize same-account writes
// while the transport's single-writer discipline serializes the
// underlying commits.
type Store struct {
	repo      driven.RepoTransport
	cipher    *cipher.Cipher
	retention time.Duration
	now       func() time.Time

	nameLocks sync.Map // account name -> *sync.Mutex

	accountsWritten  atomic.Int64
	accountsSkipped  atomic.Int64
	accountsRemoved  atomic.Int64
	manifestsWritten atomic.Int64
	manifestsSkipped atomic.Int64
	tagsPruned       atomic.Int64
}

// New creates a Store over the given transport. retention is the age
// beyond which retention tags become prune-eligible.
func New(repo driven.RepoTransport, c *cipher.Cipher, retention time.Duration) *Store {
	return &Store{
		repo:      repo,
		cipher:    c,
		retention: retention,
		now:       time.Now,
	}
}

func accountKey(name string) string {
	return accountPrefix + name + ".json"
}

func manifestKey(key model.ManifestKey) string {
	return fmt.Sprintf("%s%d/%d/%d.bin", manifestPrefix, key.AppID, key.DepotID, key.ManifestID)
}

// ListAccounts reads every stored account, decrypting refresh tokens.
// When randomize is true the result is shuffled so a truncated pass does
// not starve the same tail of accounts on every run.
func (s *Store) ListAccounts(ctx context.Context, randomize bool) ([]model.AccountRecord, error) {
	keys, err := s.repo.ListBlobs(ctx, accountPrefix)
	if err != nil {
		return nil, model.NewStorageError("list accounts", err)
	}

	records := make([]model.AccountRecord, 0, len(keys))
	for _, key := range keys {
		data, err := s.repo.ReadBlob(ctx, key)
		if err != nil {
			return nil, model.NewStorageError("read account", err)
		}
		rec, err := s.decodeAccount(data)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if randomize {
		rand.Shuffle(len(records), func(i, j int) {
			records[i], records[j] = records[j], records[i]
		})
	}
	return records, nil
}

// GetAccount returns the record for name, or (nil, nil) if absent.
func (s *Store) GetAccount(ctx context.Context, name string) (*model.AccountRecord, error) {
	data, err := s.repo.ReadBlob(ctx, accountKey(name))
	if errors.Is(err, driven.ErrBlobNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, model.NewStorageError("read account", err)
	}
	rec, err := s.decodeAccount(data)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// WriteAccount upserts the record by name. The write is skipped entirely
// when the stored refresh token already equals the incoming one, so an
// unchanged account produces no repository churn.
func (s *Store) WriteAccount(ctx context.Context, rec model.AccountRecord) error {
	mu := s.nameLock(rec.Name)
	mu.Lock()
	defer mu.Unlock()

	existing, err := s.GetAccount(ctx, rec.Name)
	if err != nil {
		return err
	}
	if existing != nil && existing.RefreshToken == rec.RefreshToken {
		s.accountsSkipped.Add(1)
		return nil
	}

	encrypted, err := s.cipher.EncryptField(rec.RefreshToken)
	if err != nil {
		return err
	}

	lastSeen := rec.LastSeen
	if lastSeen.IsZero() {
		lastSeen = s.now()
	}
	data, err := json.MarshalIndent(storedAccount{
		Name:         rec.Name,
		RefreshToken: encrypted,
		LastSeen:     lastSeen.UTC(),
	}, "", "  ")
	if err != nil {
		return model.NewStorageError("encode account", err)
	}

	if err := s.repo.WriteBlob(ctx, accountKey(rec.Name), data); err != nil {
		return model.NewStorageError("write account", err)
	}
	s.accountsWritten.Add(1)
	return nil
}

// RemoveAccount deletes the persisted record. Used only on terminal
// authentication denial.
func (s *Store) RemoveAccount(ctx context.Context, rec model.AccountRecord) error {
	mu := s.nameLock(rec.Name)
	mu.Lock()
	defer mu.Unlock()

	if err := s.repo.DeleteBlob(ctx, accountKey(rec.Name)); err != nil {
		return model.NewStorageError("remove account", err)
	}
	s.accountsRemoved.Add(1)
	return nil
}

// WriteManifest stores the payload and its retention tag unless the key
// already exists. Manifests are immutable: the second write for a key is
// a counted no-op and never overwrites the payload.
func (s *Store) WriteManifest(ctx context.Context, key model.ManifestKey, payload []byte) error {
	written, err := s.repo.WriteBlobIfAbsent(ctx, manifestKey(key), payload)
	if err != nil {
		return model.NewStorageError("write manifest", err)
	}
	if !written {
		s.manifestsSkipped.Add(1)
		return nil
	}

	tag := model.NewRetentionTag(key, s.now())
	if err := s.repo.CreateTag(ctx, tag.Name); err != nil {
		return model.NewStorageError("create retention tag", err)
	}
	s.manifestsWritten.Add(1)
	return nil
}

// PruneExpiredTags sweeps retention tags older than the retention window.
// Only tag refs are removed; blob content is never deleted here, so a
// manifest kept alive by a newer tag or the head stays reachable.
func (s *Store) PruneExpiredTags(ctx context.Context) (int, error) {
	names, err := s.repo.ListTags(ctx)
	if err != nil {
		return 0, model.NewStorageError("list tags", err)
	}

	now := s.now()
	pruned := 0
	for _, name := range names {
		tag, ok := model.ParseRetentionTag(name)
		if !ok {
			continue
		}
		if !tag.Expired(now, s.retention) {
			continue
		}
		if err := s.repo.DeleteTag(ctx, name); err != nil {
			return pruned, model.NewStorageError("delete tag", err)
		}
		pruned++
	}
	s.tagsPruned.Add(int64(pruned))
	return pruned, nil
}

// ReportTrackingStatus renders the pass summary: stored account count
// plus the counters accumulated by this Store instance.
func (s *Store) ReportTrackingStatus(ctx context.Context) (string, error) {
	keys, err := s.repo.ListBlobs(ctx, accountPrefix)
	if err != nil {
		return "", model.NewStorageError("list accounts", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "accounts tracked:   %d\n", len(keys))
	fmt.Fprintf(&b, "accounts written:   %d\n", s.accountsWritten.Load())
	fmt.Fprintf(&b, "accounts unchanged: %d\n", s.accountsSkipped.Load())
	fmt.Fprintf(&b, "accounts removed:   %d\n", s.accountsRemoved.Load())
	fmt.Fprintf(&b, "manifests written:  %d\n", s.manifestsWritten.Load())
	fmt.Fprintf(&b, "manifests known:    %d\n", s.manifestsSkipped.Load())
	fmt.Fprintf(&b, "tags pruned:        %d\n", s.tagsPruned.Load())
	return b.String(), nil
}

// Flush commits and pushes everything staged since the last flush.
func (s *Store) Flush(ctx context.Context, message string) error {
	if err := s.repo.CommitAndPush(ctx, message); err != nil {
		return model.NewStorageError("commit and push", err)
	}
	return nil
}

func (s *Store) nameLock(name string) *sync.Mutex {
	mu, _ := s.nameLocks.LoadOrStore(name, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (s *Store) decodeAccount(data []byte) (model.AccountRecord, error) {
	var stored storedAccount
	if err := json.Unmarshal(data, &stored); err != nil {
		return model.AccountRecord{}, model.NewStorageError("decode account", err)
	}
	token, err := s.cipher.DecryptField(stored.RefreshToken)
	if err != nil {
		return model.AccountRecord{}, err
	}
	return model.AccountRecord{
		Name:         stored.Name,
		RefreshToken: token,
		LastSeen:     stored.LastSeen,
	}, nil
}
