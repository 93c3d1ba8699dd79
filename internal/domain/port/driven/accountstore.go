package driven

import (
	"context"
	"errors"

	"github.com/depotvault/depotvault/internal/domain/model"
)

// ErrKeyNotSet is returned by account operations when DEPOTVAULT_SECRET_KEY
// has not been configured: credentials cannot be read or written without
// the field-encryption key.
var ErrKeyNotSet = errors.New("encryption key not configured: set DEPOTVAULT_SECRET_KEY")

// AccountStore is the driven port for the versioned storage engine. It
// owns every persisted entity (account records, manifest blobs, retention
// tags); no other component mutates repository state.
type AccountStore interface {
	// ListAccounts enumerates all stored accounts with decrypted
	// refresh tokens. When randomize is true the ordering is shuffled
	// so repeated truncated passes do not always hit the same accounts
	// first. The returned slice is materialized and safe to re-iterate.
	ListAccounts(ctx context.Context, randomize bool) ([]model.AccountRecord, error)

	// GetAccount returns the record for name, or (nil, nil) if absent.
	GetAccount(ctx context.Context, name string) (*model.AccountRecord, error)

	// WriteAccount upserts the record by name, encrypting the refresh
	// token before persisting. A write whose refresh token matches the
	// stored one is a no-op and produces no commit. Concurrent writes
	// for different names do not block one another; writes for the
	// same name serialize.
	WriteAccount(ctx context.Context, rec model.AccountRecord) error

	// RemoveAccount deletes the persisted record. Called only when the
	// platform permanently denies the account's credentials.
	RemoveAccount(ctx context.Context, rec model.AccountRecord) error

	// WriteManifest creates the manifest record and its retention tag
	// if and only if no record for the key exists; otherwise a no-op.
	// Safe to call concurrently for distinct keys.
	WriteManifest(ctx context.Context, key model.ManifestKey, payload []byte) error

	// PruneExpiredTags removes every retention tag older than the
	// retention window and returns the number removed. Must not run
	// concurrently with writes.
	PruneExpiredTags(ctx context.Context) (int, error)

	// ReportTrackingStatus renders a human-readable summary of the
	// current pass. Pure read.
	ReportTrackingStatus(ctx context.Context) (string, error)

	// Flush commits and pushes all staged writes.
	Flush(ctx context.Context, message string) error
}
