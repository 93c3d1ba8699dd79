package driven

import (
	"context"

	"github.com/depotvault/depotvault/internal/domain/model"
)

// SteamSession is the driven port for the externally supplied Steam
// connection. One session serves one account's unit of work: connect,
// authenticate, enumerate, download, disconnect. Implementations live
// outside this module; tests use fakes.
type SteamSession interface {
	// Connect establishes the network session.
	Connect(ctx context.Context) error

	// Authenticate exchanges the account's credentials for an
	// AuthOutcome. It never returns a Go error directly: terminal
	// denials and transient failures are both carried in the outcome.
	Authenticate(ctx context.Context, rec model.AccountRecord) model.AuthOutcome

	// ListOwnedDepotManifests enumerates the manifests currently
	// licensed to the authenticated account.
	ListOwnedDepotManifests(ctx context.Context) ([]model.ManifestKey, error)

	// DownloadManifest fetches the raw manifest payload.
	DownloadManifest(ctx context.Context, key model.ManifestKey) ([]byte, error)

	// Disconnect tears the session down. Invoked on every exit path.
	Disconnect()
}

// SessionFactory produces a fresh SteamSession for each account unit of
// work.
type SessionFactory func() SteamSession
