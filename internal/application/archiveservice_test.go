package application

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depotvault/depotvault/internal/adapter/driven/sqlite"
	"github.com/depotvault/depotvault/internal/adapter/driven/vault"
	"github.com/depotvault/depotvault/internal/cipher"
	"github.com/depotvault/depotvault/internal/domain/model"
	"github.com/depotvault/depotvault/internal/domain/port/driven"
)

// steamScript is the shared behavior table for fake sessions: per-account
// outcomes, owned manifests, and per-manifest download failures.
type steamScript struct {
	denied          map[string]model.DenialReason
	transientAuth   map[string]error
	noOutcome       map[string]bool
	manifests       map[string][]model.ManifestKey
	failDownload    map[string]map[uint64]error
	failNextConnect atomic.Bool

	connects    atomic.Int64
	disconnects atomic.Int64
	inFlight    atomic.Int64
	maxInFlight atomic.Int64
}

func newSteamScript() *steamScript {
	return &steamScript{
		denied:        map[string]model.DenialReason{},
		transientAuth: map[string]error{},
		noOutcome:     map[string]bool{},
		manifests:     map[string][]model.ManifestKey{},
		failDownload:  map[string]map[uint64]error{},
	}
}

func (s *steamScript) factory() driven.SessionFactory {
	return func() driven.SteamSession {
		return &fakeSession{script: s}
	}
}

// fakeSession serves one account unit of work against the shared script.
type fakeSession struct {
	script  *steamScript
	account string
}

func (f *fakeSession) Connect(_ context.Context) error {
	if f.script.failNextConnect.CompareAndSwap(true, false) {
		return errors.New("network unreachable")
	}
	f.script.connects.Add(1)
	n := f.script.inFlight.Add(1)
	for {
		cur := f.script.maxInFlight.Load()
		if n <= cur || f.script.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}
	return nil
}

func (f *fakeSession) Authenticate(_ context.Context, rec model.AccountRecord) model.AuthOutcome {
	f.account = rec.Name
	if reason, ok := f.script.denied[rec.Name]; ok {
		return model.AuthTerminalDenial(reason)
	}
	if err, ok := f.script.transientAuth[rec.Name]; ok {
		return model.AuthTransientFailure(err)
	}
	if f.script.noOutcome[rec.Name] {
		return model.AuthOutcome{}
	}
	token := rec.RefreshToken
	if token == "" {
		token = "token-" + rec.Name
	}
	return model.AuthSuccess(model.AccountInfo{Name: rec.Name, RefreshToken: token})
}

func (f *fakeSession) ListOwnedDepotManifests(_ context.Context) ([]model.ManifestKey, error) {
	return f.script.manifests[f.account], nil
}

func (f *fakeSession) DownloadManifest(_ context.Context, key model.ManifestKey) ([]byte, error) {
	if fails, ok := f.script.failDownload[f.account]; ok {
		if err, ok := fails[key.ManifestID]; ok {
			return nil, err
		}
	}
	// Slow enough that bounded pools actually overlap in tests.
	time.Sleep(time.Millisecond)
	return []byte(fmt.Sprintf("manifest-%s", key)), nil
}

func (f *fakeSession) Disconnect() {
	f.script.inFlight.Add(-1)
	f.script.disconnects.Add(1)
}

func setupVault(t *testing.T) *vault.Store {
	t.Helper()

	tr, err := sqlite.Open(filepath.Join(t.TempDir(), "vault.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })

	c, err := cipher.New("test-secret")
	require.NoError(t, err)

	return vault.New(tr, c, 30*24*time.Hour)
}

func seedAccounts(t *testing.T, store *vault.Store, names ...string) {
	t.Helper()
	ctx := context.Background()
	for _, name := range names {
		require.NoError(t, store.WriteAccount(ctx, model.AccountRecord{
			Name:         name,
			RefreshToken: "token-" + name,
		}))
	}
}

func TestRunFullRefresh_TerminalDenialRetiresAccount(t *testing.T) {
	store := setupVault(t)
	seedAccounts(t, store, "a1", "a2", "a3", "a4", "a5")

	script := newSteamScript()
	script.denied["a3"] = model.DenialAccountDisabled

	svc := NewArchiveService(store, script.factory(), Limits{AccountLimit: 2, ManifestLimit: 1}, "")
	require.NoError(t, svc.RunFullRefresh(context.Background()), "one denied account must not abort the pass")

	accounts, err := store.ListAccounts(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, accounts, 4)
	for _, rec := range accounts {
		assert.NotEqual(t, "a3", rec.Name)
	}

	assert.EqualValues(t, 5, script.connects.Load())
	assert.EqualValues(t, 5, script.disconnects.Load(), "disconnect runs on every exit path")
	assert.LessOrEqual(t, script.maxInFlight.Load(), int64(2), "no more than K accounts connected at once")
}

func TestRunFullRefresh_TransientFailureKeepsAccount(t *testing.T) {
	store := setupVault(t)
	seedAccounts(t, store, "a1", "a2")

	script := newSteamScript()
	script.transientAuth["a2"] = errors.New("protocol timeout")

	svc := NewArchiveService(store, script.factory(), Limits{AccountLimit: 2, ManifestLimit: 1}, "")
	require.NoError(t, svc.RunFullRefresh(context.Background()))

	rec, err := store.GetAccount(context.Background(), "a2")
	require.NoError(t, err)
	require.NotNil(t, rec, "transient failures leave the stored record untouched")
	assert.Equal(t, "token-a2", rec.RefreshToken)
}

func TestRunFullRefresh_ZeroOutcomeTreatedAsTransient(t *testing.T) {
	store := setupVault(t)
	seedAccounts(t, store, "a1", "a2")

	script := newSteamScript()
	script.noOutcome["a2"] = true

	svc := NewArchiveService(store, script.factory(), Limits{AccountLimit: 2, ManifestLimit: 1}, "")
	require.NoError(t, svc.RunFullRefresh(context.Background()))

	recs, err := store.ListAccounts(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, recs, 2, "an outcome with no variant set neither retires the account nor adds a record")
	for _, rec := range recs {
		assert.NotEmpty(t, rec.Name)
	}
	assert.EqualValues(t, 1, svc.accountsFailed.Load())
}

func TestRunFullRefresh_TransientDownloadFailure(t *testing.T) {
	store := setupVault(t)
	seedAccounts(t, store, "a1")

	script := newSteamScript()
	var keys []model.ManifestKey
	for i := uint64(1); i <= 10; i++ {
		keys = append(keys, model.ManifestKey{AppID: 100, DepotID: 200, ManifestID: i})
	}
	script.manifests["a1"] = keys
	script.failDownload["a1"] = map[uint64]error{7: errors.New("connection reset")}

	svc := NewArchiveService(store, script.factory(), Limits{AccountLimit: 1, ManifestLimit: 3}, "")
	require.NoError(t, svc.RunFullRefresh(context.Background()), "one failed download must not abort the pass")

	report, err := store.ReportTrackingStatus(context.Background())
	require.NoError(t, err)
	assert.Contains(t, report, "manifests written:  9")
	assert.EqualValues(t, 1, svc.downloadsFailed.Load())
}

func TestRunFullRefresh_EmptyStore(t *testing.T) {
	store := setupVault(t)
	summaryPath := filepath.Join(t.TempDir(), "summary.txt")

	script := newSteamScript()
	svc := NewArchiveService(store, script.factory(), Limits{AccountLimit: 2, ManifestLimit: 2}, summaryPath)

	require.NoError(t, svc.RunFullRefresh(context.Background()))

	summary, err := os.ReadFile(summaryPath)
	require.NoError(t, err)
	assert.Contains(t, string(summary), "accounts tracked:   0")
	assert.Contains(t, string(summary), "manifests written:  0")
	assert.Contains(t, string(summary), "tags pruned:        0")
	assert.EqualValues(t, 0, script.connects.Load())
}

func TestRunTargeted_PersistsCredentialsWithoutManifests(t *testing.T) {
	store := setupVault(t)

	script := newSteamScript()
	script.manifests["new-user"] = []model.ManifestKey{{AppID: 1, DepotID: 2, ManifestID: 3}}

	svc := NewArchiveService(store, script.factory(), Limits{AccountLimit: 1, ManifestLimit: 1}, "")
	err := svc.RunTargeted(context.Background(), []model.AccountRecord{
		{Name: "new-user", Password: "pw"},
	})
	require.NoError(t, err)

	rec, err := store.GetAccount(context.Background(), "new-user")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "token-new-user", rec.RefreshToken)

	report, err := store.ReportTrackingStatus(context.Background())
	require.NoError(t, err)
	assert.Contains(t, report, "manifests written:  0", "targeted passes never download manifests")
}

// orderingStore records the sequence of store mutations so tests can
// assert the credential write happens before any manifest write for the
// same account.
type orderingStore struct {
	driven.AccountStore
	mu     sync.Mutex
	events []string
}

func (o *orderingStore) WriteAccount(ctx context.Context, rec model.AccountRecord) error {
	o.mu.Lock()
	o.events = append(o.events, "account:"+rec.Name)
	o.mu.Unlock()
	return o.AccountStore.WriteAccount(ctx, rec)
}

func (o *orderingStore) WriteManifest(ctx context.Context, key model.ManifestKey, payload []byte) error {
	o.mu.Lock()
	o.events = append(o.events, "manifest:"+key.String())
	o.mu.Unlock()
	return o.AccountStore.WriteManifest(ctx, key, payload)
}

func TestRunFullRefresh_CredentialWriteBeforeManifestWrite(t *testing.T) {
	inner := setupVault(t)
	seedAccounts(t, inner, "a1")
	store := &orderingStore{AccountStore: inner}

	script := newSteamScript()
	script.manifests["a1"] = []model.ManifestKey{
		{AppID: 1, DepotID: 2, ManifestID: 3},
		{AppID: 1, DepotID: 2, ManifestID: 4},
	}

	// Force a token rotation so the credential write actually happens
	// during the pass.
	require.NoError(t, inner.WriteAccount(context.Background(), model.AccountRecord{Name: "a1", RefreshToken: "stale"}))

	svc := NewArchiveService(store, script.factory(), Limits{AccountLimit: 1, ManifestLimit: 2}, "")
	require.NoError(t, svc.RunFullRefresh(context.Background()))

	store.mu.Lock()
	defer store.mu.Unlock()
	accountIdx, firstManifestIdx := -1, -1
	for i, ev := range store.events {
		switch {
		case ev == "account:a1" && accountIdx == -1:
			accountIdx = i
		case ev == "manifest:1/2/3" || ev == "manifest:1/2/4":
			if firstManifestIdx == -1 {
				firstManifestIdx = i
			}
		}
	}
	require.NotEqual(t, -1, accountIdx)
	require.NotEqual(t, -1, firstManifestIdx)
	assert.Less(t, accountIdx, firstManifestIdx, "credentials persist before any manifest write for the account")
}

func TestRunFullRefresh_ConnectFailureContained(t *testing.T) {
	store := setupVault(t)
	seedAccounts(t, store, "a1", "a2")

	script := newSteamScript()
	script.failNextConnect.Store(true)

	svc := NewArchiveService(store, script.factory(), Limits{AccountLimit: 2, ManifestLimit: 1}, "")
	require.NoError(t, svc.RunFullRefresh(context.Background()))

	accounts, err := store.ListAccounts(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, accounts, 2, "transient connect failures never remove accounts")
}
