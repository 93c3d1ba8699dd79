package sqlite

import (
	"fmt"
	"net/url"
	"testing"
)

// newTestTransport opens a Transport over a named shared in-memory
// database, schema applied, torn down with the test. The name comes
// from t.Name() so parallel tests never share state; WAL does not apply
// to in-memory databases, so the journal pragma is omitted.
func newTestTransport(t *testing.T) *Transport {
	t.Helper()

	// Percent-encode the test name: subtest names contain '/', which
	// would otherwise split the SQLite URI.
	dsn := fmt.Sprintf(
		"file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=cache_size(-64000)",
		url.PathEscape(t.Name()),
	)

	tr, err := openDSN(dsn)
	if err != nil {
		t.Fatalf("open test transport: %v", err)
	}
	t.Cleanup(func() { _ = tr.Close() })

	return tr
}
