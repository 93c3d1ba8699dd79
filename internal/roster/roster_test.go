package roster

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depotvault/depotvault/internal/cipher"
)

func writeRoster(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "accounts.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func plainOpener(t *testing.T) *cipher.EnvelopeOpener {
	t.Helper()
	opener, err := cipher.NewEnvelopeOpener("")
	require.NoError(t, err)
	return opener
}

func TestLoad_PlainJSON(t *testing.T) {
	path := writeRoster(t, `[
		{"name": "alice", "password": "pw"},
		{"name": "bob", "refresh_token": "tok"}
	]`)

	entries, err := Load(path, plainOpener(t))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "alice", entries[0].Name)
	assert.Equal(t, "pw", entries[0].Password)
	assert.Equal(t, "bob", entries[1].Name)
	assert.Equal(t, "tok", entries[1].RefreshToken)
}

func TestLoad_MissingName(t *testing.T) {
	path := writeRoster(t, `[{"password": "pw"}]`)

	_, err := Load(path, plainOpener(t))
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"), plainOpener(t))
	assert.Error(t, err)
}

func TestShard_PartitionCoversAllEntriesOnce(t *testing.T) {
	var entries []Entry
	for i := 0; i < 50; i++ {
		entries = append(entries, Entry{Name: fmt.Sprintf("user-%d", i)})
	}

	const count = 4
	seen := make(map[string]int)
	for index := 0; index < count; index++ {
		for _, e := range Shard(entries, index, count) {
			seen[e.Name]++
		}
	}

	require.Len(t, seen, len(entries))
	for name, n := range seen {
		assert.Equal(t, 1, n, "entry %s must land in exactly one shard", name)
	}
}

func TestShard_SingleShardPassthrough(t *testing.T) {
	entries := []Entry{{Name: "alice"}, {Name: "bob"}}
	assert.Equal(t, entries, Shard(entries, 0, 1))
	assert.Equal(t, entries, Shard(entries, 0, 0))
}

func TestRecords(t *testing.T) {
	records := Records([]Entry{{Name: "alice", Password: "pw", RefreshToken: "tok"}})
	require.Len(t, records, 1)
	assert.Equal(t, "alice", records[0].Name)
	assert.Equal(t, "pw", records[0].Password)
	assert.Equal(t, "tok", records[0].RefreshToken)
}
