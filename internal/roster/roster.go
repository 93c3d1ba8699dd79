// Package roster ingests operator-supplied account lists for targeted
// passes. A roster file is a JSON array of entries, optionally wrapped
// in an age-encrypted envelope.
package roster

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"os"

	"github.com/depotvault/depotvault/internal/cipher"
	"github.com/depotvault/depotvault/internal/domain/model"
)

// Entry is one operator-supplied account.
type Entry struct {
	Name         string `json:"name"`
	Password     string `json:"password,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// Load reads and decodes the roster at path, unwrapping an envelope when
// the opener holds the matching key.
func Load(path string, opener *cipher.EnvelopeOpener) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster %s: %w", path, err)
	}

	data = opener.Unwrap(data)

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode roster %s: %w", path, err)
	}
	for i, e := range entries {
		if e.Name == "" {
			return nil, fmt.Errorf("roster %s: entry %d has no name", path, i)
		}
	}
	return entries, nil
}

// Shard returns the subset of entries owned by shard index out of count
// cooperating processes. The partition is a deterministic hash of the
// account name, so every entry lands in exactly one shard regardless of
// roster ordering.
func Shard(entries []Entry, index, count int) []Entry {
	if count <= 1 {
		return entries
	}
	var out []Entry
	for _, e := range entries {
		h := fnv.New32a()
		h.Write([]byte(e.Name))
		if int(h.Sum32())%count == index {
			out = append(out, e)
		}
	}
	return out
}

// Records converts roster entries to account records for the scheduler.
func Records(entries []Entry) []model.AccountRecord {
	records := make([]model.AccountRecord, 0, len(entries))
	for _, e := range entries {
		records = append(records, model.AccountRecord{
			Name:         e.Name,
			Password:     e.Password,
			RefreshToken: e.RefreshToken,
		})
	}
	return records
}
