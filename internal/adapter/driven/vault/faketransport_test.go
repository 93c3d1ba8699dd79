package vault

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/depotvault/depotvault/internal/domain/port/driven"
)

// memTransport is an in-memory RepoTransport that counts mutations so
// tests can assert on persisted-change counts.
type memTransport struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	tags    map[string]bool
	writes  int
	commits int
}

var _ driven.RepoTransport = (*memTransport)(nil)

func newMemTransport() *memTransport {
	return &memTransport{
		blobs: make(map[string][]byte),
		tags:  make(map[string]bool),
	}
}

func (m *memTransport) ReadBlob(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[key]
	if !ok {
		return nil, driven.ErrBlobNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *memTransport) WriteBlobIfAbsent(_ context.Context, key string, data []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[key]; ok {
		return false, nil
	}
	m.blobs[key] = append([]byte(nil), data...)
	m.writes++
	return true, nil
}

func (m *memTransport) WriteBlob(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = append([]byte(nil), data...)
	m.writes++
	return nil
}

func (m *memTransport) DeleteBlob(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, key)
	return nil
}

func (m *memTransport) ListBlobs(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for key := range m.blobs {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *memTransport) CreateTag(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tags[name] = true
	return nil
}

func (m *memTransport) ListTags(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for name := range m.tags {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *memTransport) DeleteTag(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tags, name)
	return nil
}

func (m *memTransport) CommitAndPush(_ context.Context, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commits++
	return nil
}

func (m *memTransport) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}
