// Package sqlite implements the repository transport on a local SQLite
// database: blobs and retention tags in two tables, with a synthetic
// commit log standing in for push. Used for offline operation and as the
// test backend.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/depotvault/depotvault/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.RepoTransport = (*Transport)(nil)

// Transport is the SQLite-backed RepoTransport. The writer pool is capped
// at one connection, which is what enforces the transport's single-writer
// discipline; reads go to a small separate pool so blob lookups never
// queue behind manifest inserts. CommitAndPush appends to a local commit
// log since there is no remote to push to.
type Transport struct {
	writer *sql.DB
	reader *sql.DB
}

// Open opens (creating if needed) the blob store at path, brings its
// schema up to date, and returns a ready Transport. WAL mode keeps
// readers lock-free against the single writer.
func Open(path string) (*Transport, error) {
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=cache_size(-64000)",
		path,
	)
	return openDSN(dsn)
}

func openDSN(dsn string) (*Transport, error) {
	writer, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open blob store writer: %w", err)
	}
	writer.SetMaxOpenConns(1)
	if err := writer.Ping(); err != nil {
		writer.Close()
		return nil, fmt.Errorf("blob store writer unavailable: %w", err)
	}

	if err := applySchema(writer); err != nil {
		writer.Close()
		return nil, err
	}

	reader, err := sql.Open("sqlite", dsn)
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("open blob store reader: %w", err)
	}
	reader.SetMaxOpenConns(4)
	if err := reader.Ping(); err != nil {
		reader.Close()
		writer.Close()
		return nil, fmt.Errorf("blob store reader unavailable: %w", err)
	}

	return &Transport{writer: writer, reader: reader}, nil
}

// Close releases both connection pools. Returns the first error seen.
func (t *Transport) Close() error {
	var firstErr error
	if err := t.reader.Close(); err != nil {
		firstErr = fmt.Errorf("close reader pool: %w", err)
	}
	if err := t.writer.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close writer pool: %w", err)
	}
	return firstErr
}

// ReadBlob returns the blob stored under key, or driven.ErrBlobNotFound.
func (t *Transport) ReadBlob(ctx context.Context, key string) ([]byte, error) {
	const query = `SELECT data FROM blobs WHERE key = ?`
	var data []byte
	err := t.reader.QueryRowContext(ctx, query, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, driven.ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read blob %q: %w", key, err)
	}
	return data, nil
}

// WriteBlobIfAbsent stores data under key unless the key exists. Returns
// true when a row was inserted.
func (t *Transport) WriteBlobIfAbsent(ctx context.Context, key string, data []byte) (bool, error) {
	const query = `INSERT INTO blobs (key, data) VALUES (?, ?) ON CONFLICT(key) DO NOTHING`
	res, err := t.writer.ExecContext(ctx, query, key, data)
	if err != nil {
		return false, fmt.Errorf("write blob %q: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("write blob %q: %w", key, err)
	}
	return n > 0, nil
}

// WriteBlob stores data under key, replacing any existing blob.
func (t *Transport) WriteBlob(ctx context.Context, key string, data []byte) error {
	const query = `INSERT OR REPLACE INTO blobs (key, data) VALUES (?, ?)`
	if _, err := t.writer.ExecContext(ctx, query, key, data); err != nil {
		return fmt.Errorf("write blob %q: %w", key, err)
	}
	return nil
}

// DeleteBlob removes the blob under key. Absent keys are not an error.
func (t *Transport) DeleteBlob(ctx context.Context, key string) error {
	const query = `DELETE FROM blobs WHERE key = ?`
	if _, err := t.writer.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("delete blob %q: %w", key, err)
	}
	return nil
}

// ListBlobs returns all blob keys under the prefix, ordered.
func (t *Transport) ListBlobs(ctx context.Context, prefix string) ([]string, error) {
	const query = `SELECT key FROM blobs WHERE key LIKE ? || '%' ORDER BY key`
	rows, err := t.reader.QueryContext(ctx, query, prefix)
	if err != nil {
		return nil, fmt.Errorf("list blobs %q: %w", prefix, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan blob key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate blob keys: %w", err)
	}
	return keys, nil
}

// CreateTag records the named tag. Re-creating an existing tag is a no-op.
func (t *Transport) CreateTag(ctx context.Context, name string) error {
	const query = `INSERT INTO tags (name) VALUES (?) ON CONFLICT(name) DO NOTHING`
	if _, err := t.writer.ExecContext(ctx, query, name); err != nil {
		return fmt.Errorf("create tag %q: %w", name, err)
	}
	return nil
}

// ListTags returns all tag names, ordered.
func (t *Transport) ListTags(ctx context.Context) ([]string, error) {
	const query = `SELECT name FROM tags ORDER BY name`
	rows, err := t.reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan tag name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tag names: %w", err)
	}
	return names, nil
}

// DeleteTag removes the named tag. Blob rows are never touched.
func (t *Transport) DeleteTag(ctx context.Context, name string) error {
	const query = `DELETE FROM tags WHERE name = ?`
	if _, err := t.writer.ExecContext(ctx, query, name); err != nil {
		return fmt.Errorf("delete tag %q: %w", name, err)
	}
	return nil
}

// CommitAndPush appends a commit-log entry. Local databases have no
// remote, so the push half is a no-op.
func (t *Transport) CommitAndPush(ctx context.Context, message string) error {
	const query = `INSERT INTO commits (message) VALUES (?)`
	if _, err := t.writer.ExecContext(ctx, query, message); err != nil {
		return fmt.Errorf("record commit: %w", err)
	}
	return nil
}
