// Package gitrepo implements the repository transport on a git worktree
// driven through the git binary: blobs are files, retention markers are
// tags, and CommitAndPush flushes staged writes as one commit.
package gitrepo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/depotvault/depotvault/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.RepoTransport = (*Transport)(nil)

// Transport drives a git worktree. All mutating operations hold the
// write mutex: git does not tolerate concurrent index updates, so the
// transport is the single writer the storage policy expects. Reads go
// straight to the worktree files and take no lock.
type Transport struct {
	dir    string
	remote string

	mu      sync.Mutex
	pending []string // tags awaiting the next commit
}

// New opens the worktree at dir. remote names the push target; empty
// means commit locally without pushing.
func New(dir, remote string) (*Transport, error) {
	if _, err := os.Stat(filepath.Join(dir, ".git")); err != nil {
		return nil, fmt.Errorf("%s is not a git worktree: %w", dir, err)
	}
	return &Transport{dir: dir, remote: remote}, nil
}

// ReadBlob returns the file stored under key, or driven.ErrBlobNotFound.
func (t *Transport) ReadBlob(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(t.dir, filepath.FromSlash(key)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, driven.ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read blob %q: %w", key, err)
	}
	return data, nil
}

// WriteBlobIfAbsent writes and stages the file unless it already exists.
func (t *Transport) WriteBlobIfAbsent(ctx context.Context, key string, data []byte) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	path := filepath.Join(t.dir, filepath.FromSlash(key))
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("stat blob %q: %w", key, err)
	}

	if err := t.writeAndStage(ctx, key, path, data); err != nil {
		return false, err
	}
	return true, nil
}

// WriteBlob writes and stages the file, replacing any existing content.
func (t *Transport) WriteBlob(ctx context.Context, key string, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.writeAndStage(ctx, key, filepath.Join(t.dir, filepath.FromSlash(key)), data)
}

func (t *Transport) writeAndStage(ctx context.Context, key, path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("write blob %q: %w", key, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write blob %q: %w", key, err)
	}
	if _, err := t.git(ctx, "add", "--", key); err != nil {
		return fmt.Errorf("stage blob %q: %w", key, err)
	}
	return nil
}

// DeleteBlob removes and stages the removal of the file. Absent keys are
// not an error.
func (t *Transport) DeleteBlob(ctx context.Context, key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := t.git(ctx, "rm", "-f", "-q", "--ignore-unmatch", "--", key); err != nil {
		return fmt.Errorf("delete blob %q: %w", key, err)
	}
	return nil
}

// ListBlobs walks the worktree and returns forward-slash keys under the
// prefix. The .git directory is skipped.
func (t *Transport) ListBlobs(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(t.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(t.dir, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list blobs %q: %w", prefix, err)
	}
	return keys, nil
}

// CreateTag records a tag to be materialized by the next CommitAndPush,
// so the tag ends up pointing at the commit that contains the writes it
// protects. Re-creating an existing tag is a no-op.
func (t *Transport) CreateTag(ctx context.Context, name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	existing, err := t.git(ctx, "tag", "--list", name)
	if err != nil {
		return fmt.Errorf("check tag %q: %w", name, err)
	}
	if strings.TrimSpace(existing) != "" {
		return nil
	}
	for _, p := range t.pending {
		if p == name {
			return nil
		}
	}
	t.pending = append(t.pending, name)
	return nil
}

// ListTags returns all tag names.
func (t *Transport) ListTags(ctx context.Context) ([]string, error) {
	out, err := t.git(ctx, "tag", "--list")
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	var names []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

// DeleteTag removes the tag locally and, when a remote is configured,
// deletes it from the remote as well. The commit the tag pointed at is
// untouched.
func (t *Transport) DeleteTag(ctx context.Context, name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := t.git(ctx, "tag", "-d", name); err != nil {
		return fmt.Errorf("delete tag %q: %w", name, err)
	}
	if t.remote != "" {
		if _, err := t.git(ctx, "push", t.remote, ":refs/tags/"+name); err != nil {
			return fmt.Errorf("push tag deletion %q: %w", name, err)
		}
	}
	return nil
}

// CommitAndPush commits everything staged since the last flush,
// materializes pending tags against the new commit, and pushes the
// branch plus tags. A flush with nothing staged and no pending tags is
// a no-op.
func (t *Transport) CommitAndPush(ctx context.Context, message string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	// diff --cached exits 1 when something is staged.
	staged := false
	if _, err := t.git(ctx, "diff", "--cached", "--quiet"); err != nil {
		staged = true
	}
	if !staged && len(t.pending) == 0 {
		return nil
	}

	if staged {
		if _, err := t.git(ctx, "commit", "-m", message); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
	}

	for _, name := range t.pending {
		if _, err := t.git(ctx, "tag", name); err != nil {
			return fmt.Errorf("create tag %q: %w", name, err)
		}
	}
	t.pending = nil

	if t.remote != "" {
		if _, err := t.git(ctx, "push", t.remote, "HEAD", "--tags"); err != nil {
			return fmt.Errorf("push: %w", err)
		}
	}
	return nil
}

func (t *Transport) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = t.dir
	var out, errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(errOut.String()))
	}
	return out.String(), nil
}
