package driven

import (
	"context"
	"errors"
)

// ErrBlobNotFound is returned by RepoTransport.ReadBlob when no blob
// exists under the requested key.
var ErrBlobNotFound = errors.New("blob not found")

// RepoTransport is the driven port for the content-addressable backing
// repository. It exposes the version-control primitives the storage
// engine needs and nothing else, so the policy layer above it never
// depends on a specific backend.
//
// Implementations must serialize writes internally (the backing store
// does not support concurrent commits) and allow unlimited concurrent
// reads.
type RepoTransport interface {
	// ReadBlob returns the blob stored under key, or ErrBlobNotFound.
	ReadBlob(ctx context.Context, key string) ([]byte, error)

	// WriteBlobIfAbsent stores data under key unless a blob already
	// exists there. Returns true when a write happened.
	WriteBlobIfAbsent(ctx context.Context, key string, data []byte) (bool, error)

	// WriteBlob stores data under key, replacing any existing blob.
	WriteBlob(ctx context.Context, key string, data []byte) error

	// DeleteBlob removes the blob under key. Deleting an absent key is
	// not an error.
	DeleteBlob(ctx context.Context, key string) error

	// ListBlobs returns the keys of all blobs under the given prefix.
	ListBlobs(ctx context.Context, prefix string) ([]string, error)

	// CreateTag records a named tag pointing at the current state.
	// Creating a tag that already exists is not an error.
	CreateTag(ctx context.Context, name string) error

	// ListTags returns all tag names.
	ListTags(ctx context.Context) ([]string, error)

	// DeleteTag removes the named tag. The objects it kept reachable
	// are not touched.
	DeleteTag(ctx context.Context, name string) error

	// CommitAndPush flushes all staged writes as one commit and pushes
	// it to the configured remote, if any.
	CommitAndPush(ctx context.Context, message string) error
}
