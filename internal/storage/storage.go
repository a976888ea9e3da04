// Package storage persists staged files to durable remote storage.
// Swap backends by changing the concrete type injected at startup: the GitHub
// backend commits each file into a repository, the MinIO backend works with any
// S3-compatible provider.
package storage

import (
	"context"

	gerrors "github.com/goliatone/go-errors"
)

var (
	// ErrRemotePersist is returned when a file could not be pushed to the remote store.
	// No URL may be issued for an upload that failed with this error.
	ErrRemotePersist = gerrors.New("Error uploading file to remote storage.", gerrors.CategoryExternal).
				WithCode(500).
				WithTextCode("REMOTE_PERSIST_FAILURE")

	// ErrRejected marks a remote failure that retrying cannot fix (bad credentials,
	// missing repository, validation errors).
	ErrRejected = gerrors.New("remote store rejected the request", gerrors.CategoryExternal).
			WithTextCode("REMOTE_REJECTED")
)

// Backend is the opaque "create-or-update file" operation offered by a remote store.
// Put either fully succeeds or fails; callers never observe partial writes.
type Backend interface {
	// Put creates or replaces the object at key with content, recording message
	// as the change description.
	Put(ctx context.Context, key string, content []byte, message string) error
}
