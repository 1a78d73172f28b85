// Package objstore is the payload-bytes side of the store: every media
// segment's actual bytes live behind this interface, addressed by their
// object-store key (the Segment's storage path), while core/metastore only
// ever carries pointers to them.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package objstore

import (
	"context"
	"io"
	"time"
)

// Store is the object-storage contract segpipeline drives.
// One Store instance is bound to one StorageBackend.
type Store interface {
	// EnsureBucket creates the backing bucket if it does not already exist.
	EnsureBucket(ctx context.Context) error

	// PresignPut mints a time-limited PUT URL for objectID, used in the
	// Phase A allocate response so the client can upload directly without
	// routing bytes through this process.
	PresignPut(ctx context.Context, objectID string, ttl time.Duration) (string, error)

	// PresignGet mints a time-limited GET URL for objectID.
	PresignGet(ctx context.Context, objectID string, ttl time.Duration) (string, error)

	// Put uploads src under objectID, used by server-side paths (admin
	// tooling, tests) that don't go through the presigned-URL dance.
	Put(ctx context.Context, objectID string, src io.Reader, size int64) error

	// Get opens objectID for reading. Callers must close the reader.
	Get(ctx context.Context, objectID string) (io.ReadCloser, error)

	// Head returns the size of objectID, or ErrNotExist if it isn't there.
	Head(ctx context.Context, objectID string) (size int64, err error)

	// Exists reports whether objectID has been uploaded.
	Exists(ctx context.Context, objectID string) (bool, error)

	// Delete removes objectID. Deleting a missing key is not an error.
	Delete(ctx context.Context, objectID string) error

	// Copy duplicates srcObjectID's bytes to dstObjectID within the same
	// bucket, used when an object needs to move between storage classes.
	Copy(ctx context.Context, srcObjectID, dstObjectID string) error
}
