// Package segpipeline drives the three-phase segment write: Phase A mints
// object ids and presigned PUT URLs, Phase B is the client's out-of-band
// upload straight to object storage, and Phase C registers the uploaded
// segment's metadata. The read path mirrors this by decorating a listed
// Segment with fresh presigned GET URLs on every response.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package segpipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bbc/tams-core/cmn"
	"github.com/bbc/tams-core/core"
	"github.com/bbc/tams-core/objstore"
	"github.com/bbc/tams-core/repos"
)

// AllocationResult is the Phase A response: a freshly minted object id, the
// object-store key it will be written under, and the presigned PUT URL a
// client uploads bytes to.
type AllocationResult struct {
	ObjectID    string
	StoragePath string
	PutURL      string
}

// RegisterInput is the Phase C request: the allocated object id plus the
// segment metadata the client observed after uploading. StoragePath should
// echo back the value AllocationResult carried for this object; if the
// caller omits it, Register recomputes it using today's date, which is only
// correct so long as registration happens the same day as allocation.
type RegisterInput struct {
	FlowID        string
	ObjectID      string
	StoragePath   string
	Timerange     string
	TsOffset      string
	LastDuration  string
	SampleOffset  *int64
	SampleCount   *int64
	KeyFrameCount *int64
	Size          int64
}

// Pipeline wires the repos and object store a segment write/read needs. One
// Pipeline per StorageBackend the service is configured to write new
// segments to; reads fan out across every backend an object might live on.
type Pipeline struct {
	Backend    *core.StorageBackend
	Objects    objstore.Store
	ObjectRepo *repos.ObjectRepo
	FlowRepo   *repos.FlowRepo
	SegRepo    *repos.SegmentRepo
	PresignTTL time.Duration

	// StoragePrefix is the process-wide object-key prefix every storage
	// path is minted under (cmn.Config.TamsStoragePath), shared by every
	// backend rather than varying per backend.
	StoragePrefix string
}

func New(backend *core.StorageBackend, objects objstore.Store, objectRepo *repos.ObjectRepo, flowRepo *repos.FlowRepo, segRepo *repos.SegmentRepo, presignTTL time.Duration, storagePrefix string) *Pipeline {
	return &Pipeline{
		Backend:       backend,
		Objects:       objects,
		ObjectRepo:    objectRepo,
		FlowRepo:      flowRepo,
		SegRepo:       segRepo,
		PresignTTL:    presignTTL,
		StoragePrefix: storagePrefix,
	}
}

const defaultAllocateLimit = 10

// storagePath computes the canonical, date-partitioned object-store key for
// objectID. The date is the key's creation date; once minted, a key never
// changes, so created must be fixed at allocation time and carried forward
// rather than recomputed from "now" at every later step.
func (p *Pipeline) storagePath(objectID string, created time.Time) string {
	created = created.UTC()
	return fmt.Sprintf("%s/%04d/%02d/%02d/%s", p.StoragePrefix, created.Year(), created.Month(), created.Day(), objectID)
}

// Allocate runs Phase A: mints object ids, computes each one's canonical
// storage key, and presigns a PUT URL against that key. It does not create
// any Object or Segment row — those only exist once Register (Phase C)
// confirms the bytes actually landed. An allocation the client never
// follows through on leaks nothing but an unused object-store key.
//
// If objectIDs is non-empty, every id in it must not already have bytes at
// its computed storage key — allocation checks the object store directly
// and rejects the whole batch otherwise, since reusing a key would let a
// second writer race a segment onto bytes a prior writer already uploaded.
// If objectIDs is empty, limit (default defaultAllocateLimit) fresh UUIDs
// are minted instead.
func (p *Pipeline) Allocate(ctx context.Context, flowID string, objectIDs []string, limit int) ([]*AllocationResult, *cmn.TError) {
	flow, terr := p.FlowRepo.Get(ctx, flowID)
	if terr != nil {
		return nil, terr
	}
	if flow.ReadOnly {
		return nil, cmn.NewForbidden("flow is read-only")
	}

	ids := objectIDs
	if len(ids) == 0 {
		if limit <= 0 {
			limit = defaultAllocateLimit
		}
		ids = make([]string, limit)
		for i := range ids {
			ids[i] = uuid.NewString()
		}
	}

	now := time.Now()
	paths := make([]string, len(ids))
	for i, id := range ids {
		paths[i] = p.storagePath(id, now)
	}
	if len(objectIDs) > 0 {
		for i, path := range paths {
			exists, err := p.Objects.Exists(ctx, path)
			if err != nil {
				return nil, cmn.NewStorageErr("exists", err)
			}
			if exists {
				return nil, cmn.NewBadRequest("object_ids must not already exist: " + ids[i])
			}
		}
	}

	// Presigning is pure I/O against the object store and independent per
	// id, so fan it out instead of paying round-trip latency len(ids) times.
	out := make([]*AllocationResult, len(ids))
	grp, gctx := errgroup.WithContext(ctx)
	for i, objectID := range ids {
		i, objectID, path := i, objectID, paths[i]
		grp.Go(func() error {
			putURL, err := p.Objects.PresignPut(gctx, path, p.PresignTTL)
			if err != nil {
				return err
			}
			out[i] = &AllocationResult{ObjectID: objectID, StoragePath: path, PutURL: putURL}
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, cmn.NewStorageErr("presign_put", err)
	}
	return out, nil
}

// Register runs Phase C: confirms the object was actually uploaded, creates
// its Object row now that the size is known, records the flow/object
// reference, and writes the Segment row.
func (p *Pipeline) Register(ctx context.Context, in RegisterInput) *cmn.TError {
	flow, terr := p.FlowRepo.Get(ctx, in.FlowID)
	if terr != nil {
		return terr
	}
	if flow.ReadOnly {
		return cmn.NewForbidden("flow is read-only")
	}

	path := in.StoragePath
	if path == "" {
		path = p.storagePath(in.ObjectID, time.Now())
	}
	exists, err := p.Objects.Exists(ctx, path)
	if err != nil {
		return cmn.NewStorageErr("exists", err)
	}
	if !exists {
		return cmn.NewBadRequest("object was not uploaded before registration")
	}

	created := time.Now()
	size := in.Size
	if terr := p.ObjectRepo.Create(ctx, &core.Object{
		ID:               in.ObjectID,
		Size:             &size,
		Created:          &created,
		StorageBackendID: p.Backend.ID,
	}); terr != nil {
		return terr
	}
	if terr := p.ObjectRepo.AddReference(ctx, core.FlowObjectReference{
		ObjectID:  in.ObjectID,
		FlowID:    in.FlowID,
		Timerange: in.Timerange,
	}); terr != nil {
		return terr
	}
	return p.SegRepo.Create(ctx, &core.Segment{
		FlowID:        in.FlowID,
		ObjectID:      in.ObjectID,
		Timerange:     in.Timerange,
		TsOffset:      in.TsOffset,
		LastDuration:  in.LastDuration,
		SampleOffset:  in.SampleOffset,
		SampleCount:   in.SampleCount,
		KeyFrameCount: in.KeyFrameCount,
		StoragePath:   path,
	})
}

// DecorateGetURLs mints a fresh, time-limited GET URL for every segment
// passed in, mutating them in place. URLs are never cached or stored: a
// listing response always carries URLs valid for at least PresignTTL from
// the moment it is served.
func (p *Pipeline) DecorateGetURLs(ctx context.Context, segs []*core.Segment) *cmn.TError {
	for _, s := range segs {
		path := s.StoragePath
		if path == "" {
			// Segments written before storage_path existed fall back to
			// the raw object id, which was the key used at the time.
			path = s.ObjectID
		}
		url, err := p.Objects.PresignGet(ctx, path, p.PresignTTL)
		if err != nil {
			return cmn.NewStorageErr("presign_get", err)
		}
		s.GetURLs = append(s.GetURLs, core.GetURL{
			URL:              url,
			Label:            "default",
			StorageID:        p.Backend.ID,
			StoreType:        p.Backend.StoreType,
			Provider:         p.Backend.Provider,
			Region:           p.Backend.Region,
			AvailabilityZone: p.Backend.AvailabilityZone,
			StoreProduct:     p.Backend.StoreProduct,
			Presigned:        true,
			Controlled:       true,
		})
	}
	return nil
}
