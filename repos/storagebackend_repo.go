package repos

import (
	"context"

	"github.com/bbc/tams-core/cmn"
	"github.com/bbc/tams-core/core"
	"github.com/bbc/tams-core/metastore"
)

// StorageBackendRepo owns the storage_backends table. Rows are seeded from
// process Config at startup and are read-only to API clients thereafter.
type StorageBackendRepo struct{ store }

func NewStorageBackendRepo(ms metastore.Store) *StorageBackendRepo {
	return &StorageBackendRepo{newStore(ms)}
}

// Seed inserts or replaces a storage backend row. Enforces the
// at-most-one-default invariant: seeding a backend with DefaultStorage set
// clears that flag on every other existing backend first, so two backends
// can never both claim default_storage=true.
func (r *StorageBackendRepo) Seed(ctx context.Context, b *core.StorageBackend) *cmn.TError {
	if b.DefaultStorage {
		if terr := r.clearOtherDefaults(ctx, b.ID); terr != nil {
			return terr
		}
	}
	return wrapStorageErr("storagebackend.seed", r.ms.Insert(ctx, "storage_backends", storageBackendToRow(b)))
}

func (r *StorageBackendRepo) clearOtherDefaults(ctx context.Context, exceptID string) *cmn.TError {
	backends, terr := r.List(ctx)
	if terr != nil {
		return terr
	}
	for _, b := range backends {
		if b.ID == exceptID || !b.DefaultStorage {
			continue
		}
		b.DefaultStorage = false
		if terr := wrapStorageErr("storagebackend.clear_default", r.ms.Insert(ctx, "storage_backends", storageBackendToRow(b))); terr != nil {
			return terr
		}
	}
	return nil
}

// FindDefault returns the backend with DefaultStorage set. If none has been
// explicitly marked default (e.g. a single-backend deployment that never
// bothered), it falls back to the first backend in id order.
func (r *StorageBackendRepo) FindDefault(ctx context.Context) (*core.StorageBackend, *cmn.TError) {
	backends, terr := r.List(ctx)
	if terr != nil {
		return nil, terr
	}
	for _, b := range backends {
		if b.DefaultStorage {
			return b, nil
		}
	}
	if len(backends) > 0 {
		return backends[0], nil
	}
	return nil, cmn.NewNotFound("storage_backend", "default")
}

func (r *StorageBackendRepo) Get(ctx context.Context, id string) (*core.StorageBackend, *cmn.TError) {
	rows, err := r.ms.Query(ctx, metastore.QuerySpec{
		Table: "storage_backends",
		Where: []metastore.Predicate{{Column: "id", Op: "=", Value: id}},
		Limit: 1,
	})
	if err != nil {
		return nil, wrapStorageErr("storagebackend.get", err)
	}
	if len(rows) == 0 {
		return nil, cmn.NewNotFound("storage_backend", id)
	}
	return rowToStorageBackend(rows[0]), nil
}

func (r *StorageBackendRepo) List(ctx context.Context) ([]*core.StorageBackend, *cmn.TError) {
	rows, err := r.ms.Query(ctx, metastore.QuerySpec{Table: "storage_backends", OrderBy: "id"})
	if err != nil {
		return nil, wrapStorageErr("storagebackend.list", err)
	}
	out := make([]*core.StorageBackend, 0, len(rows))
	for _, row := range rows {
		out = append(out, rowToStorageBackend(row))
	}
	return out, nil
}

func storageBackendToRow(b *core.StorageBackend) metastore.Row {
	return metastore.Row{
		"id":                b.ID,
		"label":             b.Label,
		"provider":          b.Provider,
		"bucket":            b.Bucket,
		"endpoint_url":      b.EndpointURL,
		"use_ssl":           b.UseSSL,
		"read_only":         b.ReadOnly,
		"created":           toRFC3339(b.Created),
		"store_type":        b.StoreType,
		"store_product":     b.StoreProduct,
		"region":            b.Region,
		"availability_zone": b.AvailabilityZone,
		"default_storage":   b.DefaultStorage,
		"ver":               verStamp(),
	}
}

func rowToStorageBackend(row metastore.Row) *core.StorageBackend {
	return &core.StorageBackend{
		ID:               asString(row["id"]),
		Label:            asString(row["label"]),
		Provider:         asString(row["provider"]),
		Bucket:           asString(row["bucket"]),
		EndpointURL:      asString(row["endpoint_url"]),
		UseSSL:           asBool(row["use_ssl"]),
		ReadOnly:         asBool(row["read_only"]),
		Created:          parseRFC3339(row["created"]),
		StoreType:        asString(row["store_type"]),
		StoreProduct:     asString(row["store_product"]),
		Region:           asString(row["region"]),
		AvailabilityZone: asString(row["availability_zone"]),
		DefaultStorage:   asBool(row["default_storage"]),
	}
}
