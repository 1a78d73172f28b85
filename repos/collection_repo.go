package repos

import (
	"context"

	"github.com/bbc/tams-core/cmn"
	"github.com/bbc/tams-core/metastore"
)

// CollectionRepo answers membership-reversal queries: given a collection
// id, who are its members, and given a source/flow id, which collections
// does it belong to. SourceRepo/FlowRepo own the forward join-row writes;
// this repo is the read-side complement used by refengine's cascade checks.
type CollectionRepo struct{ store }

func NewCollectionRepo(ms metastore.Store) *CollectionRepo { return &CollectionRepo{newStore(ms)} }

func (r *CollectionRepo) SourceCollectionsContaining(ctx context.Context, sourceID string) ([]string, *cmn.TError) {
	rows, err := r.ms.Query(ctx, metastore.QuerySpec{
		Table: "source_collection_members",
		Where: []metastore.Predicate{
			{Column: "source_id", Op: "=", Value: sourceID},
			{Column: "deleted", Op: "=", Value: uint8(0)},
		},
	})
	if err != nil {
		return nil, wrapStorageErr("collection.source_collections_containing", err)
	}
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, asString(row["collection_id"]))
	}
	return out, nil
}

func (r *CollectionRepo) FlowCollectionsContaining(ctx context.Context, flowID string) ([]string, *cmn.TError) {
	rows, err := r.ms.Query(ctx, metastore.QuerySpec{
		Table: "flow_collection_members",
		Where: []metastore.Predicate{
			{Column: "flow_id", Op: "=", Value: flowID},
			{Column: "deleted", Op: "=", Value: uint8(0)},
		},
	})
	if err != nil {
		return nil, wrapStorageErr("collection.flow_collections_containing", err)
	}
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, asString(row["collection_id"]))
	}
	return out, nil
}
