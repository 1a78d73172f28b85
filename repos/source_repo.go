package repos

import (
	"context"

	"github.com/bbc/tams-core/cmn"
	"github.com/bbc/tams-core/core"
	"github.com/bbc/tams-core/metastore"
)

// SourceRepo owns the sources table and its source_collection_members join
// table.
type SourceRepo struct{ store }

func NewSourceRepo(ms metastore.Store) *SourceRepo { return &SourceRepo{newStore(ms)} }

func (r *SourceRepo) Create(ctx context.Context, s *core.Source) *cmn.TError {
	return wrapStorageErr("source.create", r.ms.Insert(ctx, "sources", sourceToRow(s)))
}

func (r *SourceRepo) Get(ctx context.Context, id string) (*core.Source, *cmn.TError) {
	rows, err := r.ms.Query(ctx, metastore.QuerySpec{
		Table: "sources",
		Where: []metastore.Predicate{{Column: "id", Op: "=", Value: id}, {Column: "deleted", Op: "=", Value: uint8(0)}},
		Limit: 1,
	})
	if err != nil {
		return nil, wrapStorageErr("source.get", err)
	}
	if len(rows) == 0 {
		return nil, cmn.NewNotFound("source", id)
	}
	s := rowToSource(rows[0])
	members, terr := r.collectionMembers(ctx, id)
	if terr != nil {
		return nil, terr
	}
	s.SourceCollection = members
	return s, nil
}

func (r *SourceRepo) Update(ctx context.Context, s *core.Source) *cmn.TError {
	return wrapStorageErr("source.update", r.ms.Insert(ctx, "sources", sourceToRow(s)))
}

// Delete removes the source row through the store's Delete. Reference-integrity checks (whether any
// Flow still points at this source) are refengine's job, not the repo's.
func (r *SourceRepo) Delete(ctx context.Context, id string) *cmn.TError {
	return wrapStorageErr("source.delete", r.ms.Delete(ctx, "sources", []metastore.Predicate{
		{Column: "id", Op: "=", Value: id},
	}))
}

func (r *SourceRepo) List(ctx context.Context, limit int) ([]*core.Source, *cmn.TError) {
	rows, err := r.ms.Query(ctx, metastore.QuerySpec{
		Table: "sources",
		Where: []metastore.Predicate{{Column: "deleted", Op: "=", Value: uint8(0)}},
		OrderBy: "id",
		Limit:   limit,
	})
	if err != nil {
		return nil, wrapStorageErr("source.list", err)
	}
	out := make([]*core.Source, 0, len(rows))
	for _, row := range rows {
		out = append(out, rowToSource(row))
	}
	return out, nil
}

func (r *SourceRepo) AddCollectionMember(ctx context.Context, m core.SourceCollectionMember) *cmn.TError {
	return wrapStorageErr("source.add_collection_member", r.ms.Insert(ctx, "source_collection_members", metastore.Row{
		"source_id":     m.SourceID,
		"collection_id": m.CollectionID,
		"label":         m.Label,
		"ver":           verStamp(),
		"deleted":       uint8(0),
	}))
}

func (r *SourceRepo) collectionMembers(ctx context.Context, sourceID string) ([]core.CollectionRef, *cmn.TError) {
	rows, err := r.ms.Query(ctx, metastore.QuerySpec{
		Table: "source_collection_members",
		Where: []metastore.Predicate{
			{Column: "source_id", Op: "=", Value: sourceID},
			{Column: "deleted", Op: "=", Value: uint8(0)},
		},
	})
	if err != nil {
		return nil, wrapStorageErr("source.collection_members", err)
	}
	out := make([]core.CollectionRef, 0, len(rows))
	for _, row := range rows {
		out = append(out, core.CollectionRef{
			CollectionID: asString(row["collection_id"]),
			Label:        asString(row["label"]),
		})
	}
	return out, nil
}

func sourceToRow(s *core.Source) metastore.Row {
	return metastore.Row{
		"id":               s.ID,
		"format":           s.Format,
		"label":            s.Label,
		"description":      s.Description,
		"tags":             tagsToJSON(s.Tags),
		"collected_by":     s.CollectedBy,
		"created":          toRFC3339(s.Created),
		"metadata_updated": toRFC3339(s.MetadataUpdated),
		"created_by":       s.CreatedBy,
		"updated_by":       s.UpdatedBy,
		"ver":              verStamp(),
		"deleted":          uint8(0),
	}
}

func rowToSource(row metastore.Row) *core.Source {
	return &core.Source{
		ID:              asString(row["id"]),
		Format:          asString(row["format"]),
		Label:           asString(row["label"]),
		Description:     asString(row["description"]),
		Tags:            tagsFromJSON(asString(row["tags"])),
		CollectedBy:     asStrings(row["collected_by"]),
		Created:         parseRFC3339(row["created"]),
		MetadataUpdated: parseRFC3339(row["metadata_updated"]),
		CreatedBy:       asString(row["created_by"]),
		UpdatedBy:       asString(row["updated_by"]),
	}
}
