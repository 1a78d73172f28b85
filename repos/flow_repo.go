package repos

import (
	"context"

	"github.com/bbc/tams-core/cmn"
	"github.com/bbc/tams-core/core"
	"github.com/bbc/tams-core/metastore"
)

// FlowRepo owns the flows table and its flow_collection_members join table.
type FlowRepo struct{ store }

func NewFlowRepo(ms metastore.Store) *FlowRepo { return &FlowRepo{newStore(ms)} }

func (r *FlowRepo) Create(ctx context.Context, f *core.Flow) *cmn.TError {
	return wrapStorageErr("flow.create", r.ms.Insert(ctx, "flows", flowToRow(f)))
}

func (r *FlowRepo) Get(ctx context.Context, id string) (*core.Flow, *cmn.TError) {
	rows, err := r.ms.Query(ctx, metastore.QuerySpec{
		Table: "flows",
		Where: []metastore.Predicate{{Column: "id", Op: "=", Value: id}, {Column: "deleted", Op: "=", Value: uint8(0)}},
		Limit: 1,
	})
	if err != nil {
		return nil, wrapStorageErr("flow.get", err)
	}
	if len(rows) == 0 {
		return nil, cmn.NewNotFound("flow", id)
	}
	return rowToFlow(rows[0]), nil
}

func (r *FlowRepo) Update(ctx context.Context, f *core.Flow) *cmn.TError {
	return wrapStorageErr("flow.update", r.ms.Insert(ctx, "flows", flowToRow(f)))
}

func (r *FlowRepo) Delete(ctx context.Context, id string) *cmn.TError {
	return wrapStorageErr("flow.delete", r.ms.Delete(ctx, "flows", []metastore.Predicate{
		{Column: "id", Op: "=", Value: id},
	}))
}

func (r *FlowRepo) ListBySource(ctx context.Context, sourceID string, limit int) ([]*core.Flow, *cmn.TError) {
	rows, err := r.ms.Query(ctx, metastore.QuerySpec{
		Table: "flows",
		Where: []metastore.Predicate{
			{Column: "source_id", Op: "=", Value: sourceID},
			{Column: "deleted", Op: "=", Value: uint8(0)},
		},
		OrderBy: "id",
		Limit:   limit,
	})
	if err != nil {
		return nil, wrapStorageErr("flow.list_by_source", err)
	}
	out := make([]*core.Flow, 0, len(rows))
	for _, row := range rows {
		out = append(out, rowToFlow(row))
	}
	return out, nil
}

// ListMultiMembers returns the flow ids a MultiFlow collects, in insertion
// order.
func (r *FlowRepo) ListMultiMembers(ctx context.Context, collectionID string) ([]string, *cmn.TError) {
	rows, err := r.ms.Query(ctx, metastore.QuerySpec{
		Table: "flow_collection_members",
		Where: []metastore.Predicate{
			{Column: "collection_id", Op: "=", Value: collectionID},
			{Column: "deleted", Op: "=", Value: uint8(0)},
		},
	})
	if err != nil {
		return nil, wrapStorageErr("flow.list_multi_members", err)
	}
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, asString(row["flow_id"]))
	}
	return out, nil
}

func (r *FlowRepo) AddMultiMember(ctx context.Context, m core.FlowCollectionMember) *cmn.TError {
	return wrapStorageErr("flow.add_multi_member", r.ms.Insert(ctx, "flow_collection_members", metastore.Row{
		"flow_id":       m.FlowID,
		"collection_id": m.CollectionID,
		"ver":           verStamp(),
		"deleted":       uint8(0),
	}))
}

func flowToRow(f *core.Flow) metastore.Row {
	row := metastore.Row{
		"id":               f.ID,
		"source_id":        f.SourceID,
		"format":           f.Format,
		"codec":            f.Codec,
		"label":            f.Label,
		"description":      f.Description,
		"tags":             tagsToJSON(f.Tags),
		"read_only":        f.ReadOnly,
		"generation":       f.Generation,
		"container":        f.Container,
		"frame_width":      f.FrameWidth,
		"frame_height":     f.FrameHeight,
		"sample_rate":      f.SampleRate,
		"bits_per_sample":  f.BitsPerSample,
		"channels":         f.Channels,
		"flow_collection":  f.FlowCollection,
		"created":          toRFC3339(f.Created),
		"metadata_updated": toRFC3339(f.MetadataUpdated),
		"segments_updated": toRFC3339(f.SegmentsUpdated),
		"ver":              verStamp(),
		"deleted":          uint8(0),
	}
	if f.FrameRate != nil {
		row["frame_rate_num"] = f.FrameRate.Numerator
		row["frame_rate_den"] = f.FrameRate.Denominator
	}
	return row
}

func rowToFlow(row metastore.Row) *core.Flow {
	f := &core.Flow{
		ID:              asString(row["id"]),
		SourceID:        asString(row["source_id"]),
		Format:          asString(row["format"]),
		Codec:           asString(row["codec"]),
		Label:           asString(row["label"]),
		Description:     asString(row["description"]),
		Tags:            tagsFromJSON(asString(row["tags"])),
		ReadOnly:        asBool(row["read_only"]),
		Generation:      asInt64(row["generation"]),
		Container:       asString(row["container"]),
		FrameWidth:      asNullableInt64(row["frame_width"]),
		FrameHeight:     asNullableInt64(row["frame_height"]),
		SampleRate:      asNullableInt64(row["sample_rate"]),
		BitsPerSample:   asNullableInt64(row["bits_per_sample"]),
		Channels:        asNullableInt64(row["channels"]),
		FlowCollection:  asStrings(row["flow_collection"]),
		Created:         parseRFC3339(row["created"]),
		MetadataUpdated: parseRFC3339(row["metadata_updated"]),
		SegmentsUpdated: parseRFC3339(row["segments_updated"]),
	}
	if row["frame_rate_num"] != nil && row["frame_rate_den"] != nil {
		f.FrameRate = &core.Rational{
			Numerator:   asInt64(row["frame_rate_num"]),
			Denominator: asInt64(row["frame_rate_den"]),
		}
	}
	return f
}
