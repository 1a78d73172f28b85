package repos

import (
	"context"

	"github.com/bbc/tams-core/cmn"
	"github.com/bbc/tams-core/core"
	"github.com/bbc/tams-core/metastore"
)

// ObjectRepo owns the objects table and the flow_object_references join
// table recording which flows/timeranges reference which objects.
type ObjectRepo struct{ store }

func NewObjectRepo(ms metastore.Store) *ObjectRepo { return &ObjectRepo{newStore(ms)} }

func (r *ObjectRepo) Create(ctx context.Context, o *core.Object) *cmn.TError {
	return wrapStorageErr("object.create", r.ms.Insert(ctx, "objects", objectToRow(o)))
}

// Get loads an object with referenced_by_flows materialized from
// flow_object_references: every distinct flow id still citing this object,
// grouped by object_id.
func (r *ObjectRepo) Get(ctx context.Context, id string) (*core.Object, *cmn.TError) {
	rows, err := r.ms.Query(ctx, metastore.QuerySpec{
		Table: "objects",
		Where: []metastore.Predicate{{Column: "id", Op: "=", Value: id}, {Column: "deleted", Op: "=", Value: uint8(0)}},
		Limit: 1,
	})
	if err != nil {
		return nil, wrapStorageErr("object.get", err)
	}
	if len(rows) == 0 {
		return nil, cmn.NewNotFound("object", id)
	}
	o := rowToObject(rows[0])
	flows, first, terr := r.referencedByFlows(ctx, id)
	if terr != nil {
		return nil, terr
	}
	o.ReferencedByFlows = flows
	if first != "" {
		o.FirstReferencedByFlow = first
	}
	return o, nil
}

// referencedByFlows groups flow_object_references by object_id and returns
// the distinct flow ids citing objectID, in first-referenced order, along
// with the earliest one.
func (r *ObjectRepo) referencedByFlows(ctx context.Context, objectID string) ([]string, string, *cmn.TError) {
	rows, err := r.ms.Query(ctx, metastore.QuerySpec{
		Table:   "flow_object_references",
		Where:   []metastore.Predicate{{Column: "object_id", Op: "=", Value: objectID}},
		OrderBy: "ver",
	})
	if err != nil {
		return nil, "", wrapStorageErr("object.referenced_by_flows", err)
	}
	seen := make(map[string]bool, len(rows))
	var flows []string
	var first string
	for i, row := range rows {
		flowID := asString(row["flow_id"])
		if flowID == "" {
			continue
		}
		if i == 0 {
			first = flowID
		}
		if !seen[flowID] {
			seen[flowID] = true
			flows = append(flows, flowID)
		}
	}
	return flows, first, nil
}

func (r *ObjectRepo) Update(ctx context.Context, o *core.Object) *cmn.TError {
	return wrapStorageErr("object.update", r.ms.Insert(ctx, "objects", objectToRow(o)))
}

func (r *ObjectRepo) Delete(ctx context.Context, id string) *cmn.TError {
	return wrapStorageErr("object.delete", r.ms.Delete(ctx, "objects", []metastore.Predicate{
		{Column: "id", Op: "=", Value: id},
	}))
}

func (r *ObjectRepo) AddReference(ctx context.Context, ref core.FlowObjectReference) *cmn.TError {
	return wrapStorageErr("object.add_reference", r.ms.Insert(ctx, "flow_object_references", metastore.Row{
		"object_id": ref.ObjectID,
		"flow_id":   ref.FlowID,
		"timerange": ref.Timerange,
		"ver":       verStamp(),
	}))
}

// ReferenceCount reports how many (flow, timerange) pairs still cite
// objectID, used to decide whether an Object can be physically deleted once
// its last referencing segment is gone.
func (r *ObjectRepo) ReferenceCount(ctx context.Context, objectID string) (int, *cmn.TError) {
	rows, err := r.ms.Query(ctx, metastore.QuerySpec{
		Table: "flow_object_references",
		Where: []metastore.Predicate{{Column: "object_id", Op: "=", Value: objectID}},
	})
	if err != nil {
		return 0, wrapStorageErr("object.reference_count", err)
	}
	return len(rows), nil
}

// RemoveReference deletes one (object, flow, timerange) join row, called
// when a segment referencing objectID is deleted.
func (r *ObjectRepo) RemoveReference(ctx context.Context, objectID, flowID, timerange string) *cmn.TError {
	return wrapStorageErr("object.remove_reference", r.ms.Delete(ctx, "flow_object_references", []metastore.Predicate{
		{Column: "object_id", Op: "=", Value: objectID},
		{Column: "flow_id", Op: "=", Value: flowID},
		{Column: "timerange", Op: "=", Value: timerange},
	}))
}

// ReconcileSize overwrites Object.Size for id, used when a client-reported
// size needs correcting after the fact.
func (r *ObjectRepo) ReconcileSize(ctx context.Context, id string, size int64) *cmn.TError {
	o, terr := r.Get(ctx, id)
	if terr != nil {
		return terr
	}
	o.Size = &size
	return r.Update(ctx, o)
}

func objectToRow(o *core.Object) metastore.Row {
	row := metastore.Row{
		"id":                  o.ID,
		"size":                o.Size,
		"storage_backend_id":  o.StorageBackendID,
		"ver":                 verStamp(),
		"deleted":             uint8(0),
	}
	if o.Created != nil {
		row["created"] = toRFC3339(*o.Created)
	} else {
		row["created"] = nil
	}
	return row
}

func rowToObject(row metastore.Row) *core.Object {
	o := &core.Object{
		ID:               asString(row["id"]),
		Size:             asNullableInt64(row["size"]),
		StorageBackendID: asString(row["storage_backend_id"]),
	}
	if row["created"] != nil && asString(row["created"]) != "" {
		t := parseRFC3339(row["created"])
		o.Created = &t
	}
	return o
}
