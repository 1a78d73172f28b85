package core

import "time"

// Object is a payload row: one physical blob in object storage, identified
// by its id (a UUID minted at allocation time, or one the client supplies,
// used as the last element of the storage key) and referenced by zero or
// more Segments across zero or more Flows.
type Object struct {
	ID              string     `json:"id"`
	Size            *int64     `json:"size,omitempty"`
	Created         *time.Time `json:"created,omitempty"`
	StorageBackendID string    `json:"storage_backend_id,omitempty"`
	// FirstReferencedByFlow is the earliest flow to add a reference to this
	// object id.
	FirstReferencedByFlow string `json:"first_referenced_by_flow,omitempty"`
	// ReferencedByFlows is derived at read time from flow_object_references:
	// every distinct flow id currently citing this object. It is never
	// stored on the row itself.
	ReferencedByFlows []string `json:"referenced_by_flows,omitempty"`
}

func (o *Object) Clone() *Object {
	if o == nil {
		return nil
	}
	cp := *o
	if o.Size != nil {
		v := *o.Size
		cp.Size = &v
	}
	if o.Created != nil {
		v := *o.Created
		cp.Created = &v
	}
	cp.ReferencedByFlows = append([]string(nil), o.ReferencedByFlows...)
	return &cp
}

// FlowObjectReference is the join row recording that an Object is used by a
// Flow's Segment, carrying the segment's own timerange so referential
// queries ("which flows reference object X, and when") don't need a
// separate join back through segments.
type FlowObjectReference struct {
	ObjectID  string `json:"object_id"`
	FlowID    string `json:"flow_id"`
	Timerange string `json:"timerange"`
}
