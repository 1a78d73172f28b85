// Package metastore is the columnar metadata side of the store: Source,
// Flow, Object, Segment, Collection, and FlowDeleteRequest rows all live
// here, addressed and queried by the repos package. objstore only ever
// carries the bytes these rows point at.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package metastore

import "context"

// Row is a single record as column-name -> value, the lowest common
// denominator repos encode domain structs into and decode query results
// from.
type Row map[string]any

// Predicate is one "column op value" condition used by Query's WHERE
// clause construction. Op is one of "=", "!=", ">", ">=", "<", "<=", "IN".
type Predicate struct {
	Column string
	Op     string
	Value  any
}

// QuerySpec describes a read against one table.
type QuerySpec struct {
	Table      string
	Columns    []string
	Where      []Predicate
	OrderBy    string
	Descending bool
	Limit      int
}

// TableStats summarizes one table for operational introspection.
type TableStats struct {
	Table    string
	RowCount uint64
}

// Store is the metadata-store contract. Implementations are expected to
// survive a transient node failing out of a multi-endpoint cluster.
type Store interface {
	EnsureSchema(ctx context.Context) error
	TableExists(ctx context.Context, table string) (bool, error)
	CreateTable(ctx context.Context, table string, ddl string) error
	DropTable(ctx context.Context, table string) error

	Insert(ctx context.Context, table string, row Row) error
	InsertBatch(ctx context.Context, table string, rows []Row) error
	Query(ctx context.Context, spec QuerySpec) ([]Row, error)
	Update(ctx context.Context, table string, where []Predicate, set Row) error
	Delete(ctx context.Context, table string, where []Predicate) error

	GetTableStats(ctx context.Context, table string) (TableStats, error)
	Close() error
}
