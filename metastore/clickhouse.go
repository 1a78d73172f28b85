package metastore

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/bbc/tams-core/cmn/nlog"
)

// ClickHouseStore is the Store implementation backing production
// deployments. It dials every configured endpoint; clickhouse-go's own
// connection pool handles failing a node out, so no separate retry loop is
// needed here beyond the initial connect.
type ClickHouseStore struct {
	conn   driver.Conn
	schema string
}

type ClickHouseOptions struct {
	Endpoints []string
	AccessKey string
	SecretKey string
	Database  string
}

func NewClickHouseStore(ctx context.Context, opt ClickHouseOptions) (*ClickHouseStore, error) {
	if len(opt.Endpoints) == 0 {
		return nil, fmt.Errorf("metastore: at least one endpoint is required")
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: opt.Endpoints,
		Auth: clickhouse.Auth{
			Database: opt.Database,
			Username: opt.AccessKey,
			Password: opt.SecretKey,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("metastore: open: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("metastore: ping: %w", err)
	}
	nlog.Infof("metastore: connected to clickhouse, %d endpoint(s)", len(opt.Endpoints))
	return &ClickHouseStore{conn: conn, schema: opt.Database}, nil
}

// EnsureSchema creates every table this service owns if absent. Column
// layouts follow the rows the repos write, which do not cover every field
// of the core structs; a struct field with no column is not persisted.
// ReplacingMergeTree(ver) lets Update append a new version instead of
// mutating in place, which is the idiomatic ClickHouse update pattern.
func (s *ClickHouseStore) EnsureSchema(ctx context.Context) error {
	ddls := []struct {
		table string
		ddl   string
	}{
		{"sources", `
			id String,
			format String,
			label String,
			description String,
			tags String,
			collected_by Array(String),
			created DateTime64(9),
			metadata_updated DateTime64(9),
			created_by String,
			updated_by String,
			ver UInt64,
			deleted UInt8 DEFAULT 0
		) ENGINE = ReplacingMergeTree(ver)
		ORDER BY id`},
		{"flows", `
			id String,
			source_id String,
			format String,
			codec String,
			label String,
			description String,
			tags String,
			read_only UInt8,
			generation UInt64,
			container String,
			frame_width Nullable(Int64),
			frame_height Nullable(Int64),
			frame_rate_num Nullable(Int64),
			frame_rate_den Nullable(Int64),
			sample_rate Nullable(Int64),
			bits_per_sample Nullable(Int64),
			channels Nullable(Int64),
			flow_collection Array(String),
			created DateTime64(9),
			metadata_updated DateTime64(9),
			segments_updated DateTime64(9),
			ver UInt64,
			deleted UInt8 DEFAULT 0
		) ENGINE = ReplacingMergeTree(ver)
		ORDER BY id`},
		{"objects", `
			id String,
			size Nullable(Int64),
			created Nullable(DateTime64(9)),
			storage_backend_id String,
			ver UInt64,
			deleted UInt8 DEFAULT 0
		) ENGINE = ReplacingMergeTree(ver)
		ORDER BY id`},
		{"segments", `
			flow_id String,
			object_id String,
			timerange String,
			timerange_lo_sec Int64,
			timerange_lo_nsec Int64,
			ts_offset String,
			last_duration String,
			sample_offset Nullable(Int64),
			sample_count Nullable(Int64),
			key_frame_count Nullable(Int64),
			storage_path String,
			ver UInt64,
			deleted UInt8 DEFAULT 0
		) ENGINE = ReplacingMergeTree(ver)
		ORDER BY (flow_id, timerange_lo_sec, timerange_lo_nsec)`},
		{"flow_object_references", `
			object_id String,
			flow_id String,
			timerange String,
			ver UInt64
		) ENGINE = ReplacingMergeTree(ver)
		ORDER BY (object_id, flow_id, timerange)`},
		{"source_collection_members", `
			source_id String,
			collection_id String,
			label String,
			ver UInt64,
			deleted UInt8 DEFAULT 0
		) ENGINE = ReplacingMergeTree(ver)
		ORDER BY (collection_id, source_id)`},
		{"flow_collection_members", `
			flow_id String,
			collection_id String,
			ver UInt64,
			deleted UInt8 DEFAULT 0
		) ENGINE = ReplacingMergeTree(ver)
		ORDER BY (collection_id, flow_id)`},
		{"flow_delete_requests", `
			id String,
			flow_id String,
			timerange String,
			status String,
			created DateTime64(9),
			updated DateTime64(9),
			segments_deleted Int64,
			error String,
			claimed_by String,
			claimed_at Nullable(DateTime64(9)),
			ver UInt64
		) ENGINE = ReplacingMergeTree(ver)
		ORDER BY id`},
		{"storage_backends", `
			id String,
			label String,
			provider String,
			bucket String,
			endpoint_url String,
			use_ssl UInt8,
			read_only UInt8,
			store_type String,
			store_product String,
			region String,
			availability_zone String,
			default_storage UInt8,
			created DateTime64(9),
			ver UInt64
		) ENGINE = ReplacingMergeTree(ver)
		ORDER BY id`},
	}
	for _, t := range ddls {
		if err := s.CreateTable(ctx, t.table, t.ddl); err != nil {
			return err
		}
	}
	return nil
}

func (s *ClickHouseStore) TableExists(ctx context.Context, table string) (bool, error) {
	row := s.conn.QueryRow(ctx, `
		SELECT count() FROM system.tables WHERE database = currentDatabase() AND name = ?`, table)
	var n uint64
	if err := row.Scan(&n); err != nil {
		return false, fmt.Errorf("metastore: table_exists %s: %w", table, err)
	}
	return n > 0, nil
}

func (s *ClickHouseStore) CreateTable(ctx context.Context, table, ddl string) error {
	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s", table, ddl)
	if err := s.conn.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("metastore: create_table %s: %w", table, err)
	}
	return nil
}

func (s *ClickHouseStore) DropTable(ctx context.Context, table string) error {
	if err := s.conn.Exec(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
		return fmt.Errorf("metastore: drop_table %s: %w", table, err)
	}
	return nil
}

func (s *ClickHouseStore) Insert(ctx context.Context, table string, row Row) error {
	return s.InsertBatch(ctx, table, []Row{row})
}

func (s *ClickHouseStore) InsertBatch(ctx context.Context, table string, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	cols := sortedColumns(rows[0])
	stmt := fmt.Sprintf("INSERT INTO %s (%s)", table, strings.Join(cols, ", "))
	batch, err := s.conn.PrepareBatch(ctx, stmt)
	if err != nil {
		return fmt.Errorf("metastore: prepare batch %s: %w", table, err)
	}
	for _, r := range rows {
		vals := make([]any, len(cols))
		for i, c := range cols {
			vals[i] = r[c]
		}
		if err := batch.Append(vals...); err != nil {
			return fmt.Errorf("metastore: append %s: %w", table, err)
		}
	}
	return batch.Send()
}

// Query builds predicate-pushdown SQL from spec, scanning results back into
// column-name-keyed Rows via a RawAny-style Scan since the column set is
// dynamic per caller.
func (s *ClickHouseStore) Query(ctx context.Context, spec QuerySpec) ([]Row, error) {
	cols := spec.Columns
	if len(cols) == 0 {
		cols = []string{"*"}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", strings.Join(cols, ", "), spec.Table)
	args := make([]any, 0, len(spec.Where))
	if len(spec.Where) > 0 {
		b.WriteString(" WHERE ")
		for i, p := range spec.Where {
			if i > 0 {
				b.WriteString(" AND ")
			}
			if p.Op == "IN" {
				b.WriteString(p.Column + " IN (?)")
			} else {
				b.WriteString(p.Column + " " + p.Op + " ?")
			}
			args = append(args, p.Value)
		}
	}
	if spec.OrderBy != "" {
		b.WriteString(" ORDER BY " + spec.OrderBy)
		if spec.Descending {
			b.WriteString(" DESC")
		}
	}
	if spec.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", spec.Limit)
	}

	rows, err := s.conn.Query(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("metastore: query %s: %w", spec.Table, err)
	}
	defer rows.Close()

	colTypes := rows.ColumnTypes()
	names := rows.Columns()
	var out []Row
	for rows.Next() {
		dest := make([]any, len(colTypes))
		for i, ct := range colTypes {
			dest[i] = newScanTarget(ct)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("metastore: scan %s: %w", spec.Table, err)
		}
		r := make(Row, len(names))
		for i, n := range names {
			r[n] = derefScanTarget(dest[i])
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Update performs set-column assignment by appending a new ReplacingMergeTree
// version row: callers are expected to pass the full merged row (read,
// mutate fields, rewrite) since ClickHouse has no real in-place UPDATE on
// MergeTree engines at insert-time granularity. set must include every
// column of the table along with a fresh, monotonically increasing "ver".
func (s *ClickHouseStore) Update(ctx context.Context, table string, _ []Predicate, set Row) error {
	return s.Insert(ctx, table, set)
}

// Delete removes matching rows by issuing an ALTER TABLE ... DELETE
// mutation built from the AND of where's predicates. It refuses an empty
// predicate list rather than deleting the whole table.
func (s *ClickHouseStore) Delete(ctx context.Context, table string, where []Predicate) error {
	if len(where) == 0 {
		return fmt.Errorf("metastore: delete %s: refusing unconditional delete", table)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "ALTER TABLE %s DELETE WHERE ", table)
	args := make([]any, 0, len(where))
	for i, p := range where {
		if i > 0 {
			b.WriteString(" AND ")
		}
		b.WriteString(p.Column + " " + p.Op + " ?")
		args = append(args, p.Value)
	}
	if err := s.conn.Exec(ctx, b.String(), args...); err != nil {
		return fmt.Errorf("metastore: delete %s: %w", table, err)
	}
	return nil
}

func (s *ClickHouseStore) GetTableStats(ctx context.Context, table string) (TableStats, error) {
	row := s.conn.QueryRow(ctx, "SELECT count() FROM "+table)
	var n uint64
	if err := row.Scan(&n); err != nil {
		return TableStats{}, fmt.Errorf("metastore: table_stats %s: %w", table, err)
	}
	return TableStats{Table: table, RowCount: n}, nil
}

func (s *ClickHouseStore) Close() error { return s.conn.Close() }

func sortedColumns(r Row) []string {
	cols := make([]string, 0, len(r))
	for c := range r {
		cols = append(cols, c)
	}
	// deterministic order keeps batch.Append argument order matching the
	// INSERT column list built from the same slice.
	for i := 1; i < len(cols); i++ {
		for j := i; j > 0 && cols[j-1] > cols[j]; j-- {
			cols[j-1], cols[j] = cols[j], cols[j-1]
		}
	}
	return cols
}

func newScanTarget(ct driver.ColumnType) any {
	t := ct.ScanType()
	if t == nil {
		var s string
		return &s
	}
	return reflect.New(t).Interface()
}

func derefScanTarget(v any) any {
	return reflect.ValueOf(v).Elem().Interface()
}
