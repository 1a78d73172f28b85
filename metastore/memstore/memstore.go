// Package memstore is an in-memory metastore.Store used by tests: it
// implements enough of ClickHouse's observable behavior (ReplacingMergeTree
// versioning, predicate pushdown) for repos/refengine/segpipeline/
// deleteworker tests to exercise real query logic without a live cluster.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/bbc/tams-core/metastore"
)

type versionedRow struct {
	row metastore.Row
	ver uint64
}

// Store is a goroutine-safe, ReplacingMergeTree-flavored in-memory table
// set: the latest-ver row per sort key wins, mirroring what a real
// ClickHouse SELECT returns after a background merge (simulated here
// eagerly on every write instead of asynchronously).
type Store struct {
	mu     sync.Mutex
	tables map[string]map[string]versionedRow // table -> sort key -> row
	keyFn  map[string]func(metastore.Row) string
}

func New() *Store {
	return &Store{
		tables: make(map[string]map[string]versionedRow),
		keyFn:  make(map[string]func(metastore.Row) string),
	}
}

func (s *Store) EnsureSchema(context.Context) error { return nil }

func (s *Store) TableExists(_ context.Context, table string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tables[table]
	return ok, nil
}

func (s *Store) CreateTable(_ context.Context, table, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[table]; !ok {
		s.tables[table] = make(map[string]versionedRow)
	}
	return nil
}

func (s *Store) DropTable(_ context.Context, table string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tables, table)
	return nil
}

func (s *Store) Insert(ctx context.Context, table string, row metastore.Row) error {
	return s.InsertBatch(ctx, table, []metastore.Row{row})
}

func (s *Store) InsertBatch(_ context.Context, table string, rows []metastore.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[table]
	if !ok {
		t = make(map[string]versionedRow)
		s.tables[table] = t
	}
	for _, r := range rows {
		key := rowKey(r)
		ver, _ := r["ver"].(uint64)
		if existing, ok := t[key]; ok && existing.ver >= ver {
			continue
		}
		t[key] = versionedRow{row: cloneRow(r), ver: ver}
	}
	return nil
}

func (s *Store) Query(_ context.Context, spec metastore.QuerySpec) ([]metastore.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tables[spec.Table]
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []metastore.Row
	for _, k := range keys {
		row := t[k].row
		if matches(row, spec.Where) {
			out = append(out, cloneRow(row))
		}
	}
	if spec.OrderBy != "" {
		col := spec.OrderBy
		if i := strings.IndexByte(col, ','); i >= 0 {
			col = col[:i]
		}
		col = strings.TrimSpace(col)
		sort.SliceStable(out, func(i, j int) bool {
			vi, vj := fmt.Sprint(out[i][col]), fmt.Sprint(out[j][col])
			if spec.Descending {
				return vi > vj
			}
			return vi < vj
		})
	}
	if spec.Limit > 0 && len(out) > spec.Limit {
		out = out[:spec.Limit]
	}
	return out, nil
}

func (s *Store) Update(ctx context.Context, table string, _ []metastore.Predicate, set metastore.Row) error {
	return s.Insert(ctx, table, set)
}

func (s *Store) Delete(_ context.Context, table string, where []metastore.Predicate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tables[table]
	for k, vr := range t {
		if matches(vr.row, where) {
			delete(t, k)
		}
	}
	return nil
}

func (s *Store) GetTableStats(_ context.Context, table string) (metastore.TableStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return metastore.TableStats{Table: table, RowCount: uint64(len(s.tables[table]))}, nil
}

func (s *Store) Close() error { return nil }

func matches(row metastore.Row, where []metastore.Predicate) bool {
	for _, p := range where {
		v, ok := row[p.Column]
		if !ok {
			return false
		}
		switch p.Op {
		case "=":
			if fmt.Sprint(v) != fmt.Sprint(p.Value) {
				return false
			}
		case "!=":
			if fmt.Sprint(v) == fmt.Sprint(p.Value) {
				return false
			}
		default:
			// range/IN operators aren't needed by the in-memory test double;
			// callers that need them filter again in process (see
			// repos.SegmentRepo.ListByFlow's overlap re-check).
		}
	}
	return true
}

// rowKey is a stable per-row identity used to make InsertBatch idempotent
// on repeated writes of the "same" logical row (the ReplacingMergeTree
// ORDER BY key, approximated here by whichever of the id-like columns id,
// flow_id, object_id, timerange, source_id and collection_id the row has,
// falling back to every non-version field when it has none).
func rowKey(r metastore.Row) string {
	keys := make([]string, 0, len(r))
	for k := range r {
		if k == "ver" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	idKeys := []string{"id", "flow_id", "object_id", "timerange", "source_id", "collection_id"}
	var b []byte
	for _, k := range idKeys {
		if v, ok := r[k]; ok {
			b = append(b, []byte(fmt.Sprintf("%s=%v;", k, v))...)
		}
	}
	if len(b) == 0 {
		// fall back to full-row identity so distinct append-only rows
		// (e.g. flow_object_references with no single-column id) don't
		// collide with each other.
		for _, k := range keys {
			b = append(b, []byte(fmt.Sprintf("%s=%v;", k, r[k]))...)
		}
	}
	return string(b)
}

func cloneRow(r metastore.Row) metastore.Row {
	cp := make(metastore.Row, len(r))
	for k, v := range r {
		cp[k] = v
	}
	return cp
}
