// Package repos adapts core's domain structs onto metastore.Row and back,
// one repo per entity. Every method returns *cmn.TError so callers (mainly
// refengine and server) never need a type switch on the underlying
// metastore driver's error type.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package repos

import (
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/bbc/tams-core/cmn"
	"github.com/bbc/tams-core/cmn/cos"
	"github.com/bbc/tams-core/metastore"
)

// verStamp returns a monotonically-increasing version stamp for ReplacingMergeTree
// rows. Wall-clock nanoseconds are good enough: a repo never issues two
// writes to the same row fast enough to collide, and a collision only ever
// costs picking the more-recent of two identical-content writes.
func verStamp() uint64 { return uint64(time.Now().UnixNano()) }

func wrapStorageErr(op string, err error) *cmn.TError {
	if err == nil {
		return nil
	}
	return cmn.NewStorageErr(op, errors.Wrapf(err, "metastore op %q", op))
}

func tagsToJSON(tags map[string]string) string {
	if len(tags) == 0 {
		return "{}"
	}
	return string(cos.MustMarshal(tags))
}

func tagsFromJSON(s string) map[string]string {
	if s == "" || s == "{}" {
		return nil
	}
	var m map[string]string
	_ = cos.Unmarshal([]byte(s), &m)
	return m
}

func toRFC3339(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseRFC3339(s any) time.Time {
	str, _ := s.(string)
	if str == "" {
		if tv, ok := s.(time.Time); ok {
			return tv
		}
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, str)
	if err != nil {
		return time.Time{}
	}
	return t
}

func asString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func asBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case uint8:
		return t != 0
	case int:
		return t != 0
	}
	return false
}

func asInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case uint64:
		return int64(t)
	case int:
		return int64(t)
	case string:
		n, _ := strconv.ParseInt(t, 10, 64)
		return n
	}
	return 0
}

func asNullableInt64(v any) *int64 {
	if v == nil {
		return nil
	}
	if p, ok := v.(*int64); ok {
		if p == nil {
			return nil
		}
		n := *p
		return &n
	}
	n := asInt64(v)
	return &n
}

func asStrings(v any) []string {
	if v == nil {
		return nil
	}
	if ss, ok := v.([]string); ok {
		return ss
	}
	return nil
}

// store is embedded by every repo so table access goes through one
// metastore.Store instance per process.
type store struct {
	ms metastore.Store
}

func newStore(ms metastore.Store) store { return store{ms: ms} }
