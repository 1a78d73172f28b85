// Package timerange implements the time-addressable media store's
// time-range grammar and overlap semantics: a string "lo_hi" where each
// endpoint is a "seconds:nanoseconds" pair, optionally wrapped in brackets
// for inclusive/exclusive bounds. The default when brackets are omitted is
// half-open "[lo_hi)".
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package timerange

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bbc/tams-core/cmn"
)

// Point is a (seconds, nanoseconds) pair, both non-negative.
type Point struct {
	Sec  int64
	Nsec int64
}

func (p Point) less(o Point) bool {
	if p.Sec != o.Sec {
		return p.Sec < o.Sec
	}
	return p.Nsec < o.Nsec
}

func (p Point) equal(o Point) bool { return p.Sec == o.Sec && p.Nsec == o.Nsec }

func (p Point) String() string { return fmt.Sprintf("%d:%d", p.Sec, p.Nsec) }

// Range is a parsed TAMS time range. Unbounded lets either end be open
// (spelled "-" on the wire); an unbounded Lo/Hi is never produced by this
// store but must round-trip through Parse/Format for inbound clients.
type Range struct {
	Lo           Point
	LoInclusive  bool
	LoUnbounded  bool
	Hi           Point
	HiInclusive  bool
	HiUnbounded  bool
}

// Parse decodes s into a Range or returns an InvalidTimerange (ValidationError).
func Parse(s string) (Range, *cmn.TError) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Range{}, cmn.NewValidationErr("timerange", "empty time range")
	}

	loIncl, hiIncl := true, false // default [lo_hi)
	body := s

	if strings.HasPrefix(body, "[") {
		loIncl = true
		body = body[1:]
	} else if strings.HasPrefix(body, "(") {
		loIncl = false
		body = body[1:]
	}
	if strings.HasSuffix(body, "]") {
		hiIncl = true
		body = body[:len(body)-1]
	} else if strings.HasSuffix(body, ")") {
		hiIncl = false
		body = body[:len(body)-1]
	}

	idx := strings.Index(body, "_")
	if idx < 0 {
		return Range{}, cmn.NewValidationErr("timerange", "missing '_' separator between lo and hi")
	}
	loStr, hiStr := body[:idx], body[idx+1:]

	var r Range
	r.LoInclusive, r.HiInclusive = loIncl, hiIncl

	if loStr == "" || loStr == "-" {
		r.LoUnbounded = true
	} else {
		p, terr := parsePoint("timerange.lo", loStr)
		if terr != nil {
			return Range{}, terr
		}
		r.Lo = p
	}
	if hiStr == "" || hiStr == "-" {
		r.HiUnbounded = true
	} else {
		p, terr := parsePoint("timerange.hi", hiStr)
		if terr != nil {
			return Range{}, terr
		}
		r.Hi = p
	}

	if !r.LoUnbounded && !r.HiUnbounded && r.Hi.less(r.Lo) {
		return Range{}, cmn.NewValidationErr("timerange", "hi precedes lo")
	}
	return r, nil
}

func parsePoint(field, s string) (Point, *cmn.TError) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return Point{}, cmn.NewValidationErr(field, "expected seconds:nanoseconds")
	}
	sec, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || sec < 0 {
		return Point{}, cmn.NewValidationErr(field, "seconds must be a non-negative integer")
	}
	nsec, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || nsec < 0 {
		return Point{}, cmn.NewValidationErr(field, "nanoseconds must be a non-negative integer")
	}
	return Point{Sec: sec, Nsec: nsec}, nil
}

// Format is the canonical round-trip of Parse.
func Format(r Range) string {
	var b strings.Builder
	if r.LoInclusive {
		b.WriteByte('[')
	} else {
		b.WriteByte('(')
	}
	if r.LoUnbounded {
		b.WriteByte('-')
	} else {
		b.WriteString(r.Lo.String())
	}
	b.WriteByte('_')
	if r.HiUnbounded {
		b.WriteByte('-')
	} else {
		b.WriteString(r.Hi.String())
	}
	if r.HiInclusive {
		b.WriteByte(']')
	} else {
		b.WriteByte(')')
	}
	return b.String()
}

// Overlap reports whether a and b share any instant, honoring each side's
// inclusive/exclusive endpoints: if a.Hi == b.Lo and either of those two
// endpoints is exclusive, the ranges do not overlap.
func Overlap(a, b Range) bool {
	// a starts at or before b ends, AND b starts at or before a ends.
	if !before(a.Lo, a.LoInclusive, a.LoUnbounded, b.Hi, b.HiInclusive, b.HiUnbounded) {
		return false
	}
	if !before(b.Lo, b.LoInclusive, b.LoUnbounded, a.Hi, a.HiInclusive, a.HiUnbounded) {
		return false
	}
	return true
}

// before reports whether lower-bound point p1 occurs at-or-before
// upper-bound point p2, honoring the half-open tie-break rule: equal
// points only count as "before" when both sides are inclusive.
func before(p1 Point, incl1, unb1 bool, p2 Point, incl2, unb2 bool) bool {
	if unb1 || unb2 {
		return true
	}
	if p1.less(p2) {
		return true
	}
	if p1.equal(p2) {
		return incl1 && incl2
	}
	return false
}

// Contains reports whether the range includes the point t.
func Contains(r Range, t Point) bool {
	if !r.LoUnbounded {
		if t.less(r.Lo) {
			return false
		}
		if t.equal(r.Lo) && !r.LoInclusive {
			return false
		}
	}
	if !r.HiUnbounded {
		if r.Hi.less(t) {
			return false
		}
		if t.equal(r.Hi) && !r.HiInclusive {
			return false
		}
	}
	return true
}

// DurationSeconds returns hi-lo in real seconds, nsec scaled by 1e-9.
// Unbounded ranges have no finite duration; the result for one is the
// difference of whatever endpoint values it carries and has no meaning,
// so check IsBounded first.
func DurationSeconds(r Range) float64 {
	dsec := r.Hi.Sec - r.Lo.Sec
	dnsec := r.Hi.Nsec - r.Lo.Nsec
	return float64(dsec) + float64(dnsec)*1e-9
}

// IsBounded reports whether both endpoints are finite.
func IsBounded(r Range) bool { return !r.LoUnbounded && !r.HiUnbounded }
