// Package cos ("common OS-ish") holds small stateless helpers shared across
// the core, mirroring the role aistore's own cmn/cos plays for its callers
// (cos.MustMarshal, cos.IsValidUUID, cos.BHead all have call sites in
// ais/prxs3.go).
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MustMarshal panics on encode failure; only ever used on our own types.
func MustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func Unmarshal(b []byte, v any) error { return json.Unmarshal(b, v) }

// BHead truncates b for inclusion in error messages.
func BHead(b []byte) string {
	const maxLen = 256
	if len(b) <= maxLen {
		return string(b)
	}
	return string(b[:maxLen]) + "...(truncated)"
}

// NamedVal64 pairs a named counter with an int64 value, for metrics that
// record several related quantities in one call (stats.AddMany style).
type NamedVal64 struct {
	Name  string
	Value int64
}

// FmtErrUnmarshal is used the same way cmn.FmtErrUnmarshal is used in
// ais/prxs3.go, kept as a shared format string so every unmarshal failure
// reads the same way in logs.
const FmtErrUnmarshal = "%s: failed to unmarshal %s (%s): %v"

func Errorf(format string, args ...any) error { return fmt.Errorf(format, args...) }
