// Package value implements the dynamic data model carried by log and
// trace events.
//
// # Overview
//
// A Value is a tagged union of Null, Boolean, Integer, Float, Bytes,
// Timestamp, Array and Map. Strings are Bytes; invalid UTF-8 is kept
// verbatim. Floats are always finite: Float rejects NaN and ±Inf with
// errors.ErrNonFiniteFloat, and both codecs apply the same rule.
//
// # Paths
//
// A Path is parsed once and reused:
//
//	p := value.MustParsePath(`request.headers."x-trace-id"`)
//	if v := root.Get(p); v != nil {
//		...
//	}
//
// Insert creates missing containers along the way and fails with
// errors.ErrPathConflict when it meets a scalar where a container is
// required. Wildcards ([*] over arrays, .* over maps) are resolved lazily
// by Select and RemoveAll.
//
// # Encoding
//
// JSON is the textual form and keeps map insertion order. Msgpack is the
// binary form used by the disk buffer and round-trips every variant,
// including timestamps and non-UTF-8 bytes.
package value
