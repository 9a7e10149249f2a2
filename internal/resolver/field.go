package resolver

import (
	"bytes"
	"encoding/json"
)

// Field is a tri-state JSON value: unset (key absent), explicitly null, or
// present with a value. The Parameter Resolver's merge pipeline needs this
// distinction because, per spec.md §4.7, a `null`/empty-string at any merge
// layer means "delete this key from the accumulated map" — a plain Go zero
// value can't tell "caller didn't say" from "caller said delete".
// Adapted from the teacher's pkg/jsonx.Field[T], unchanged in shape.
type Field[T any] struct {
	set  bool
	null bool
	val  T
}

func (f Field[T]) IsSet() bool      { return f.set }
func (f Field[T]) IsNull() bool     { return f.set && f.null }
func (f Field[T]) Value() (T, bool) { return f.val, f.set && !f.null }

func (f *Field[T]) UnmarshalJSON(b []byte) error {
	if string(bytes.TrimSpace(b)) == "null" {
		f.set, f.null = true, true
		var zero T
		f.val = zero
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	f.set, f.null, f.val = true, false, v
	return nil
}
