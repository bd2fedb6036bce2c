package limiter

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// Attributes maps attribute names to the values carried by one submission.
// Missing attributes extract as nil.
//
// Supported value shapes are nil, strings, booleans, integer and float kinds,
// pointers to those, and flat sequences (slices or arrays) of them. Sequences
// become ordered tuple components. Nested sequences are encoded recursively and
// other shapes (maps, structs) fall back to their fmt rendering, so extraction
// never fails.
type Attributes map[string]any

// Clone returns a shallow copy of the attributes.
func (a Attributes) Clone() Attributes {
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// tupleKey returns the canonical key for the values of names in attrs.
// Keys are type tagged so "1" and 1 never collide, while all integer kinds
// with the same value do.
func tupleKey(attrs Attributes, names []string) string {
	var b strings.Builder
	for i, n := range names {
		if i > 0 {
			b.WriteByte(',')
		}
		encodeValue(&b, attrs[n])
	}
	return b.String()
}

// tupleDisplay returns the normalized values of names in attrs, with
// sequences converted to []any.
func tupleDisplay(attrs Attributes, names []string) []any {
	out := make([]any, len(names))
	for i, n := range names {
		out[i] = normalizeValue(attrs[n])
	}
	return out
}

func encodeValue(b *strings.Builder, v any) {
	switch x := v.(type) {
	case nil:
		b.WriteByte('n')
		return
	case string:
		b.WriteByte('s')
		b.WriteString(strconv.Quote(x))
		return
	case []string:
		b.WriteByte('[')
		for i, s := range x {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteByte('s')
			b.WriteString(strconv.Quote(s))
		}
		b.WriteByte(']')
		return
	case []any:
		b.WriteByte('[')
		for i, e := range x {
			if i > 0 {
				b.WriteByte(',')
			}
			encodeValue(b, e)
		}
		b.WriteByte(']')
		return
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		if rv.Bool() {
			b.WriteString("b1")
		} else {
			b.WriteString("b0")
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		b.WriteByte('i')
		b.WriteString(strconv.FormatInt(rv.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u <= math.MaxInt64 {
			b.WriteByte('i')
		} else {
			b.WriteByte('u')
		}
		b.WriteString(strconv.FormatUint(u, 10))
	case reflect.Float32, reflect.Float64:
		b.WriteByte('f')
		b.WriteString(strconv.FormatFloat(rv.Float(), 'g', -1, 64))
	case reflect.String:
		b.WriteByte('s')
		b.WriteString(strconv.Quote(rv.String()))
	case reflect.Slice, reflect.Array:
		b.WriteByte('[')
		for i := 0; i < rv.Len(); i++ {
			if i > 0 {
				b.WriteByte(',')
			}
			encodeValue(b, rv.Index(i).Interface())
		}
		b.WriteByte(']')
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			b.WriteByte('n')
			return
		}
		encodeValue(b, rv.Elem().Interface())
	default:
		b.WriteByte('v')
		b.WriteString(strconv.Quote(fmt.Sprint(v)))
	}
}

func normalizeValue(v any) any {
	switch x := v.(type) {
	case nil, string, bool, int, int64, float64:
		return x
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = normalizeValue(rv.Index(i).Interface())
		}
		return out
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return normalizeValue(rv.Elem().Interface())
	default:
		return v
	}
}
