package cushion

import (
	"fmt"

	"github.com/google/orderedcode"
)

// Key layout. Every key is an orderedcode tuple under the namespace:
//
//	(N, "doc", D)              document body
//	(N, "design", V)           view design record
//	(N, "view", V, ...key, D)  emitted row
//	(N, "viewref", V, D)       back-reference (composite keys emitted for D)
//
// Tuples compare lexicographically part by part, so a prefix of encoded
// parts is a byte prefix of every longer tuple that extends it.

//-----------------------------------------------------------------------------

// key spaces
const (
	spaceDoc    = "doc"
	spaceDesign = "design"
	spaceView   = "view"
	spaceRef    = "viewref"
)

func mustAppend(buf []byte, items ...interface{}) []byte {
	out, err := orderedcode.Append(buf, items...)
	if err != nil {
		// orderedcode only rejects unsupported types; never the case here
		panic(err)
	}
	return out
}

func dockey(ns, id string) []byte { return mustAppend(nil, ns, spaceDoc, id) }
func docPrefix(ns string) []byte { return mustAppend(nil, ns, spaceDoc) }

func designKey(ns, v string) []byte { return mustAppend(nil, ns, spaceDesign, v) }
func viewPrefix(ns, v string) []byte { return mustAppend(nil, ns, spaceView, v) }
func refKey(ns, v, id string) []byte { return mustAppend(nil, ns, spaceRef, v, id) }
func refPrefix(ns, v string) []byte { return mustAppend(nil, ns, spaceRef, v) }

// viewRowKey builds (N, "view", V, ...emitKey, D). The emit key must
// already be normalized.
func viewRowKey(ns, view string, emitKey []interface{}, id string) ([]byte, error) {
	buf, err := appendEmitKey(viewPrefix(ns, view), emitKey)
	if err != nil {
		return nil, err
	}
	return orderedcode.Append(buf, id)
}

//-----------------------------------------------------------------------------

// asTuple treats a single value as a one-element tuple.
func asTuple(key interface{}) []interface{} {
	if t, ok := key.([]interface{}); ok {
		return t
	}
	return []interface{}{key}
}

// normalizeParts coerces every numeric part to float64 so that emitted
// keys and query bounds land on one encoding regardless of the Go type
// the caller happened to hold.
func normalizeParts(parts []interface{}) ([]interface{}, error) {
	out := make([]interface{}, len(parts))
	for i, p := range parts {
		n, err := normalizePart(p)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

func normalizePart(p interface{}) (interface{}, error) {
	switch x := p.(type) {
	case string, bool, float64, []byte:
		return x, nil
	case int:
		return float64(x), nil
	case int8:
		return float64(x), nil
	case int16:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint:
		return float64(x), nil
	case uint8:
		return float64(x), nil
	case uint16:
		return float64(x), nil
	case uint32:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	case float32:
		return float64(x), nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrInvalidEmitKey, p)
	}
}

func appendEmitKey(buf []byte, parts []interface{}) ([]byte, error) {
	var err error
	for _, p := range parts {
		buf, err = appendEmitPart(buf, p)
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func appendEmitPart(buf []byte, p interface{}) ([]byte, error) {
	switch x := p.(type) {
	case string:
		return orderedcode.Append(buf, x)
	case []byte:
		return orderedcode.Append(buf, string(x))
	case float64:
		return orderedcode.Append(buf, x)
	case bool:
		var b uint64
		if x {
			b = 1
		}
		return orderedcode.Append(buf, b)
	default:
		return nil, fmt.Errorf("%w: %T", ErrInvalidEmitKey, p)
	}
}

//-----------------------------------------------------------------------------

// prefixSuccessor returns the smallest key greater than every key that
// starts with prefix, or nil when no such key exists.
func prefixSuccessor(prefix []byte) []byte {
	for i := len(prefix) - 1; i >= 0; i-- {
		if prefix[i] != 0xff {
			out := make([]byte, i+1)
			copy(out, prefix)
			out[i]++
			return out
		}
	}
	return nil
}

//-----------------------------------------------------------------------------
