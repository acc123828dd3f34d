package realtime

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"

	"github.com/nguyentranbao-ct/field-booking-admin/pkg/util"
)

// Normalize converts value into the plain tree form stored by channels:
// map[string]any, []any, string, bool, int64, float64 or nil. Structs and
// other types are transcoded through JSON. Empty objects become nil.
func Normalize(value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string, bool, int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case float32:
		return normalizeFloat(float64(v)), nil
	case float64:
		return normalizeFloat(v), nil
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, nil
		}
		f, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("number %q: %w", v, err)
		}
		return normalizeFloat(f), nil
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, child := range v {
			if err := ValidateKey(k); err != nil {
				return nil, err
			}
			n, err := Normalize(child)
			if err != nil {
				return nil, err
			}
			if n != nil {
				out[k] = n
			}
		}
		if len(out) == 0 {
			return nil, nil
		}
		return out, nil
	case []any:
		out := make([]any, 0, len(v))
		for _, child := range v {
			n, err := Normalize(child)
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		}
		return out, nil
	}

	var generic any
	if err := util.TranscodeJSON(value, &generic); err != nil {
		return nil, fmt.Errorf("transcode %T: %w", value, err)
	}
	return Normalize(generic)
}

func normalizeFloat(f float64) any {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int64(f)
	}
	return f
}

// Lookup walks parts below root.
func Lookup(root any, parts []string) any {
	cur := root
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[p]
	}
	return cur
}

// Assign returns a copy of root with value stored at parts. Maps on the way
// are copied so earlier snapshots of root stay untouched. Deleting the last
// child of an object removes the object.
func Assign(root any, parts []string, value any) any {
	if len(parts) == 0 {
		return value
	}
	src, _ := root.(map[string]any)
	dst := make(map[string]any, len(src)+1)
	for k, v := range src {
		dst[k] = v
	}
	child := Assign(src[parts[0]], parts[1:], value)
	if child == nil {
		delete(dst, parts[0])
	} else {
		dst[parts[0]] = child
	}
	if len(dst) == 0 {
		return nil
	}
	return dst
}

// Equal compares two normalized trees.
func Equal(a, b any) bool {
	return reflect.DeepEqual(a, b)
}
