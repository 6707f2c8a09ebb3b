package engine

import (
	"fmt"
	"strconv"
	"time"
)

// Key type tags persisted next to a cursor value.
const (
	KeyInt    = "int"
	KeyUint   = "uint"
	KeyFloat  = "float"
	KeyString = "string"
	KeyTime   = "time"
)

// normalizeKey folds driver values into int64, uint64, float64, string or time.Time.
func normalizeKey(v any) any {
	switch k := v.(type) {
	case int:
		return int64(k)
	case int8:
		return int64(k)
	case int16:
		return int64(k)
	case int32:
		return int64(k)
	case uint:
		return uint64(k)
	case uint8:
		return uint64(k)
	case uint16:
		return uint64(k)
	case uint32:
		return uint64(k)
	case float32:
		return float64(k)
	case []byte:
		return string(k)
	default:
		return v
	}
}

func encodeKey(v any) (string, string, error) {
	switch k := normalizeKey(v).(type) {
	case int64:
		return strconv.FormatInt(k, 10), KeyInt, nil
	case uint64:
		return strconv.FormatUint(k, 10), KeyUint, nil
	case float64:
		return strconv.FormatFloat(k, 'g', -1, 64), KeyFloat, nil
	case string:
		return k, KeyString, nil
	case time.Time:
		return k.Format(time.RFC3339Nano), KeyTime, nil
	default:
		return "", "", fmt.Errorf("unsupported key value %v (%T)", v, v)
	}
}

func decodeKey(text, typ string) (any, error) {
	switch typ {
	case KeyInt:
		return strconv.ParseInt(text, 10, 64)
	case KeyUint:
		return strconv.ParseUint(text, 10, 64)
	case KeyFloat:
		return strconv.ParseFloat(text, 64)
	case KeyTime:
		return time.Parse(time.RFC3339Nano, text)
	case KeyString, "":
		return text, nil
	default:
		return nil, fmt.Errorf("unknown key type %q", typ)
	}
}

func cmpOrdered[T int64 | uint64 | float64 | string](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// compareKeys orders two normalized key values. Mixed numeric types are
// compared numerically; anything else falls back to their text form.
func compareKeys(a, b any) int {
	a, b = normalizeKey(a), normalizeKey(b)
	switch x := a.(type) {
	case int64:
		switch y := b.(type) {
		case int64:
			return cmpOrdered(x, y)
		case uint64:
			if x < 0 {
				return -1
			}
			return cmpOrdered(uint64(x), y)
		case float64:
			return cmpOrdered(float64(x), y)
		}
	case uint64:
		switch y := b.(type) {
		case uint64:
			return cmpOrdered(x, y)
		case int64:
			return -compareKeys(y, x)
		case float64:
			return cmpOrdered(float64(x), y)
		}
	case float64:
		switch y := b.(type) {
		case float64:
			return cmpOrdered(x, y)
		case int64, uint64:
			return -compareKeys(y, x)
		}
	case string:
		if y, ok := b.(string); ok {
			return cmpOrdered(x, y)
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y)
		}
	}
	return cmpOrdered(fmt.Sprint(a), fmt.Sprint(b))
}

// lastKey returns the key of the last row whose key is not NULL. Pages are
// read in key order, so this is the largest key under the server's own
// collation, which may disagree with Go's byte order.
func lastKey(rows [][]any, idx int) any {
	for i := len(rows) - 1; i >= 0; i-- {
		if v := normalizeKey(rows[i][idx]); v != nil {
			return v
		}
	}
	return nil
}

// nextCursor moves the cursor to the last key of a page. A page without a
// key, or one ending on the current cursor, would be fetched again forever.
func nextCursor(cur any, rows [][]any, idx int, column string) (any, error) {
	next := lastKey(rows, idx)
	if next == nil || (cur != nil && compareKeys(next, cur) == 0) {
		return nil, fmt.Errorf("key column %s did not advance past %v", column, cur)
	}
	return next, nil
}

func keyString(v any) string {
	if s, _, err := encodeKey(v); err == nil {
		return s
	}
	return fmt.Sprint(v)
}
