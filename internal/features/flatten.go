// Package features turns one raw event plus its session history into
// the flat, typed context record fed to the judgment prompt.
package features

// #region imports
import (
	"strconv"
)

// #endregion

// #region flatten

// Flatten recursively flattens a parsed JSON document into dot-joined
// keys. Nested mappings recurse, list elements are keyed by index, and
// scalar leaves are kept as-is, so the result is total and lossless for
// scalars. Key order is irrelevant to callers.
func Flatten(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	flattenInto(out, "", doc)
	return out
}

func flattenInto(out map[string]any, prefix string, v any) {
	switch val := v.(type) {
	case map[string]any:
		for k, child := range val {
			flattenInto(out, joinPath(prefix, k), child)
		}
	case []any:
		for i, child := range val {
			flattenInto(out, joinPath(prefix, strconv.Itoa(i)), child)
		}
	default:
		if prefix != "" {
			out[prefix] = val
		}
	}
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// #endregion flatten

// #region last-segment

// lastSegment returns the final dot-separated path component.
func lastSegment(key string) string {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '.' {
			return key[i+1:]
		}
	}
	return key
}

// #endregion last-segment
