package manifest

import (
	"fmt"
	"strings"
)

// DeepMerge returns a new tree holding dst overlaid with src. Nested
// mappings merge key by key; any other src value (lists included) replaces
// the dst value. Neither input is modified.
func DeepMerge(dst, src map[string]any) map[string]any {
	out := Clone(dst)
	if out == nil {
		out = make(map[string]any, len(src))
	}
	for key, value := range src {
		srcMap, srcIsMap := AsMap(value)
		dstMap, dstIsMap := AsMap(out[key])
		if srcIsMap && dstIsMap {
			out[key] = DeepMerge(dstMap, srcMap)
			continue
		}
		out[key] = cloneValue(value)
	}
	return out
}

// GetByPath resolves a dotted path in tree. Literal keys containing dots
// are preferred over descending, so "core.installer" matches either
// {"core.installer": v} or {"core": {"installer": v}}.
func GetByPath(tree map[string]any, path string) (any, bool) {
	if path == "" {
		return tree, true
	}
	parts := strings.Split(path, ".")
	for n := len(parts); n >= 1; n-- {
		v, ok := tree[strings.Join(parts[:n], ".")]
		if !ok {
			continue
		}
		if n == len(parts) {
			return v, true
		}
		sub, ok := AsMap(v)
		if !ok {
			continue
		}
		if found, ok := GetByPath(sub, strings.Join(parts[n:], ".")); ok {
			return found, true
		}
	}
	return nil, false
}

// AsMap normalizes decoded mappings to map[string]any.
func AsMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	default:
		return nil, false
	}
}

// Clone deep-copies a tree of maps and lists. Scalars are shared.
func Clone(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	if m, ok := AsMap(v); ok {
		return Clone(m)
	}
	if list, ok := v.([]any); ok {
		out := make([]any, len(list))
		for i, item := range list {
			out[i] = cloneValue(item)
		}
		return out
	}
	return v
}
