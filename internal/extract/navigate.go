// Package extract implements the pure extraction engine: dotted-path JSON
// navigation, field normalizers, and the per-site Schema-driven Extract
// function that turns an embedded-JSON payload into a DetailRow.
//
// Grounded on original_source/propertyguru_extract_spyder.py's
// get_by_path/pick_first/get_data_root functions.
package extract

import (
	"strconv"
	"strings"
)

// Lookup walks a dotted path (e.g. "propertyOverviewData.propertyInfo.price.amount")
// through a JSON tree decoded into generic map[string]interface{}/[]interface{}
// values. A path segment that parses as a non-negative integer is treated as
// a list index; otherwise it is a map key. Lookup returns (nil, false) on
// any missing key, out-of-range index, or type mismatch along the way.
func Lookup(root interface{}, dottedPath string) (interface{}, bool) {
	cur := root
	for _, seg := range strings.Split(dottedPath, ".") {
		if seg == "" {
			continue
		}
		if idx, err := strconv.Atoi(seg); err == nil && idx >= 0 {
			list, ok := cur.([]interface{})
			if !ok || idx >= len(list) {
				return nil, false
			}
			cur = list[idx]
			continue
		}
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		v, present := m[seg]
		if !present {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// isEmpty mirrors the Python source's `in (None, "", [])` emptiness check.
func isEmpty(v interface{}) bool {
	if v == nil {
		return true
	}
	switch x := v.(type) {
	case string:
		return x == ""
	case []interface{}:
		return len(x) == 0
	default:
		return false
	}
}

// FirstNonEmpty walks an ordered list of candidate dotted paths and returns
// the value at the first one that resolves to a non-empty value, with the
// winning path string for traceability. Ported from pick_first.
func FirstNonEmpty(root interface{}, paths []string) (interface{}, string, bool) {
	for _, p := range paths {
		if v, ok := Lookup(root, p); ok && !isEmpty(v) {
			return v, p, true
		}
	}
	return nil, "", false
}

// FirstNonEmptyString is FirstNonEmpty coerced to a string via AsString.
func FirstNonEmptyString(root interface{}, paths []string) string {
	v, _, ok := FirstNonEmpty(root, paths)
	if !ok {
		return ""
	}
	return AsString(v)
}

// AsString coerces a decoded JSON scalar to its string form the way the
// Python source implicitly does when building row dicts (str(x) on
// non-string scalars, "" for nil).
func AsString(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		if x == float64(int64(x)) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return ""
	}
}

// DataRoot descends to the payload's canonical data root:
// props.pageProps.pageData.data. Returns the root unchanged if that path is
// absent, so callers can fall back to treating the whole payload as the
// root (matching pick_root_if_needed's permissiveness).
func DataRoot(payload interface{}) interface{} {
	if v, ok := Lookup(payload, "props.pageProps.pageData.data"); ok {
		return v
	}
	return payload
}

// IterDetailStrings recursively collects string leaf values from nodes that
// look like bounded "details" subtrees: maps with an "items" list, or any
// list-valued key whose name contains "detail" or "item" (case-insensitive),
// reading the value/text/label/name fields of each element. Ported from
// iter_detail_strings; used to scope free-text regex supplementation so it
// never runs over the entire payload.
func IterDetailStrings(node interface{}) []string {
	var out []string
	var walk func(n interface{})
	walk = func(n interface{}) {
		switch x := n.(type) {
		case map[string]interface{}:
			if items, ok := x["items"].([]interface{}); ok {
				for _, it := range items {
					out = append(out, stringFields(it)...)
				}
			}
			for k, v := range x {
				lk := strings.ToLower(k)
				if list, ok := v.([]interface{}); ok && (strings.Contains(lk, "detail") || strings.Contains(lk, "item")) {
					for _, it := range list {
						out = append(out, stringFields(it)...)
						walk(it)
					}
					continue
				}
				walk(v)
			}
		case []interface{}:
			for _, v := range x {
				walk(v)
			}
		}
	}
	walk(node)
	return out
}

// MetatableStrings collects the label/value/title strings out of
// detailsData.metatable.items, the bounded subtree car-park and furnishing
// free-text scanning runs over (separately from the broader
// IterDetailStrings subtree, since the metatable is the specific place the
// source payload keeps these short "icon: value" rows).
func MetatableStrings(root interface{}) []string {
	v, ok := Lookup(root, "detailsData.metatable.items")
	if !ok {
		return nil
	}
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	var out []string
	for _, it := range items {
		m, ok := it.(map[string]interface{})
		if !ok {
			continue
		}
		for _, k := range []string{"value", "title", "label"} {
			if s, ok := m[k].(string); ok && s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func stringFields(node interface{}) []string {
	m, ok := node.(map[string]interface{})
	if !ok {
		if s, ok := node.(string); ok {
			return []string{s}
		}
		return nil
	}
	var out []string
	for _, k := range []string{"value", "text", "label", "name"} {
		if s, ok := m[k].(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
