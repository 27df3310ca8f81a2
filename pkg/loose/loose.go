// Package loose reads loosely-typed JSON trees whose shape drifts between API versions.
//
// Every accessor takes an ordered list of candidate paths; the first path that resolves
// to a present, non-null value wins. Path segments are separated by dots, and a numeric
// segment indexes into a list. Keys match exactly first, then case- and separator-insensitively,
// so "realName", "RealName" and "real_name" are interchangeable.
package loose

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Parse decodes JSON into a tree of map[string]any, []any, json.Number, string, bool and nil.
func Parse(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return v, nil
}

// Lookup returns the value at the first candidate path that resolves to a non-null value.
func Lookup(root any, paths ...string) (any, bool) {
	for _, path := range paths {
		if v, ok := lookupPath(root, path); ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// Has reports whether any candidate path resolves.
func Has(root any, paths ...string) bool {
	_, ok := Lookup(root, paths...)
	return ok
}

// IsNull reports whether path is present and explicitly null, as opposed to absent.
func IsNull(root any, path string) bool {
	v, ok := lookupPath(root, path)
	return ok && v == nil
}

// String returns the first candidate that is a non-empty string (numbers are formatted).
func String(root any, paths ...string) string {
	for _, path := range paths {
		v, ok := lookupPath(root, path)
		if !ok {
			continue
		}
		switch s := v.(type) {
		case string:
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		case json.Number:
			return s.String()
		}
	}
	return ""
}

// Float returns the first candidate that converts to a number, or 0.
func Float(root any, paths ...string) float64 {
	for _, path := range paths {
		v, ok := lookupPath(root, path)
		if !ok {
			continue
		}
		if f, ok := toFloat(v); ok {
			return f
		}
	}
	return 0
}

// Int returns the first candidate that converts to a number, truncated to int, or 0.
func Int(root any, paths ...string) int {
	f := Float(root, paths...)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int(f)
}

// List returns the first candidate that is a list.
func List(root any, paths ...string) []any {
	for _, path := range paths {
		if v, ok := lookupPath(root, path); ok {
			if l, ok := v.([]any); ok {
				return l
			}
		}
	}
	return nil
}

// Map returns the first candidate that is an object.
func Map(root any, paths ...string) map[string]any {
	for _, path := range paths {
		if v, ok := lookupPath(root, path); ok {
			if m, ok := v.(map[string]any); ok {
				return m
			}
		}
	}
	return nil
}

// lookupPath reports whether path is present; the value may be nil.
func lookupPath(root any, path string) (any, bool) {
	cur := root
	if path == "" {
		return cur, true
	}
	for seg := range strings.SplitSeq(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := lookupKey(node, seg)
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

func lookupKey(m map[string]any, key string) (any, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	want := foldKey(key)
	// Candidates are checked in a stable order so duplicate spellings resolve deterministically.
	var (
		best  string
		found bool
	)
	for k := range m {
		if foldKey(k) == want && (!found || k < best) {
			best, found = k, true
		}
	}
	if !found {
		return nil, false
	}
	return m[best], true
}

// foldKey lowercases and drops separators: "Real_Name" and "realName" both become "realname".
func foldKey(k string) string {
	var b strings.Builder
	b.Grow(len(k))
	for _, r := range strings.ToLower(k) {
		if r == '_' || r == '-' || r == ' ' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(n), ",", "")
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
