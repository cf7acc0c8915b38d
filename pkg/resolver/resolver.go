// Package resolver provides placeholder substitution for workflow node
// configurations. It supports two forms: a string that is a pure "$.path"
// reference is replaced by the referenced value with its runtime type
// preserved, and "{{ path }}" fragments inside a string are replaced by the
// stringified value at that path. It is deliberately not an expression
// language: no arithmetic, no function calls.
package resolver

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	interpolationPattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

	// $.segment, $.a.b[0], $.a['key']
	pathRefPattern = regexp.MustCompile(`^\$\.[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*|\[[0-9]+\]|\['[^']+'\])*$`)

	segmentPattern = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*|\[[0-9]+\]|\['[^']+'\]`)
)

// MalformedPathError reports a string that looked like a path reference but
// does not match the path grammar.
type MalformedPathError struct {
	Expr string
}

func (e *MalformedPathError) Error() string {
	return fmt.Sprintf("malformed path expression %q", e.Expr)
}

// Resolver substitutes placeholders in arbitrary config values against a
// root document (the execution state plus inputs).
type Resolver struct{}

// New creates a resolver.
func New() *Resolver {
	return &Resolver{}
}

// Resolve walks value recursively and returns a clone with all placeholders
// substituted against root. Maps and slices are copied; other values pass
// through unchanged.
func (r *Resolver) Resolve(value any, root map[string]any) (any, error) {
	switch v := value.(type) {
	case string:
		return r.resolveString(v, root)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			resolved, err := r.Resolve(item, root)
			if err != nil {
				return nil, fmt.Errorf("resolving %q: %w", k, err)
			}
			out[k] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			resolved, err := r.Resolve(item, root)
			if err != nil {
				return nil, fmt.Errorf("resolving index %d: %w", i, err)
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return value, nil
	}
}

// ResolveConfig resolves every value of a config map. The returned map is a
// fresh clone; the input is never mutated.
func (r *Resolver) ResolveConfig(config, root map[string]any) (map[string]any, error) {
	resolved, err := r.Resolve(config, root)
	if err != nil {
		return nil, err
	}
	if resolved == nil {
		return map[string]any{}, nil
	}
	return resolved.(map[string]any), nil
}

func (r *Resolver) resolveString(s string, root map[string]any) (any, error) {
	if strings.HasPrefix(s, "$.") {
		if !pathRefPattern.MatchString(s) {
			return nil, &MalformedPathError{Expr: s}
		}
		// Pure reference: the value replaces the string entirely, keeping
		// its type. An unresolvable path yields nil, not an error.
		val, _ := Lookup(root, s[2:])
		return val, nil
	}
	if !strings.Contains(s, "{{") {
		return s, nil
	}
	result := interpolationPattern.ReplaceAllStringFunc(s, func(match string) string {
		inner := strings.TrimSpace(match[2 : len(match)-2])
		inner = strings.TrimPrefix(inner, "$.")
		val, ok := Lookup(root, inner)
		if !ok {
			return ""
		}
		return Stringify(val)
	})
	return result, nil
}

// Lookup navigates a dot path (with optional [n] and ['key'] selectors) into
// root. The second return reports whether the full path resolved.
func Lookup(root map[string]any, path string) (any, bool) {
	if path == "" {
		return root, true
	}
	var current any = root
	for _, seg := range segmentPattern.FindAllString(path, -1) {
		switch {
		case strings.HasPrefix(seg, "['"):
			key := seg[2 : len(seg)-2]
			m, ok := current.(map[string]any)
			if !ok {
				return nil, false
			}
			current, ok = m[key]
			if !ok {
				return nil, false
			}
		case strings.HasPrefix(seg, "["):
			idx, err := strconv.Atoi(seg[1 : len(seg)-1])
			if err != nil {
				return nil, false
			}
			arr, ok := current.([]any)
			if !ok || idx < 0 || idx >= len(arr) {
				return nil, false
			}
			current = arr[idx]
		default:
			m, ok := current.(map[string]any)
			if !ok {
				return nil, false
			}
			current, ok = m[seg]
			if !ok {
				return nil, false
			}
		}
	}
	return current, true
}

// Stringify renders a resolved value for interpolation.
func Stringify(v any) string {
	if v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}
