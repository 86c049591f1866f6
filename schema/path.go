package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// Segment is one step of a path: either an object key or an array index.
type Segment struct {
	Key     string
	Index   int
	IsIndex bool
}

// Paths use dot/index notation: "lessons[2].exercise_type". The empty path is
// the document root. Object keys containing '.' or '[' cannot be addressed.

// JoinKey appends an object key to a path.
func JoinKey(base, key string) string {
	if base == "" {
		return key
	}
	return base + "." + key
}

// JoinIndex appends an array index to a path.
func JoinIndex(base string, i int) string {
	return fmt.Sprintf("%s[%d]", base, i)
}

// ParsePath splits a path into segments.
func ParsePath(path string) ([]Segment, error) {
	var segs []Segment
	i := 0
	for i < len(path) {
		switch path[i] {
		case '.':
			i++
		case '[':
			end := strings.IndexByte(path[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("unterminated index in path %q", path)
			}
			n, err := strconv.Atoi(path[i+1 : i+end])
			if err != nil || n < 0 {
				return nil, fmt.Errorf("invalid index in path %q", path)
			}
			segs = append(segs, Segment{Index: n, IsIndex: true})
			i += end + 1
		default:
			j := i
			for j < len(path) && path[j] != '.' && path[j] != '[' {
				j++
			}
			segs = append(segs, Segment{Key: path[i:j]})
			i = j
		}
	}
	return segs, nil
}

// FormatPath is the inverse of ParsePath.
func FormatPath(segs []Segment) string {
	var b strings.Builder
	for _, s := range segs {
		if s.IsIndex {
			fmt.Fprintf(&b, "[%d]", s.Index)
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(s.Key)
	}
	return b.String()
}

// Parent returns the path of the container holding path. The root has no
// parent and returns itself.
func Parent(path string) string {
	segs, err := ParsePath(path)
	if err != nil || len(segs) == 0 {
		return ""
	}
	return FormatPath(segs[:len(segs)-1])
}

// CommonAncestor returns the longest path that prefixes every given path.
func CommonAncestor(paths []string) string {
	if len(paths) == 0 {
		return ""
	}
	common, err := ParsePath(paths[0])
	if err != nil {
		return ""
	}
	for _, p := range paths[1:] {
		segs, err := ParsePath(p)
		if err != nil {
			return ""
		}
		n := 0
		for n < len(common) && n < len(segs) && common[n] == segs[n] {
			n++
		}
		common = common[:n]
	}
	return FormatPath(common)
}

// Pattern collapses array indices so that violations at "lessons[0].type" and
// "lessons[7].type" aggregate under "lessons[*].type".
func Pattern(path string) string {
	segs, err := ParsePath(path)
	if err != nil {
		return path
	}
	var b strings.Builder
	for _, s := range segs {
		if s.IsIndex {
			b.WriteString("[*]")
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(s.Key)
	}
	if b.Len() == 0 {
		return "$"
	}
	return b.String()
}

// FieldName drops array indices: "lessons[2].exercise_type" becomes
// "lessons.exercise_type".
func FieldName(path string) string {
	segs, err := ParsePath(path)
	if err != nil {
		return path
	}
	keys := make([]string, 0, len(segs))
	for _, s := range segs {
		if !s.IsIndex {
			keys = append(keys, s.Key)
		}
	}
	return strings.Join(keys, ".")
}

// Leaf returns the last object key on the path.
func Leaf(path string) string {
	segs, err := ParsePath(path)
	if err != nil {
		return path
	}
	for i := len(segs) - 1; i >= 0; i-- {
		if !segs[i].IsIndex {
			return segs[i].Key
		}
	}
	return ""
}

// Lookup returns the value at path.
func Lookup(data any, path string) (any, bool) {
	segs, err := ParsePath(path)
	if err != nil {
		return nil, false
	}
	cur := data
	for _, s := range segs {
		if s.IsIndex {
			arr, ok := cur.([]any)
			if !ok || s.Index >= len(arr) {
				return nil, false
			}
			cur = arr[s.Index]
			continue
		}
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[s.Key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Set replaces the value at path in place and returns the (possibly new) root.
// Every container on the way must already exist; the final key of an object
// may be new.
func Set(data any, path string, value any) (any, error) {
	segs, err := ParsePath(path)
	if err != nil {
		return data, err
	}
	if len(segs) == 0 {
		return value, nil
	}
	parent, ok := Lookup(data, FormatPath(segs[:len(segs)-1]))
	if !ok {
		return data, fmt.Errorf("path %q: parent not found", path)
	}
	last := segs[len(segs)-1]
	if last.IsIndex {
		arr, ok := parent.([]any)
		if !ok || last.Index >= len(arr) {
			return data, fmt.Errorf("path %q: index out of range", path)
		}
		arr[last.Index] = value
		return data, nil
	}
	m, ok := parent.(map[string]any)
	if !ok {
		return data, fmt.Errorf("path %q: parent is not an object", path)
	}
	m[last.Key] = value
	return data, nil
}

// Clone deep-copies a decoded JSON value.
func Clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = Clone(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Clone(e)
		}
		return out
	default:
		return v
	}
}

func displayPath(path string) string {
	if path == "" {
		return "<root>"
	}
	return path
}
