package realtime

import (
	"sort"
	"strings"
)

// Snapshot is an immutable view of the value stored at Path. Values are
// shared between listeners and must not be modified.
type Snapshot struct {
	Path  string
	Value any
}

// Exists reports whether the node holds data. Empty objects count as absent.
func (s Snapshot) Exists() bool {
	switch v := s.Value.(type) {
	case nil:
		return false
	case map[string]any:
		return len(v) > 0
	case []any:
		return len(v) > 0
	}
	return true
}

// Key is the last segment of Path.
func (s Snapshot) Key() string {
	if i := strings.LastIndex(s.Path, "/"); i >= 0 {
		return s.Path[i+1:]
	}
	return s.Path
}

// Map returns the value as an object, or nil when it is not one.
func (s Snapshot) Map() map[string]any {
	m, _ := s.Value.(map[string]any)
	return m
}

// Child returns the snapshot of a relative path below s.
func (s Snapshot) Child(path string) Snapshot {
	parts, err := SplitPath(path)
	if err != nil {
		return Snapshot{Path: Join(s.Path, path)}
	}
	return Snapshot{Path: Join(append([]string{s.Path}, parts...)...), Value: Lookup(s.Value, parts)}
}

// Children returns the direct children sorted by key.
func (s Snapshot) Children() []Snapshot {
	m := s.Map()
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Snapshot, 0, len(keys))
	for _, k := range keys {
		out = append(out, Snapshot{Path: Join(s.Path, k), Value: m[k]})
	}
	return out
}
