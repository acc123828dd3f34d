package realtime

import (
	"fmt"
	"strings"
	"unicode"
)

// ValidateKey reports whether key can be used as a single path segment.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidPath)
	}
	for _, r := range key {
		switch {
		case r == '.', r == '$', r == '#', r == '[', r == ']', r == '/':
			return fmt.Errorf("%w: key %q contains %q", ErrInvalidPath, key, r)
		case unicode.IsControl(r):
			return fmt.Errorf("%w: key %q contains a control character", ErrInvalidPath, key)
		}
	}
	return nil
}

// SplitPath returns the validated segments of path. Leading, trailing and
// repeated slashes are ignored; the empty path addresses the root.
func SplitPath(path string) ([]string, error) {
	raw := strings.Split(path, "/")
	parts := make([]string, 0, len(raw))
	for _, p := range raw {
		if p == "" {
			continue
		}
		if err := ValidateKey(p); err != nil {
			return nil, err
		}
		parts = append(parts, p)
	}
	return parts, nil
}

// Join builds a path from segments, skipping empty ones.
func Join(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "/")
}

// Related reports whether a write at one path can change the value at the
// other, i.e. one is a prefix of the other.
func Related(a, b []string) bool {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
