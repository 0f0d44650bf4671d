package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// NormalizeDirs trims, expands "~", cleans and absolutizes each entry, drops
// blanks and returns the distinct results in first-seen order.
func NormalizeDirs(dirs []string) ([]string, error) {
	if len(dirs) == 0 {
		return nil, nil
	}
	seen := make(map[string]struct{}, len(dirs))
	normalized := make([]string, 0, len(dirs))
	for _, raw := range dirs {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		dir, err := NormalizeDir(trimmed)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[dir]; ok {
			continue
		}
		seen[dir] = struct{}{}
		normalized = append(normalized, dir)
	}
	return normalized, nil
}

// NormalizeDir returns the cleaned absolute form of a single path.
func NormalizeDir(value string) (string, error) {
	expanded, err := expandHome(strings.TrimSpace(value))
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", value, err)
	}
	return filepath.Clean(abs), nil
}

func expandHome(value string) (string, error) {
	if value != "~" && !strings.HasPrefix(value, "~/") && !strings.HasPrefix(value, "~"+string(os.PathSeparator)) {
		return value, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expand %q: %w", value, err)
	}
	if value == "~" {
		return home, nil
	}
	return filepath.Join(home, value[2:]), nil
}

// IsWithin reports whether child is parent or lies underneath it.
func IsWithin(parent, child string) bool {
	parentPath := filepath.Clean(parent)
	childPath := filepath.Clean(child)
	rel, err := filepath.Rel(parentPath, childPath)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return false
	}
	return true
}
