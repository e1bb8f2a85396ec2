// Package security guards filesystem targets derived from untrusted input:
// archive entry names and report artifact names built from user-provided
// test-run labels.
package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// WithinDir reports whether path stays inside dir after cleaning. It rejects
// targets that escape through .. components, as crafted archive entries do.
func WithinDir(dir, path string) error {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return fmt.Errorf("path %s is outside %s: %w", path, dir, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("path %s escapes %s", path, dir)
	}
	return nil
}

// SanitizeFilename makes a safe file name from an arbitrary label such as a
// test-run or recording name. Characters outside ASCII letters, digits, dot,
// underscore and dash become single underscores; the result is length-capped.
func SanitizeFilename(s string) string {
	const maxLen = 128
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
