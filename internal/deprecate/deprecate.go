// Package deprecate emits one-time warnings for superseded toolkit APIs.
// Renamed functions keep a thin alias that calls Warn so existing scripts
// surface the rename without failing.
package deprecate

import (
	"sync"

	"github.com/openadas/stk/internal/monitoring"
)

var (
	mu   sync.Mutex
	seen = make(map[string]struct{})
)

// Warn logs a deprecation notice for old the first time it is called,
// pointing callers at the replacement. Repeat calls for the same name are
// silent.
func Warn(old, replacement string) {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := seen[old]; ok {
		return
	}
	seen[old] = struct{}{}
	monitoring.Logf("deprecated: %s is superseded by %s", old, replacement)
}

// Reset clears the recorded warnings so tests can observe them again.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	seen = make(map[string]struct{})
}
