// Package monitoring carries the package-level logging indirection used by
// the toolkit libraries so binaries can route diagnostics through their own
// logger.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// Debugf is the verbose counterpart of Logf, muted by default. Extraction and
// matching emit per-cycle detail through it.
var Debugf func(format string, v ...interface{}) = func(string, ...interface{}) {}

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SetDebugLogger replaces the verbose logger. Passing nil mutes it again.
func SetDebugLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Debugf = func(string, ...interface{}) {}
		return
	}
	Debugf = f
}
