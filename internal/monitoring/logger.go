// Package monitoring holds the process-wide diagnostic logger used by the
// pipeline's library packages.
package monitoring

import "log"

// Logf is the package-level diagnostic logger for pipeline internals. It
// defaults to log.Printf; callers that need redirected or muted output can
// swap it with SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op
// logger, which is the usual choice in tests.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
