// Package monitoring carries the agent's diagnostic logging indirection.
package monitoring

import "log"

// Logf is the package-level diagnostic logger, defaulting to log.Printf.
// Pipeline components log through it so tests can mute or capture output
// without plumbing a logger through every constructor.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op
// logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
