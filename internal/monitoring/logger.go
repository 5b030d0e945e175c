// Package monitoring provides the shared diagnostic logger for the shield.
//
// The control loop must never block on logging, so Logf is expected to be
// backed by something cheap (stdlib log by default). Production deployments
// can redirect it; benchmark and property tests usually mute it.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but
// may be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
