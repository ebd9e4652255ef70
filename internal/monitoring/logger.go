// Package monitoring carries the diagnostic log hook shared by the search
// loop, Pareto selection and the result store. Long searches emit progress
// through it (trial start/finish lines, front shortfall warnings); hosts
// embedding the engine as a library call SetLogger to redirect or mute that
// stream.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf
// and may be replaced by SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
