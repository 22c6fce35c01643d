package monitoring

import "log"

// Logf is the package-level diagnostic logger used for non-fatal warnings
// (ledger write failures, version probe failures and similar). It defaults
// to log.Printf; callers may redirect or mute it with SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
