// Package log is a thin facade over commonlog that hands out one scoped
// logger per subsystem. Nothing in the per-instruction hot path logs.
package log

import (
	"github.com/tliron/commonlog"

	_ "github.com/tliron/commonlog/simple"
)

// Init configures the backend. Verbosity follows commonlog conventions:
// -1 quiet, 0 errors+warnings, 1 adds info, 2 adds debug.
func Init(verbosity int) {
	commonlog.Configure(verbosity, nil)
}

// Get returns the scoped logger for a subsystem, e.g. "kite.vm".
func Get(name string) commonlog.Logger {
	return commonlog.GetLogger(name)
}
