// Package logsink builds the loggers the watch subsystem reports non-fatal
// errors to. Every consumer treats its logger as optional; a nil logger
// means errors are dropped, never a crash.
package logsink

import (
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

const prefix = "[filewatch] "

// Stderr returns a logger writing to standard error.
func Stderr() *log.Logger {
	return log.New(os.Stderr, prefix, log.LstdFlags)
}

// Rotating returns a logger appending to a size-rotated file at path.
// The file and its parent directory are created on first write.
func Rotating(path string) *log.Logger {
	return log.New(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}, prefix, log.LstdFlags)
}
