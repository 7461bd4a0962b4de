// Package logx provides the small prefixed-logger wrapper used throughout
// the daemons, matching the plain stdlib-log idiom the rest of the codebase
// follows (no structured logging library is pulled in for this).
package logx

import (
	"log"
	"os"
)

// Logger prefixes every line with a component tag.
type Logger struct {
	prefix string
	std    *log.Logger
}

// New returns a Logger that writes to stderr with the given component tag.
func New(component string) *Logger {
	return &Logger{
		prefix: "[" + component + "] ",
		std:    log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds),
	}
}

func (l *Logger) Printf(format string, args ...interface{}) {
	l.std.Printf(l.prefix+format, args...)
}

func (l *Logger) Println(args ...interface{}) {
	l.std.Println(append([]interface{}{l.prefix}, args...)...)
}

// With returns a new Logger scoped under this one, e.g. "router.c8".
func (l *Logger) With(sub string) *Logger {
	return &Logger{
		prefix: l.prefix[:len(l.prefix)-2] + "." + sub + "] ",
		std:    l.std,
	}
}
