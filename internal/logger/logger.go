// Package logger writes leveled, line-oriented messages to stderr. Debug
// messages are only written in verbose mode. A nil *Logger discards output.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Logger is safe for concurrent use.
type Logger struct {
	mu      sync.Mutex
	out     io.Writer
	verbose bool
}

// New returns a Logger writing to w, or to os.Stderr when w is nil.
func New(w io.Writer, verbose bool) *Logger {
	if w == nil {
		w = os.Stderr
	}
	return &Logger{out: w, verbose: verbose}
}

// Nop returns a Logger that writes nothing.
func Nop() *Logger {
	return New(io.Discard, false)
}

// Verbose reports whether debug messages are written.
func (l *Logger) Verbose() bool {
	return l != nil && l.verbose
}

// Debugf writes a message in verbose mode only.
func (l *Logger) Debugf(format string, args ...any) {
	if l.Verbose() {
		l.write("[DEBUG] ", format, args)
	}
}

// Infof writes an informational message.
func (l *Logger) Infof(format string, args ...any) {
	l.write("", format, args)
}

// Warnf writes a warning.
func (l *Logger) Warnf(format string, args ...any) {
	l.write("Warning: ", format, args)
}

func (l *Logger) write(prefix, format string, args []any) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.out, prefix+format+"\n", args...)
}
