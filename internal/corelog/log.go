// Package corelog is a thin bracketed-prefix logger, the Go port of the
// original BaseLog mixin: every supervised task gets its own named Logger,
// and some messages are also mirrored to the chat-log queue.
package corelog

import (
	"fmt"
	"log"
	"os"
)

// Notifier receives human-oriented alert lines (implemented by chatlog.Queue).
type Notifier interface {
	Enqueue(line string)
}

// Logger wraps the stdlib logger with a bracketed name prefix and an
// optional chat mirror.
type Logger struct {
	name   string
	std    *log.Logger
	notify Notifier
}

// New builds a Logger writing to stderr with prefix "[name] ".
func New(name string) *Logger {
	return &Logger{
		name: name,
		std:  log.New(os.Stderr, fmt.Sprintf("[%s] ", name), log.LstdFlags),
	}
}

// WithNotifier returns a copy of l that also mirrors Notify calls to n.
func (l *Logger) WithNotifier(n Notifier) *Logger {
	cp := *l
	cp.notify = n
	return &cp
}

// Notifier returns l's attached notifier, nil if none — used to propagate
// the same chat sink to a per-account sub-logger.
func (l *Logger) Notifier() Notifier {
	return l.notify
}

// Infof logs at the default level.
func (l *Logger) Infof(format string, args ...any) {
	l.std.Printf(format, args...)
}

// Errorf logs an error-level line.
func (l *Logger) Errorf(format string, args ...any) {
	l.std.Printf("ERROR: "+format, args...)
}

// Notify logs locally and, if a notifier is attached, also enqueues the line
// for the chat channel — the "log twice" pattern required for order
// placement/cancel results (§7.4).
func (l *Logger) Notify(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	l.std.Print(msg)
	if l.notify != nil {
		l.notify.Enqueue(fmt.Sprintf("[%s] %s", l.name, msg))
	}
}

// Fatalf logs and terminates the process — reserved for startup configuration
// errors (§7.6).
func (l *Logger) Fatalf(format string, args ...any) {
	l.std.Fatalf(format, args...)
}
