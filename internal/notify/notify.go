// Package notify delivers human-readable session status messages (joined,
// disconnected, timed out, ...) to whoever displays them. Delivery is fire
// and forget: sinks never report failure to the session.
package notify

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Level classifies a notification for display.
type Level string

const (
	Info    Level = "info"
	Success Level = "success"
	Error   Level = "error"
)

// Sink receives notifications.
type Sink interface {
	Notify(message string, level Level)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(message string, level Level)

// Notify calls f.
func (f SinkFunc) Notify(message string, level Level) { f(message, level) }

// Discard drops every notification.
var Discard Sink = SinkFunc(func(string, Level) {})

// Multi fans a notification out to several sinks in order.
type Multi []Sink

// Notify forwards to every sink.
func (m Multi) Notify(message string, level Level) {
	for _, s := range m {
		s.Notify(message, level)
	}
}

// LogSink writes notifications to a structured logger. Error-level
// notifications are logged at warn: they describe the session, not a fault
// in this process.
type LogSink struct {
	Logger *slog.Logger
}

// Notify logs the message.
func (s LogSink) Notify(message string, level Level) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if level == Error {
		logger.Warn("notification", "level", string(level), "message", message)
		return
	}
	logger.Info("notification", "level", string(level), "message", message)
}

// WriterSink prints one line per notification, e.g. "[success] Host session started: AB12CD".
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink creates a sink printing to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// Notify prints the message.
func (s *WriterSink) Notify(message string, level Level) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, "[%s] %s\n", level, message)
}
