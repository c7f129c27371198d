// Package logger defines the minimal structured logging facade used by the
// permission engine. Implementations accept alternating key/value pairs.
package logger

// Logger is the logging interface injected into the engine. Keeping it small
// makes it trivial to mock in tests.
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Warn(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
}

// TraceIDFunc generates a correlation/trace ID string for each request/log.
// It should be cheap and safe for concurrent calls.
type TraceIDFunc func() string
