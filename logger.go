package wayland

import "log/slog"

// Logger is the interface for structured logging.
// It is designed to be compatible with *slog.Logger from the standard library.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// defaultLogger returns the default slog logger from the standard library.
func defaultLogger() Logger {
	return slog.Default()
}

// loggerWith returns a logger that adds args to every record.
func loggerWith(l Logger, args ...any) Logger {
	if sl, ok := l.(*slog.Logger); ok {
		return sl.With(args...)
	}
	return &fieldLogger{next: l, fields: args}
}

// fieldLogger prepends fixed key/value pairs for loggers without With.
type fieldLogger struct {
	next   Logger
	fields []any
}

func (l *fieldLogger) with(args []any) []any {
	return append(append([]any{}, l.fields...), args...)
}

func (l *fieldLogger) Debug(msg string, args ...any) { l.next.Debug(msg, l.with(args)...) }
func (l *fieldLogger) Info(msg string, args ...any)  { l.next.Info(msg, l.with(args)...) }
func (l *fieldLogger) Warn(msg string, args ...any)  { l.next.Warn(msg, l.with(args)...) }
func (l *fieldLogger) Error(msg string, args ...any) { l.next.Error(msg, l.with(args)...) }
