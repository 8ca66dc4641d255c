package observability

import "log/slog"

// SlogLogger adapts a *slog.Logger to the Logger interface so applications
// that already log through slog can pass their logger straight in.
type SlogLogger struct {
	l *slog.Logger
}

func NewSlogLogger(l *slog.Logger) *SlogLogger {
	if l == nil {
		l = slog.Default()
	}
	return &SlogLogger{l: l}
}

func args(fields []Field) []any {
	out := make([]any, 0, len(fields)*2)
	for _, f := range fields {
		out = append(out, f.Key(), f.Value())
	}
	return out
}

func (s *SlogLogger) Debug(msg string, fields ...Field) { s.l.Debug(msg, args(fields)...) }
func (s *SlogLogger) Info(msg string, fields ...Field)  { s.l.Info(msg, args(fields)...) }
func (s *SlogLogger) Warn(msg string, fields ...Field)  { s.l.Warn(msg, args(fields)...) }
func (s *SlogLogger) Error(msg string, fields ...Field) { s.l.Error(msg, args(fields)...) }

func (s *SlogLogger) With(fields ...Field) Logger {
	return &SlogLogger{l: s.l.With(args(fields)...)}
}
