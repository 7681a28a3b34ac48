package droplock

// Logger is the structured logging boundary of the console services.
// Args are alternating key/value pairs in slog style.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NopLogger discards everything.
type NopLogger struct{}

func NewNopLogger() *NopLogger { return &NopLogger{} }

func (*NopLogger) Debug(string, ...any) {}
func (*NopLogger) Info(string, ...any)  {}
func (*NopLogger) Warn(string, ...any)  {}
func (*NopLogger) Error(string, ...any) {}

// lockerAttrs returns the common log attributes for a locker.
func lockerAttrs(sectorID, lockerID string, extra ...any) []any {
	return append([]any{"sector", sectorID, "locker", lockerID}, extra...)
}
