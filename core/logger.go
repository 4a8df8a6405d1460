package core

// Logger is any leveled logger that can report to an error tracker.
// Implementations may inspect args for well-known types (errors, actor info)
// and attach them to the report.
type Logger interface {
	Enable(enabled bool)
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Critical(msg string, args ...interface{})
}
