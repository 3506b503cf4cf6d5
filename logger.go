package kvstore

// Fields are structured values attached to one log line. The store always
// sets "ns"; per-record lines add "key", and commit lines add "op".
type Fields map[string]any

// Logger receives store diagnostics such as skipped rows and failed
// commits. Adapters for zap, logrus and slog live under log/.
type Logger interface {
	Debug(msg string, f Fields)
	Info(msg string, f Fields)
	Warn(msg string, f Fields)
	Error(msg string, f Fields)
}

// NopLogger is used when Options.Logger is nil.
type NopLogger struct{}

func (NopLogger) Debug(string, Fields) {}
func (NopLogger) Info(string, Fields)  {}
func (NopLogger) Warn(string, Fields)  {}
func (NopLogger) Error(string, Fields) {}
