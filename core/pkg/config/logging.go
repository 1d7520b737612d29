package config

// LogLevel takes the logrus level names plus none, which discards the
// subsystem output.
type LogLevel string

const (
	Info  LogLevel = "info"
	Warn  LogLevel = "warn"
	Debug LogLevel = "debug"
	Trace LogLevel = "trace"
	None  LogLevel = "none"
)

type Logging struct {
	Level LogLevel `mapstructure:"level"`
}
