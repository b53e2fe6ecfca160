// Package logger provides module-scoped structured logging on top of
// log/slog.
//
// Console output is text on stderr, leaving stdout to the event stream of
// the structured output modes. A JSON log file can be enabled for long
// batch runs.
//
//	cl, err := logger.NewCentralLogger(&cfg)
//	if err != nil {
//	    return err
//	}
//	defer cl.Close()
//	logger.SetGlobal(cl)
//
//	log := cl.Module("pipeline")
//	log.Info("file processed", logger.String("path", path), logger.Int("detections", n))
//
// Modules nest: cl.Module("pipeline").Module("processor") logs with
// module="pipeline.processor".
package logger

import "time"

// LogLevel is a level name as used in configuration.
type LogLevel string

const (
	LogLevelTrace LogLevel = "trace"
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Field is a structured log attribute.
type Field struct {
	Key   string
	Value any
}

// Logger is the logging interface passed around the application.
type Logger interface {
	// Module returns a logger for a sub-module.
	Module(name string) Logger
	// With returns a logger that adds fields to every record.
	With(fields ...Field) Logger

	Trace(msg string, fields ...Field)
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

func String(key, value string) Field { return Field{Key: key, Value: value} }

func Int(key string, value int) Field { return Field{Key: key, Value: value} }

// Float64 values are rounded to three decimals when rendered.
func Float64(key string, value float64) Field { return Field{Key: key, Value: value} }

func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }

// Duration renders as text such as "1.5s" in both console and JSON output.
func Duration(key string, value time.Duration) Field { return Field{Key: key, Value: value} }

// Error adds err under the "error" key.
func Error(err error) Field {
	if err == nil {
		return Field{Key: "error"}
	}
	return Field{Key: "error", Value: err.Error()}
}
