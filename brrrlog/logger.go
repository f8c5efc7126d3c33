// Package brrrlog provides structured logging for the engine, carrying
// call-graph identity (root id, call hash, task name, topic) on every log
// line.
//
// Two logger variants are available:
//   - Logger: non-sugared zap.Logger for the worker loop and memory CAS
//     loops (high performance, structured fields)
//   - SugaredLogger: printf-style logging for CLI/debug surfaces
//
// Use Logger.Sugar() to obtain a SugaredLogger when needed.
package brrrlog

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Context carries the call-graph identity fields attached to every log
// line emitted while processing one message.
type Context struct {
	RootID   string
	CallHash string
	TaskName string
	Topic    string
}

// Logger provides structured logging with call-graph context.
//
// Use this for worker-loop and memory paths where performance matters.
// For CLI/debug surfaces, use Sugar() to get a SugaredLogger.
type Logger struct {
	zap *zap.Logger
}

// SugaredLogger provides printf-style logging for CLI and debug surfaces.
type SugaredLogger struct {
	sugar *zap.SugaredLogger
}

// New creates a logger with no call-graph context, writing JSON to stderr.
// Use With to attach context once it becomes known.
func New() *Logger {
	return newWithWriter(Context{}, os.Stderr)
}

// With returns a logger with additional context fields merged in; fields
// left zero in ctx do not override ones already set.
func (l *Logger) With(ctx Context) *Logger {
	return &Logger{zap: l.zap.With(contextFields(ctx)...)}
}

func jsonCore(w io.Writer) zapcore.Core {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		MessageKey:  "message",
		EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	}
	return zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(w),
		zapcore.DebugLevel,
	)
}

func contextFields(ctx Context) []zap.Field {
	var fields []zap.Field
	if ctx.RootID != "" {
		fields = append(fields, zap.String("root_id", ctx.RootID))
	}
	if ctx.CallHash != "" {
		fields = append(fields, zap.String("call_hash", ctx.CallHash))
	}
	if ctx.TaskName != "" {
		fields = append(fields, zap.String("task_name", ctx.TaskName))
	}
	if ctx.Topic != "" {
		fields = append(fields, zap.String("topic", ctx.Topic))
	}
	return fields
}

func newWithWriter(ctx Context, w io.Writer) *Logger {
	zapLogger := zap.New(jsonCore(w)).With(contextFields(ctx)...)
	return &Logger{zap: zapLogger}
}

// Debug logs a debug message.
func (l *Logger) Debug(message string, fields map[string]any) {
	l.zap.Debug(message, zap.Any("fields", fields))
}

// Info logs an info message.
func (l *Logger) Info(message string, fields map[string]any) {
	l.zap.Info(message, zap.Any("fields", fields))
}

// Warn logs a warning message.
func (l *Logger) Warn(message string, fields map[string]any) {
	l.zap.Warn(message, zap.Any("fields", fields))
}

// Error logs an error message.
func (l *Logger) Error(message string, fields map[string]any) {
	l.zap.Error(message, zap.Any("fields", fields))
}

// Sugar returns a SugaredLogger for printf-style logging.
func (l *Logger) Sugar() *SugaredLogger {
	return &SugaredLogger{sugar: l.zap.Sugar()}
}

// Debugf logs a debug message with printf-style formatting.
func (s *SugaredLogger) Debugf(template string, args ...any) {
	s.sugar.Debugf(template, args...)
}

// Infof logs an info message with printf-style formatting.
func (s *SugaredLogger) Infof(template string, args ...any) {
	s.sugar.Infof(template, args...)
}

// Warnf logs a warning message with printf-style formatting.
func (s *SugaredLogger) Warnf(template string, args ...any) {
	s.sugar.Warnf(template, args...)
}

// Errorf logs an error message with printf-style formatting.
func (s *SugaredLogger) Errorf(template string, args ...any) {
	s.sugar.Errorf(template, args...)
}

// With returns a SugaredLogger with additional context fields.
func (s *SugaredLogger) With(args ...any) *SugaredLogger {
	return &SugaredLogger{sugar: s.sugar.With(args...)}
}

// Nop returns a Logger that discards all output; used as a safe default
// when no logger is configured.
func Nop() *Logger {
	return &Logger{zap: zap.NewNop()}
}
