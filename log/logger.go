// Package log provides structured logging carrying the run identity.
package log

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/duelbench/duelbench/types"
)

// Logger writes JSON log lines to stderr. Every entry carries the run_id
// and submission so interleaved output from concurrent runs stays
// attributable. Stdout is reserved for the report.
type Logger struct {
	zap *zap.Logger
}

// NewLogger creates a logger scoped to the given run. A nil meta yields a
// logger without identity fields, used before the run id exists.
func NewLogger(meta *types.RunMeta) *Logger {
	var fields []zap.Field
	if meta != nil {
		fields = append(fields,
			zap.String("run_id", meta.RunID),
			zap.String("submission", meta.Submission),
		)
	}
	return &Logger{zap: zap.New(jsonCore(os.Stderr)).With(fields...)}
}

// WithOutput returns a copy of the logger writing to w. Tests pass
// io.Discard.
func (l *Logger) WithOutput(w io.Writer) *Logger {
	core := jsonCore(w)
	return &Logger{zap: l.zap.WithOptions(zap.WrapCore(func(zapcore.Core) zapcore.Core { return core }))}
}

func jsonCore(w io.Writer) zapcore.Core {
	enc := zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		MessageKey:  "message",
		EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	}
	return zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.AddSync(w), zapcore.DebugLevel)
}

func (l *Logger) Debug(message string, fields map[string]any) {
	l.zap.Debug(message, zap.Any("fields", fields))
}

func (l *Logger) Info(message string, fields map[string]any) {
	l.zap.Info(message, zap.Any("fields", fields))
}

func (l *Logger) Warn(message string, fields map[string]any) {
	l.zap.Warn(message, zap.Any("fields", fields))
}

func (l *Logger) Error(message string, fields map[string]any) {
	l.zap.Error(message, zap.Any("fields", fields))
}
