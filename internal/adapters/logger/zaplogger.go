package logger

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"signalCopyBot/internal/ports"
)

// LogLevel defines the logging level.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a string level to LogLevel.
func ParseLevel(levelStr string) LogLevel {
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		return LevelDebug
	case "INFO":
		return LevelInfo
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo // Default to Info
	}
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Options configures the zap logger.
type Options struct {
	Level LogLevel
	// File enables a JSON log file rotated by lumberjack. Empty disables file output.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// ZapLogger implements the ports.Logger interface on top of zap.
type ZapLogger struct {
	logger *zap.Logger
}

// NewZapLogger creates a logger writing human readable lines to stdout and,
// when opts.File is set, JSON lines to a rotated file.
func NewZapLogger(opts Options) (*ZapLogger, error) {
	level := opts.Level.zapLevel()

	consoleEncoderConfig := zap.NewDevelopmentEncoderConfig()
	consoleEncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	consoleEncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")
	consoleEncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleEncoderConfig), zapcore.AddSync(os.Stdout), level),
	}

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, err
		}
		fileEncoderConfig := zap.NewProductionEncoderConfig()
		fileEncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    orDefault(opts.MaxSizeMB, 10),
			MaxBackups: orDefault(opts.MaxBackups, 30),
			MaxAge:     orDefault(opts.MaxAgeDays, 30),
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileEncoderConfig), zapcore.AddSync(rotator), level))
	}

	return NewZapLoggerWithCore(zapcore.NewTee(cores...)), nil
}

// NewZapLoggerWithCore wraps an existing core, mainly for tests.
func NewZapLoggerWithCore(core zapcore.Core) *ZapLogger {
	return &ZapLogger{
		logger: zap.New(core, zap.AddCaller(), zap.AddCallerSkip(2), zap.AddStacktrace(zapcore.ErrorLevel)),
	}
}

// Sync flushes buffered entries.
func (l *ZapLogger) Sync() error {
	return l.logger.Sync()
}

func (l *ZapLogger) log(ctx context.Context, level zapcore.Level, msg string, err error, fields ...map[string]interface{}) {
	ce := l.logger.Check(level, msg)
	if ce == nil {
		return
	}

	zf := make([]zap.Field, 0, 8)
	if id := ports.TraceID(ctx); id != "" {
		zf = append(zf, zap.String("traceId", id))
	}
	if err != nil {
		zf = append(zf, zap.Error(err))
	}
	if len(fields) > 0 && fields[0] != nil {
		keys := make([]string, 0, len(fields[0]))
		for k := range fields[0] {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			zf = append(zf, zap.Any(k, fields[0][k]))
		}
	}
	ce.Write(zf...)
}

// Debug logs a message at Debug level.
func (l *ZapLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.log(ctx, zapcore.DebugLevel, msg, nil, fields...)
}

// Info logs a message at Info level.
func (l *ZapLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.log(ctx, zapcore.InfoLevel, msg, nil, fields...)
}

// Warn logs a message at Warning level.
func (l *ZapLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.log(ctx, zapcore.WarnLevel, msg, nil, fields...)
}

// Error logs an error message at Error level.
func (l *ZapLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	l.log(ctx, zapcore.ErrorLevel, msg, err, fields...)
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
