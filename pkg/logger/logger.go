// Package logger provides structured logging with rotation support.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	instance *Logger
	once     sync.Once
)

// Logger wraps zap logger with additional functionality.
type Logger struct {
	zapLogger *zap.Logger
	sugar     *zap.SugaredLogger
	rotator   *lumberjack.Logger
	level     zapcore.Level
}

// Config holds logger configuration.
type Config struct {
	LogPath    string // Path to log file
	Level      string // Log level: debug, info, warn, error
	MaxSizeMB  int    // Max size in megabytes before rotation (default 10)
	MaxBackups int    // Max number of backup files to keep
	Console    bool   // Also output to console
	// ConsoleLevel overrides Level for the console; empty means Level.
	ConsoleLevel string
	Writer       io.Writer // Console destination, stderr when nil
}

// GetInstance returns the process-wide logger instance.
func GetInstance() *Logger {
	once.Do(func() {
		instance = &Logger{}
	})
	return instance
}

// New builds a standalone logger, mostly useful in tests.
func New(config Config) (*Logger, error) {
	l := &Logger{}
	if err := l.Initialize(config); err != nil {
		return nil, err
	}
	return l, nil
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	z := zap.NewNop()
	return &Logger{zapLogger: z, sugar: z.Sugar()}
}

// ParseLevel maps a level name to a zap level, defaulting to info.
func ParseLevel(name string) zapcore.Level {
	switch name {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Initialize sets up the logger with the given configuration.
func (l *Logger) Initialize(config Config) error {
	if config.MaxSizeMB == 0 {
		config.MaxSizeMB = 10
	}
	if config.MaxBackups == 0 {
		config.MaxBackups = 5
	}

	l.level = ParseLevel(config.Level)

	if config.LogPath != "" {
		if err := os.MkdirAll(filepath.Dir(config.LogPath), 0755); err != nil {
			return err
		}
		l.rotator = &lumberjack.Logger{
			Filename:   config.LogPath,
			MaxSize:    config.MaxSizeMB,
			MaxBackups: config.MaxBackups,
		}
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var cores []zapcore.Core

	// File core (JSON)
	if l.rotator != nil {
		fileEncoder := zapcore.NewJSONEncoder(encoderConfig)
		cores = append(cores, zapcore.NewCore(fileEncoder, zapcore.AddSync(l.rotator), l.level))
	}

	if config.Console {
		out := config.Writer
		if out == nil {
			out = os.Stderr
		}
		consoleLevel := l.level
		if config.ConsoleLevel != "" {
			consoleLevel = ParseLevel(config.ConsoleLevel)
		}
		consoleEncoder := zapcore.NewConsoleEncoder(encoderConfig)
		cores = append(cores, zapcore.NewCore(consoleEncoder, zapcore.AddSync(out), consoleLevel))
	}

	core := zapcore.NewTee(cores...)
	l.zapLogger = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zapcore.ErrorLevel))
	l.sugar = l.zapLogger.Sugar()

	return nil
}

// Close flushes buffered entries and closes the log file.
func (l *Logger) Close() error {
	if l.zapLogger != nil {
		_ = l.zapLogger.Sync()
	}
	if l.rotator != nil {
		return l.rotator.Close()
	}
	return nil
}

// Rotate forces the log file to roll over.
func (l *Logger) Rotate() error {
	if l.rotator == nil {
		return nil
	}
	return l.rotator.Rotate()
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...zap.Field) {
	if l.zapLogger != nil {
		l.zapLogger.Debug(msg, fields...)
	}
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...zap.Field) {
	if l.zapLogger != nil {
		l.zapLogger.Info(msg, fields...)
	}
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...zap.Field) {
	if l.zapLogger != nil {
		l.zapLogger.Warn(msg, fields...)
	}
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...zap.Field) {
	if l.zapLogger != nil {
		l.zapLogger.Error(msg, fields...)
	}
}

// Debugf logs a formatted debug message.
func (l *Logger) Debugf(template string, args ...interface{}) {
	if l.sugar != nil {
		l.sugar.Debugf(template, args...)
	}
}

// Infof logs a formatted info message.
func (l *Logger) Infof(template string, args ...interface{}) {
	if l.sugar != nil {
		l.sugar.Infof(template, args...)
	}
}

// Warnf logs a formatted warning message.
func (l *Logger) Warnf(template string, args ...interface{}) {
	if l.sugar != nil {
		l.sugar.Warnf(template, args...)
	}
}

// Errorf logs a formatted error message.
func (l *Logger) Errorf(template string, args ...interface{}) {
	if l.sugar != nil {
		l.sugar.Errorf(template, args...)
	}
}

// With returns a child logger carrying the given fields on every entry.
func (l *Logger) With(fields ...zap.Field) *Logger {
	if l.zapLogger == nil {
		return l
	}
	z := l.zapLogger.With(fields...)
	return &Logger{zapLogger: z, sugar: z.Sugar(), level: l.level}
}

// LogTransfer logs a file transfer event.
func (l *Logger) LogTransfer(direction, protocol, localPath, remotePath string, size int64, duration time.Duration, err error) {
	fields := []zap.Field{
		zap.String("direction", direction),
		zap.String("protocol", protocol),
		zap.String("local_path", localPath),
		zap.String("remote_path", remotePath),
		zap.Int64("size_bytes", size),
		zap.Duration("duration", duration),
	}

	if err != nil {
		fields = append(fields, zap.Error(err))
		l.Error("transfer failed", fields...)
		return
	}

	if secs := duration.Seconds(); secs > 0 {
		fields = append(fields, zap.Float64("speed_mbps", float64(size)/secs/1024/1024))
	}
	l.Debug("transfer completed", fields...)
}

// LogConnection logs a connection event.
func (l *Logger) LogConnection(protocol, host string, port int, connected bool, err error) {
	fields := []zap.Field{
		zap.String("protocol", protocol),
		zap.String("host", host),
		zap.Int("port", port),
		zap.Bool("connected", connected),
	}

	if err != nil {
		fields = append(fields, zap.Error(err))
		l.Error("connection failed", fields...)
	} else if connected {
		l.Info("connected", fields...)
	} else {
		l.Info("disconnected", fields...)
	}
}
