package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"granite-vision-go/src/configs"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel log level name as written in config
type LogLevel string

const (
	DebugLevel LogLevel = "debug"
	InfoLevel  LogLevel = "info"
	WarnLevel  LogLevel = "warn"
	ErrorLevel LogLevel = "error"
)

// Logger writes JSON lines to the log file and a readable copy to the console.
type Logger struct {
	sugar   *zap.SugaredLogger
	logFile *os.File
}

var encoderConfig = zapcore.EncoderConfig{
	TimeKey:        "time",
	LevelKey:       "level",
	NameKey:        "tag",
	MessageKey:     "message",
	LineEnding:     zapcore.DefaultLineEnding,
	EncodeLevel:    zapcore.LowercaseLevelEncoder,
	EncodeTime:     zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000"),
	EncodeDuration: zapcore.MillisDurationEncoder,
	EncodeName:     zapcore.FullNameEncoder,
}

// NewLogger creates the logger described by config.Log
func NewLogger(config *configs.Config) (*Logger, error) {
	level := parseLevel(config.Log.LogLevel)

	consoleEncoder := zapcore.NewConsoleEncoder(encoderConfig)
	if strings.EqualFold(config.Log.LogFormat, "json") {
		consoleEncoder = zapcore.NewJSONEncoder(encoderConfig)
	}
	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.AddSync(os.Stdout), level),
	}

	var file *os.File
	if config.Log.LogDir != "" {
		if err := os.MkdirAll(config.Log.LogDir, 0755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		logPath := filepath.Join(config.Log.LogDir, config.Log.LogFile)
		f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		file = f
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(file), level))
	}

	logger := newCoreLogger(zapcore.NewTee(cores...))
	logger.logFile = file
	return logger, nil
}

// NewNopLogger discards everything.
func NewNopLogger() *Logger {
	return &Logger{sugar: zap.NewNop().Sugar()}
}

func newCoreLogger(core zapcore.Core) *Logger {
	return &Logger{sugar: zap.New(core).Sugar()}
}

func parseLevel(level string) zapcore.Level {
	switch LogLevel(strings.ToLower(level)) {
	case DebugLevel:
		return zapcore.DebugLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Close flushes and closes the log file
func (l *Logger) Close() error {
	_ = l.sugar.Sync()
	if l.logFile != nil {
		return l.logFile.Close()
	}
	return nil
}

// log treats msg as a printf format when args are given and writes it
// verbatim otherwise.
func log(s *zap.SugaredLogger, level zapcore.Level, msg string, args ...interface{}) {
	if len(args) == 0 {
		s.Log(level, msg)
		return
	}
	s.Log(level, fmt.Sprintf(msg, args...))
}

func (l *Logger) Debug(msg string, args ...interface{}) {
	log(l.sugar, zapcore.DebugLevel, msg, args...)
}

func (l *Logger) Info(msg string, args ...interface{}) {
	log(l.sugar, zapcore.InfoLevel, msg, args...)
}

func (l *Logger) Warn(msg string, args ...interface{}) {
	log(l.sugar, zapcore.WarnLevel, msg, args...)
}

func (l *Logger) Error(msg string, args ...interface{}) {
	log(l.sugar, zapcore.ErrorLevel, msg, args...)
}

// TaggedLogger logger whose entries carry a component tag
type TaggedLogger struct {
	sugar *zap.SugaredLogger
}

// WithTag creates a tagged logger sharing the same outputs
func (l *Logger) WithTag(tag string) *TaggedLogger {
	return &TaggedLogger{sugar: l.sugar.Named(tag)}
}

func (l *TaggedLogger) Debug(msg string, args ...interface{}) {
	log(l.sugar, zapcore.DebugLevel, msg, args...)
}

func (l *TaggedLogger) Info(msg string, args ...interface{}) {
	log(l.sugar, zapcore.InfoLevel, msg, args...)
}

func (l *TaggedLogger) Warn(msg string, args ...interface{}) {
	log(l.sugar, zapcore.WarnLevel, msg, args...)
}

func (l *TaggedLogger) Error(msg string, args ...interface{}) {
	log(l.sugar, zapcore.ErrorLevel, msg, args...)
}
