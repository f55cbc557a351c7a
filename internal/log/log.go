// Package log provides the process wide structured logger of oomtoolbox.
package log

import (
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var Logger *toolboxLogger
var nopLogger = zap.NewNop().Sugar()

func init() {
	Logger = CreateLoggerWithConfig(DefaultLoggerConfig())
}

// DefaultLoggerConfig is the zap production config (JSON on stderr) with
// readable timestamps.
func DefaultLoggerConfig() *zap.Config {
	c := zap.NewProductionConfig()
	c.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	c.DisableStacktrace = true
	return &c
}

// CreateLoggerWithLumberjack writes JSON logs to a rotated file.
func CreateLoggerWithLumberjack(logFile string, maxSize int, logLevel zapcore.Level) *toolboxLogger {
	w := zapcore.AddSync(&lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    maxSize, // megabytes
		MaxBackups: 5,
		MaxAge:     3, // days
		Compress:   true,
	})

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		w,
		logLevel,
	)
	return newToolboxLogger(zap.New(core).Sugar())
}

// ParseLogLevel accepts zap level names; empty means info.
func ParseLogLevel(logLevel string) (zap.AtomicLevel, error) {
	zapLvl := zap.NewAtomicLevel()
	if logLevel != "" && logLevel != "info" {
		var err error
		zapLvl, err = zap.ParseAtomicLevel(logLevel)
		if err != nil {
			return zap.AtomicLevel{}, err
		}
	}
	return zapLvl, nil
}

// CreateLogger logs to logFile when set, to stderr otherwise.
func CreateLogger(logLevel zap.AtomicLevel, logFile string) *toolboxLogger {
	if logFile != "" {
		return CreateLoggerWithLumberjack(logFile, 16, logLevel.Level())
	}

	lCfg := DefaultLoggerConfig()
	lCfg.Level = logLevel
	return CreateLoggerWithConfig(lCfg)
}

func CreateLoggerWithConfig(config *zap.Config) *toolboxLogger {
	if config == nil {
		config = DefaultLoggerConfig()
	}

	l, err := config.Build()
	if err != nil {
		panic(err)
	}
	return newToolboxLogger(l.Sugar())
}

type toolboxLogger struct {
	logger atomic.Pointer[zap.SugaredLogger]
}

func newToolboxLogger(logger *zap.SugaredLogger) *toolboxLogger {
	l := &toolboxLogger{}
	l.set(logger)
	return l
}

func (l *toolboxLogger) get() *zap.SugaredLogger {
	if l == nil {
		return nopLogger
	}
	logger := l.logger.Load()
	if logger == nil {
		return nopLogger
	}
	return logger
}

func (l *toolboxLogger) set(logger *zap.SugaredLogger) {
	if logger == nil {
		logger = nopLogger
	}
	l.logger.Store(logger)
}

// SetLogger swaps the package logger; nil silences it.
func SetLogger(logger *toolboxLogger) {
	if logger == nil {
		Logger.set(nil)
		return
	}
	Logger.set(logger.get())
}

// Sync flushes buffered entries. Errors from syncing stderr are ignored.
func (l *toolboxLogger) Sync() {
	_ = l.get().Sync()
}

func (l *toolboxLogger) Debugw(msg string, keysAndValues ...interface{}) {
	l.get().Debugw(msg, keysAndValues...)
}

func (l *toolboxLogger) Infow(msg string, keysAndValues ...interface{}) {
	l.get().Infow(msg, keysAndValues...)
}

func (l *toolboxLogger) Warnw(msg string, keysAndValues ...interface{}) {
	l.get().Warnw(msg, keysAndValues...)
}

func (l *toolboxLogger) Errorw(msg string, keysAndValues ...interface{}) {
	l.get().Errorw(msg, keysAndValues...)
}

func (l *toolboxLogger) With(args ...interface{}) *zap.SugaredLogger {
	return l.get().With(args...)
}

func (l *toolboxLogger) Desugar() *zap.Logger {
	return l.get().Desugar()
}
