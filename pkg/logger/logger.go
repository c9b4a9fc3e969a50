package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Fatal(msg string, keysAndValues ...interface{})
	With(keysAndValues ...interface{}) Logger
}

type ZapLogger struct {
	logger *zap.SugaredLogger
}

func New() Logger {
	return NewWithLevel("info")
}

// NewWithLevel builds a production logger; unknown levels fall back to info.
func NewWithLevel(level string) Logger {
	zapConfig := zap.NewProductionConfig()

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	zapConfig.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := zapConfig.Build()
	if err != nil {
		panic(err)
	}

	return NewFromZap(logger)
}

// NewFromZap wraps an existing zap logger, e.g. an observer core in tests.
func NewFromZap(l *zap.Logger) Logger {
	return &ZapLogger{
		logger: l.WithOptions(zap.AddCallerSkip(1)).Sugar(), // Skip one level to show actual caller
	}
}

func NewNop() Logger {
	return &ZapLogger{logger: zap.NewNop().Sugar()}
}

func (l *ZapLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Infow(msg, keysAndValues...)
}

func (l *ZapLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, keysAndValues...)
}

func (l *ZapLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l *ZapLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warnw(msg, keysAndValues...)
}

func (l *ZapLogger) Fatal(msg string, keysAndValues ...interface{}) {
	l.logger.Fatalw(msg, keysAndValues...)
}

func (l *ZapLogger) With(keysAndValues ...interface{}) Logger {
	return &ZapLogger{logger: l.logger.With(keysAndValues...)}
}

func (l *ZapLogger) Sync() error {
	return l.logger.Sync()
}
