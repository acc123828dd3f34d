package logger

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)

	rootOnce sync.Once
	root     *zap.Logger
	rootErr  error
)

// Logger is a named sugared logger.
type Logger struct {
	*zap.SugaredLogger
}

// SetLevel changes the level of every logger created by this package.
func SetLevel(lvl string) error {
	if lvl == "" {
		return nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(lvl)); err != nil {
		return fmt.Errorf("parse log level %q: %w", lvl, err)
	}
	level.SetLevel(l)
	return nil
}

func rootLogger() (*zap.Logger, error) {
	rootOnce.Do(func() {
		conf := zap.NewProductionConfig()
		conf.Level = level
		conf.EncoderConfig.TimeKey = "time"
		conf.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		conf.DisableStacktrace = true
		root, rootErr = conf.Build(zap.AddCallerSkip(0))
	})
	return root, rootErr
}

// Named returns a logger with the given name.
func Named(name string) (*Logger, error) {
	l, err := rootLogger()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return &Logger{SugaredLogger: l.Named(name).Sugar()}, nil
}

// MustNamed is like Named but panics on error.
func MustNamed(name string) *Logger {
	l, err := Named(name)
	if err != nil {
		panic(err)
	}
	return l
}

// NewNop returns a logger that discards everything. Useful in tests.
func NewNop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

// Unwrap returns the underlying sugared logger.
func (l *Logger) Unwrap() *zap.SugaredLogger {
	return l.SugaredLogger
}

// Reflect builds a field that is logged with reflection-based encoding.
func (l *Logger) Reflect(key string, value any) zap.Field {
	return zap.Reflect(key, value)
}
