package logging

import (
	"context"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type LoggerKey struct{}

func NewContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey{}, logger)
}

func FromContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(LoggerKey{}).(*zap.Logger); ok {
		return logger
	}
	return New(zap.DebugLevel, "", false)
}

// Rotation limits the size of the log file. Zero values keep lumberjack's
// defaults.
type Rotation struct {
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
}

var defaultRotation = Rotation{MaxSize: 500, MaxAge: 28}

type options struct {
	rotation Rotation
}

type Option func(*options)

func WithRotation(r Rotation) Option {
	return func(o *options) {
		o.rotation = r
	}
}

// New logs to stdout and, when logFileName is set, to a rotated file at
// debug level.
func New(level zapcore.LevelEnabler, logFileName string, json bool, opts ...Option) *zap.Logger {
	o := options{rotation: defaultRotation}
	for _, opt := range opts {
		opt(&o)
	}

	var encoder zapcore.Encoder
	if json {
		encoder = zapcore.NewJSONEncoder(zap.NewDevelopmentEncoderConfig())
	} else {
		encoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	}

	consoleSyncer := zapcore.Lock(os.Stdout)
	var cores []zapcore.Core
	cores = append(cores, zapcore.NewCore(encoder, consoleSyncer, level))

	if logFileName != "" {
		fileLogger := &lumberjack.Logger{
			Filename:   logFileName,
			MaxSize:    o.rotation.MaxSize,
			MaxBackups: o.rotation.MaxBackups,
			MaxAge:     o.rotation.MaxAge,
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(fileLogger), zap.DebugLevel))
	}

	return zap.New(zapcore.NewTee(cores...))
}
