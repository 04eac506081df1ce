// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package commons

import (
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the application-wide logging contract. Every component receives a
// Logger instead of constructing its own so that tests can inject a quiet one.
type Logger interface {
	Debug(args ...interface{})
	Debugf(template string, args ...interface{})
	Info(args ...interface{})
	Infof(template string, args ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warn(args ...interface{})
	Warnf(template string, args ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Error(args ...interface{})
	Errorf(template string, args ...interface{})
	Fatalf(template string, args ...interface{})

	// Benchmark records the elapsed duration of a named stage at debug level.
	Benchmark(stage string, elapsed time.Duration)

	Sync() error
}

type applicationLogger struct {
	*zap.SugaredLogger
}

type loggerOptions struct {
	name  string
	path  string
	level string
}

// Option configures NewApplicationLogger.
type Option func(*loggerOptions)

// Name sets the service name attached to every log line and used as the log
// file basename.
func Name(name string) Option {
	return func(o *loggerOptions) { o.name = name }
}

// Path sets the directory for the rotating log file. Empty disables file output.
func Path(path string) Option {
	return func(o *loggerOptions) { o.path = path }
}

// Level sets the minimum log level: debug, info, warn or error.
func Level(level string) Option {
	return func(o *loggerOptions) { o.level = level }
}

// NewApplicationLogger builds the standard application logger: human-readable
// console output plus an optional size-rotated JSON file.
func NewApplicationLogger(opts ...Option) (Logger, error) {
	options := &loggerOptions{
		name:  "rapida",
		level: "debug",
	}
	for _, opt := range opts {
		opt(options)
	}

	level := zapcore.DebugLevel
	if err := level.Set(options.level); err != nil {
		return nil, err
	}

	consoleConfig := zap.NewDevelopmentEncoderConfig()
	consoleConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cores := []zapcore.Core{
		zapcore.NewCore(
			zapcore.NewConsoleEncoder(consoleConfig),
			zapcore.Lock(os.Stdout),
			level,
		),
	}

	if options.path != "" {
		fileWriter := &lumberjack.Logger{
			Filename:   filepath.Join(options.path, options.name+".log"),
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(fileWriter),
			level,
		))
	}

	base := zap.New(
		zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddCallerSkip(1),
	).Named(options.name)

	return &applicationLogger{SugaredLogger: base.Sugar()}, nil
}

func (l *applicationLogger) Benchmark(stage string, elapsed time.Duration) {
	l.Debugw("benchmark", "stage", stage, "elapsed", elapsed.String())
}
