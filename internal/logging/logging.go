// Package logging builds the zap logger used across etlrun.
package logging

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/aristath/etlrun/internal/config"
)

// New creates a logger writing to stdout, a rotated file, or both.
// A nil stdout means os.Stdout.
func New(cfg config.LogConfig, stdout io.Writer) (*zap.Logger, error) {
	if stdout == nil {
		stdout = os.Stdout
	}

	level := zapcore.InfoLevel
	if cfg.Level != "" {
		parsed, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		level = parsed
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	switch cfg.Format {
	case "json":
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	case "console", "":
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	default:
		return nil, fmt.Errorf("invalid log format %q (want console or json)", cfg.Format)
	}

	var cores []zapcore.Core
	switch cfg.Output {
	case "stdout", "":
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(stdout), level))
	case "file", "both":
		if cfg.FilePath == "" {
			return nil, fmt.Errorf("log output %q requires file_path", cfg.Output)
		}
		writer := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(writer), level))
		if cfg.Output == "both" {
			cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(stdout), level))
		}
	default:
		return nil, fmt.Errorf("invalid log output %q (want stdout, file or both)", cfg.Output)
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}
