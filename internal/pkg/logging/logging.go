// Package logging builds the process-wide zap logger: console output plus a
// size-rotated file under the configured log directory.
package logging

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	defaultRotateSizeMB = 50
	defaultRotateKeep   = 7
	logFileName         = "find-image.log"
)

// Options controls where and how much the logger writes.
type Options struct {
	Dir          string
	Development  bool
	RotateSizeMB *int
	RotateKeep   *int
}

// New builds the logger. A missing or uncreatable log directory degrades to
// console-only output rather than failing startup.
func New(opts Options) *zap.Logger {
	level := zap.InfoLevel
	if opts.Development {
		level = zap.DebugLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	consoleEnc := zapcore.NewConsoleEncoder(encCfg)
	if !opts.Development {
		consoleEnc = zapcore.NewJSONEncoder(encCfg)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEnc, zapcore.Lock(os.Stdout), level),
	}

	if dir := opts.Dir; dir != "" {
		if err := os.MkdirAll(dir, 0o755); err == nil {
			rotated := &lumberjack.Logger{
				Filename:   filepath.Join(dir, logFileName),
				MaxSize:    intOr(opts.RotateSizeMB, defaultRotateSizeMB),
				MaxBackups: intOr(opts.RotateKeep, defaultRotateKeep),
				Compress:   true,
			}
			cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(rotated), level))
		}
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller())
}

func intOr(v *int, fallback int) int {
	if v != nil && *v > 0 {
		return *v
	}
	return fallback
}
