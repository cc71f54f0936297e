package logging

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls the rotating file sink.
type Options struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Level      zapcore.Level
}

// DefaultOptions keeps roughly a month of logs.
var DefaultOptions = Options{
	MaxSizeMB:  20,
	MaxBackups: 5,
	MaxAgeDays: 30,
	Level:      zapcore.InfoLevel,
}

// New creates a zap logger that writes JSON to a rotating file at logPath
// and console output to stderr. Session name and PID are included as
// initial fields.
func New(logPath, sessionName string) (*zap.Logger, error) {
	return NewWithOptions(logPath, sessionName, DefaultOptions)
}

// NewWithOptions is New with explicit rotation settings.
func NewWithOptions(logPath, sessionName string, opts Options) (*zap.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(logPath), 0700); err != nil {
		return nil, err
	}

	rotator := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   true,
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(rotator), opts.Level)
	stderrCore := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.AddSync(os.Stderr), opts.Level)

	logger := zap.New(zapcore.NewTee(fileCore, stderrCore),
		zap.Fields(
			zap.String("session", sessionName),
			zap.Int("pid", os.Getpid()),
		),
	)

	return logger, nil
}
