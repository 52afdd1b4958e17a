package logging

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the logger
type Options struct {
	// Verbose enables debug output on stderr; otherwise only errors are shown
	Verbose bool
	// File, when set, receives every message at debug level with rotation
	File string
}

// Logger wraps a zap logger and its optional rotating file
type Logger struct {
	*zap.Logger
	file *lumberjack.Logger
}

// New builds the process logger
func New(opts Options) (*Logger, error) {
	level := zapcore.ErrorLevel
	consoleConfig := zap.NewProductionEncoderConfig()
	consoleEncoder := zapcore.NewJSONEncoder(consoleConfig)
	if opts.Verbose {
		level = zapcore.DebugLevel
		consoleConfig = zap.NewDevelopmentEncoderConfig()
		consoleEncoder = zapcore.NewConsoleEncoder(consoleConfig)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stderr), level),
	}

	l := &Logger{}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return nil, err
		}
		l.file = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    32, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}

		fileConfig := zap.NewProductionEncoderConfig()
		fileConfig.TimeKey = "timestamp"
		fileConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(fileConfig),
			zapcore.AddSync(l.file),
			zapcore.DebugLevel,
		))
	}

	l.Logger = zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return l, nil
}

// Close flushes buffered entries and closes the log file
func (l *Logger) Close() error {
	// Sync on stderr fails on some terminals, ignore it
	_ = l.Logger.Sync()
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
