package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const fileName = "serverwatch.log"

// NewLogger writes every record twice: a " - " separated console line for
// operators (timestamp - LEVEL - summary - fields) on stdout, and a JSON line
// to a rotating file under logDir.
func NewLogger(logDir, level string) (*zap.Logger, error) {
	return newLogger(logDir, level, os.Stdout)
}

func newLogger(logDir, level string, console io.Writer) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, err
	}
	file := zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(logDir, fileName),
		MaxSize:    10, // MB
		MaxBackups: 5,
		MaxAge:     14, // days
		Compress:   true,
	})

	jsonCfg := zap.NewProductionEncoderConfig()
	jsonCfg.TimeKey = "ts"
	jsonCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewConsoleEncoder(ConsoleEncoderConfig()), zapcore.AddSync(console), lvl),
		zapcore.NewCore(zapcore.NewJSONEncoder(jsonCfg), file, lvl),
	)
	return zap.New(core), nil
}

// ConsoleEncoderConfig is the stable operator format:
// 2025-08-18T12:00:00.000Z - WARN - OFFLINE 192.0.2.10 - {"checks":{...}}
func ConsoleEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:          "ts",
		LevelKey:         "level",
		MessageKey:       "msg",
		NameKey:          zapcore.OmitKey,
		CallerKey:        zapcore.OmitKey,
		StacktraceKey:    zapcore.OmitKey,
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeLevel:      zapcore.CapitalLevelEncoder,
		EncodeTime:       zapcore.ISO8601TimeEncoder,
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: " - ",
	}
}
