package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup builds the root logger: human-readable console output plus a
// size-rotated log file. Component loggers are derived from the returned
// logger with .With().Str("component", ...).
func Setup(logFile, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
	rotated := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    20, // megabytes
		MaxBackups: 3,
		MaxAge:     14, // days
	}

	return zerolog.New(zerolog.MultiLevelWriter(console, rotated)).
		Level(lvl).
		With().Timestamp().Logger()
}
