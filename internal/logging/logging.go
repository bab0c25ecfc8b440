// Package logging configures the process-wide logrus logger.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/socialpulse/followwatch/internal/config"
)

// Setup applies level, JSON formatting and optional rotating file output.
// The returned closer flushes the log file; it is a no-op without LOG_FILE.
func Setup(cfg *config.Config) io.Closer {
	logrus.SetLevel(logrus.InfoLevel)
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.SetFormatter(&logrus.JSONFormatter{})

	if cfg.LogFile == "" {
		logrus.SetOutput(os.Stdout)
		return nopCloser{}
	}

	file := NewRotatingFile(cfg.LogFile)
	logrus.SetOutput(io.MultiWriter(os.Stdout, file))
	return file
}

// NewRotatingFile returns a size-rotated log file writer
func NewRotatingFile(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    50, // megabytes
		MaxBackups: 5,
		MaxAge:     28, // days
		Compress:   true,
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
