// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path"
	"runtime"
	"strings"

	formatter "github.com/antonfisher/nested-logrus-formatter"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls level and outputs.
type Config struct {
	Level   string `yaml:"level" validate:"omitempty,oneof=trace debug info warn warning error"`
	File    string `yaml:"file"`
	NoColor bool   `yaml:"no_color"`
	Caller  bool   `yaml:"caller"`
	// MaxSizeMB, MaxAgeDays and MaxBackups configure rotation of File.
	MaxSizeMB  int `yaml:"max_size_mb" validate:"gte=0"`
	MaxAgeDays int `yaml:"max_age_days" validate:"gte=0"`
	MaxBackups int `yaml:"max_backups" validate:"gte=0"`
}

// New returns a logger writing to stderr and, when cfg.File is set, to a
// rotating file.
func New(cfg Config) (*logrus.Logger, error) {
	logger := logrus.New()

	level := logrus.InfoLevel
	if cfg.Level != "" {
		parsed, err := logrus.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		level = parsed
	}
	logger.SetLevel(level)

	logger.SetFormatter(&formatter.Formatter{
		NoColors:        cfg.NoColor,
		TimestampFormat: "2006-01-02 15:04:05.000",
		HideKeys:        false,
		CallerFirst:     true,
		CustomCallerFormatter: func(f *runtime.Frame) string {
			s := strings.Split(f.Function, ".")
			return fmt.Sprintf(" [%s:%d][%s()]", path.Base(f.File), f.Line, s[len(s)-1])
		},
	})
	logger.SetReportCaller(cfg.Caller)

	writers := []io.Writer{os.Stderr}
	if cfg.File != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.File,
			LocalTime:  true,
			Compress:   true,
			MaxSize:    orDefault(cfg.MaxSizeMB, 100),
			MaxAge:     orDefault(cfg.MaxAgeDays, 7),
			MaxBackups: orDefault(cfg.MaxBackups, 3),
		})
	}
	logger.SetOutput(io.MultiWriter(writers...))

	return logger, nil
}

// Discard returns a logger that drops everything, for tests.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
