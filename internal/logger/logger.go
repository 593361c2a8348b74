// Package logger configures the global zerolog logger from command line options.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger holds logging options shared by every command.
type Logger struct {
	Level   string `long:"log-level"  env:"LOG_LEVEL"  description:"Log level" choice:"trace" choice:"debug" choice:"info" choice:"warn" choice:"error" choice:"fatal" choice:"panic" default:"info"`
	Format  string `long:"log-format" env:"LOG_FORMAT" description:"Log output format" choice:"console" choice:"json" default:"console"`
	File    string `long:"log-file"   env:"LOG_FILE"   description:"Also write JSON logs to this file (rotated)"`
	MaxSize int    `long:"log-max-size" env:"LOG_MAX_SIZE" description:"Rotate log file after this many megabytes" default:"64"`
	NoColor bool   `long:"log-no-color" env:"LOG_NO_COLOR" description:"Disable colored console output"`
}

// Setup applies the options to the global logger.
func (l *Logger) Setup() {
	level, err := zerolog.ParseLevel(l.Level)
	if err != nil || l.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	log.Logger = zerolog.New(l.writer()).With().Timestamp().Logger()

	if err != nil && l.Level != "" {
		log.Warn().Str("level", l.Level).Msg("Unknown log level, using info")
	}
}

func (l *Logger) writer() io.Writer {
	var out io.Writer = os.Stderr
	if l.Format != "json" {
		out = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			NoColor:    l.NoColor,
			TimeFormat: time.DateTime,
		}
	}

	if l.File == "" {
		return out
	}

	maxSize := l.MaxSize
	if maxSize <= 0 {
		maxSize = 64
	}

	// file output stays JSON regardless of the console format
	return zerolog.MultiLevelWriter(out, &lumberjack.Logger{
		Filename:   l.File,
		MaxSize:    maxSize, // MB
		MaxBackups: 3,
		MaxAge:     14,
		Compress:   true,
	})
}
