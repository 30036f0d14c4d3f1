package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	Level string // zerolog level name, defaults to info
	File  string // optional JSON log file, rotated by size
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Setup points the global zerolog logger at a console writer on stderr and,
// when a file is configured, a rotating JSON file as well. The returned closer
// flushes the file writer.
func Setup(opts Options) io.Closer {
	var closer io.Closer = nopCloser{}

	console := zerolog.ConsoleWriter{Out: os.Stderr}
	if opts.File == "" {
		log.Logger = log.Output(console)
	} else {
		file := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    100, // MB
			MaxBackups: 5,
			MaxAge:     28,
			Compress:   true,
		}
		log.Logger = zerolog.New(zerolog.MultiLevelWriter(console, file)).With().Timestamp().Logger()
		closer = file
	}

	level, err := ParseLevel(opts.Level)
	zerolog.SetGlobalLevel(level)
	if err != nil {
		log.Warn().Str("level", opts.Level).Msg("unknown log level, using info")
	}
	return closer
}

// ParseLevel accepts zerolog level names case-insensitively. An empty name
// means info.
func ParseLevel(name string) (zerolog.Level, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return zerolog.InfoLevel, nil
	}

	level, err := zerolog.ParseLevel(name)
	if err != nil {
		return zerolog.InfoLevel, err
	}
	return level, nil
}
