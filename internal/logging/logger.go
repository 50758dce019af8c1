package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options selects where and how much a service logs.
type Options struct {
	Level string
	// File is a rotating log path; empty logs to stderr only, "-" disables the file.
	File    string
	Service string
	// Console renders human-readable lines on stderr instead of JSON.
	Console bool
}

// New builds the process logger. The returned closer releases the log file.
func New(opts Options) (zerolog.Logger, io.Closer, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(opts.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var stderr io.Writer = os.Stderr
	if opts.Console {
		stderr = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	writers := []io.Writer{stderr}
	var closer io.Closer = nopWriteCloser{w: io.Discard}

	if path := strings.TrimSpace(opts.File); path != "" {
		fw, err := NewRotatingWriter(path, DefaultMaxBytes)
		if err != nil {
			return zerolog.Nop(), nil, err
		}
		writers = append(writers, fw)
		closer = fw
	}

	ctx := zerolog.New(zerolog.MultiLevelWriter(writers...)).Level(level).With().Timestamp()
	if opts.Service != "" {
		ctx = ctx.Str("service", opts.Service)
	}
	return ctx.Logger(), closer, nil
}

// NewWriterLogger logs JSON lines at level to w; used by tests and tools.
func NewWriterLogger(w io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
