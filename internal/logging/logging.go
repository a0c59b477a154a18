// Package logging builds the *log.Logger instances used by the daemon and
// relocator, optionally teeing to a size-rotated log file.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures logger output.
type Options struct {
	// Quiet suppresses console output. File output is unaffected.
	Quiet bool

	// File is the path of a rotating log file. Empty disables file logging.
	File string

	// MaxSizeMB is the size at which the file is rotated.
	MaxSizeMB int
	// MaxBackups is the number of rotated files kept.
	MaxBackups int
	// MaxAgeDays is how long rotated files are kept.
	MaxAgeDays int
	// Compress gzips rotated files.
	Compress bool
}

// Sink is the shared writer behind every logger built from one Options value.
type Sink struct {
	w    io.Writer
	file *lumberjack.Logger
}

// NewSink opens the configured outputs. Console output goes to stderr.
func NewSink(opts Options) *Sink {
	return newSink(os.Stderr, opts)
}

func newSink(console io.Writer, opts Options) *Sink {
	var writers []io.Writer
	if !opts.Quiet {
		writers = append(writers, console)
	}

	var file *lumberjack.Logger
	if opts.File != "" {
		file = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		}
		writers = append(writers, file)
	}

	var w io.Writer
	switch len(writers) {
	case 0:
		w = io.Discard
	case 1:
		w = writers[0]
	default:
		w = io.MultiWriter(writers...)
	}

	return &Sink{w: w, file: file}
}

// Logger returns a logger with the given component prefix, e.g. "daemon"
// yields lines starting with "[daemon] ".
func (s *Sink) Logger(component string) *log.Logger {
	prefix := ""
	if component != "" {
		prefix = "[" + component + "] "
	}
	return log.New(s.w, prefix, log.LstdFlags)
}

// Close closes the log file, if any.
func (s *Sink) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}
