// Package logging builds the prefixed loggers handed to engine
// components, optionally teed into a rolling log file.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// New returns a stderr logger with a component prefix such as "[sync] ".
func New(prefix string) *log.Logger {
	return log.New(os.Stderr, prefix, log.LstdFlags)
}

// Factory hands out component loggers that share one sink: stderr when
// console is on, a rolling file when a path is configured, both when
// both, and a discard writer when neither.
type Factory struct {
	out  io.Writer
	file *lumberjack.Logger
}

// NewFactory builds a factory. Rotation keeps three 10 MB generations
// for up to 28 days, compressed.
func NewFactory(path string, console bool) *Factory {
	f := &Factory{}
	var sinks []io.Writer
	if console {
		sinks = append(sinks, os.Stderr)
	}
	if path != "" {
		f.file = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		}
		sinks = append(sinks, f.file)
	}
	switch len(sinks) {
	case 0:
		f.out = io.Discard
	case 1:
		f.out = sinks[0]
	default:
		f.out = io.MultiWriter(sinks...)
	}
	return f
}

// Logger returns a logger with the given prefix on the shared sink.
func (f *Factory) Logger(prefix string) *log.Logger {
	return log.New(f.out, prefix, log.LstdFlags)
}

// Close flushes and closes the rolling file, if any.
func (f *Factory) Close() error {
	if f.file == nil {
		return nil
	}
	return f.file.Close()
}
