// Package logging provides the shared logging infrastructure for Skygent.
//
// It routes error-level records to stderr and everything else to stdout,
// so container log collectors can treat the two streams differently,
// and exposes a single configured *logrus.Logger for every component to
// share rather than each package creating its own.
package logging

import (
	"bytes"
	"os"

	"github.com/sirupsen/logrus"
)

// streamSplitter routes formatted log lines to stdout or stderr based on
// level, without re-parsing structured fields.
type streamSplitter struct{}

func (streamSplitter) Write(p []byte) (int, error) {
	if bytes.Contains(p, []byte("level=error")) || bytes.Contains(p, []byte("level=fatal")) ||
		bytes.Contains(p, []byte(`"level":"error"`)) || bytes.Contains(p, []byte(`"level":"fatal"`)) {
		return os.Stderr.Write(p)
	}
	return os.Stdout.Write(p)
}

// Options configures a Logger.
type Options struct {
	// Level is one of logrus's level names (debug, info, warn, error). Empty defaults to info.
	Level string
	// Format selects "json" or "text" (default) output.
	Format string
}

// New builds a logrus.Logger configured per opts, routed through streamSplitter.
func New(opts Options) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(streamSplitter{})

	if opts.Format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	return l
}

// Default returns a Logger with info level and text formatting, for call
// sites (mostly tests) that don't need environment-driven configuration.
func Default() *logrus.Logger {
	return New(Options{})
}
