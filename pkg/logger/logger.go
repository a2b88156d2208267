package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

var (
	debugEnabled = os.Getenv("ASSETBUILD_DEBUG") == "true" || os.Getenv("DEBUG") == "true"
)

// Options configures a logger created by New.
type Options struct {
	Verbose bool      // Enable debug level regardless of the environment
	Output  io.Writer // Defaults to os.Stderr
	JSON    bool      // Emit JSON lines instead of text
}

// New creates a logrus logger for the CLI and the packages it drives.
func New(opts Options) *logrus.Logger {
	log := logrus.New()

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	log.SetOutput(out)

	if opts.JSON {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			DisableTimestamp: true,
		})
	}

	if opts.Verbose || debugEnabled {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}
	return log
}

// Discard returns a logger that drops everything. Used when a caller passes no logger.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	log.SetLevel(logrus.PanicLevel)
	return log
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l *logrus.Logger) *logrus.Logger {
	if l == nil {
		return Discard()
	}
	return l
}
