// Package logging configures the process-wide logrus logger: syslog by
// default, or stdout when requested, at a verbosity controlled by a
// single -v flag.
package logging

import (
	"log/syslog"
	"os"

	"github.com/sirupsen/logrus"
	lsyslog "github.com/sirupsen/logrus/hooks/syslog"
)

// Options controls how New builds the root logger.
type Options struct {
	// Verbose selects Info level instead of Error level.
	Verbose bool
	// Stdout logs to stdout instead of syslog.
	Stdout bool
}

// New builds the root logger per Options. Syslog is best-effort: if the
// local syslog daemon is unreachable, New falls back to stdout rather
// than failing startup over a logging transport.
func New(opts Options) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if opts.Verbose {
		log.SetLevel(logrus.InfoLevel)
	} else {
		log.SetLevel(logrus.ErrorLevel)
	}

	if opts.Stdout {
		log.SetOutput(os.Stdout)
		return log
	}

	hook, err := lsyslog.NewSyslogHook("", "", syslog.LOG_INFO|syslog.LOG_DAEMON, "mqspeak")
	if err != nil {
		log.SetOutput(os.Stdout)
		log.WithError(err).Warn("syslog unavailable, logging to stdout")
		return log
	}
	log.AddHook(hook)
	log.SetOutput(nullWriter{})
	return log
}

// nullWriter discards the default stderr output logrus otherwise writes
// in addition to any hooks.
type nullWriter struct{}

func (nullWriter) Write(p []byte) (int, error) { return len(p), nil }
