// Package log constructs the logrus.Entry threaded through every component,
// generalized from the teacher's pkg/log which tied logging to a TUI config
// directory. nsi has no persistent config directory, so the development
// logger writes to stderr instead of a development.log file.
package log

import (
	"io"
	"os"

	"github.com/jesseduffield/nsi/pkg/config"
	"github.com/sirupsen/logrus"
)

// NewLogger returns a new logger carrying build metadata as fields, the way
// the teacher's NewLogger attaches debug/version/commit/buildDate.
func NewLogger(cfg *config.AppConfig) *logrus.Entry {
	var l *logrus.Logger
	if cfg.Debug {
		l = newDevelopmentLogger()
	} else {
		l = newProductionLogger()
	}

	l.Formatter = &logrus.JSONFormatter{}

	return l.WithFields(logrus.Fields{
		"version":   cfg.Version,
		"commit":    cfg.Commit,
		"buildDate": cfg.BuildDate,
	})
}

func getLogLevel() logrus.Level {
	strLevel := os.Getenv("LOG_LEVEL")
	level, err := logrus.ParseLevel(strLevel)
	if err != nil {
		return logrus.DebugLevel
	}
	return level
}

func newDevelopmentLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(getLogLevel())
	l.SetOutput(os.Stderr)
	return l
}

func newProductionLogger() *logrus.Logger {
	l := logrus.New()
	l.Out = io.Discard
	l.SetLevel(logrus.ErrorLevel)
	return l
}
