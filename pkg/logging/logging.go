package logging

import (
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// Field names shared by every stage event.
const (
	FieldPair  = "pair"
	FieldStage = "stage"
)

// New builds the process logger. Unknown levels fall back to info.
func New(level, format string) *logrus.Logger {
	logger := logrus.New()
	if strings.EqualFold(format, "text") {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		logger.WithError(err).Warn("invalid log level, using info")
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	return logger
}

// Discard returns a logger that drops everything, handy for tests and tools.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// Stage returns an entry tagged with the pair and pipeline stage.
func Stage(logger logrus.FieldLogger, pair, stage string) *logrus.Entry {
	if logger == nil {
		logger = Discard()
	}
	return logger.WithFields(logrus.Fields{FieldPair: pair, FieldStage: stage})
}
