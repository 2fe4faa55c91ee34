// Package logging is a thin wrapper over logrus shared by every
// component so log level/format configuration happens in one place.
package logging

import "github.com/sirupsen/logrus"

var logger *logrus.Entry

// Fields re-exports logrus.Fields so callers don't import logrus directly.
type Fields = logrus.Fields

func init() {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger = logrus.NewEntry(l)
}

// SetLevel adjusts the shared logger's verbosity.
func SetLevel(lvl logrus.Level) {
	logger.Logger.SetLevel(lvl)
}

// Base returns the underlying *logrus.Logger, e.g. for handing to a
// component constructor that wants its own WithField scope.
func Base() *logrus.Logger {
	return logger.Logger
}

// WithField returns an entry scoped to one field, typically "component".
func WithField(key string, value interface{}) *logrus.Entry {
	return logger.WithField(key, value)
}

// WithError returns an entry carrying err under logrus's standard key.
func WithError(err error) *logrus.Entry {
	return logger.WithError(err)
}
