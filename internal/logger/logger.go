// Package logger scopes a logrus entry to a component name, the same
// New(name) surface cenkalti/rain/internal/logger exposes to its trackers
// and peer connections.
package logger

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	baseOnce sync.Once
	base     *logrus.Logger
)

func root() *logrus.Logger {
	baseOnce.Do(func() {
		base = logrus.New()
		base.SetOutput(os.Stderr)
		base.SetLevel(logrus.InfoLevel)
	})
	return base
}

// SetLevel adjusts the verbosity of every Logger returned by New.
// Accepted values mirror logrus: "trace", "debug", "info", "warn",
// "error".
func SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	root().SetLevel(lvl)
	return nil
}

// Logger is a component-scoped logging handle.
type Logger struct {
	entry *logrus.Entry
}

// New returns a Logger tagged with name, e.g. "tracker udp://...:80" or
// "peer 1.2.3.4:6881".
func New(name string) *Logger {
	return &Logger{entry: root().WithField("component", name)}
}

func (l *Logger) Debugln(args ...any)            { l.entry.Debugln(args...) }
func (l *Logger) Debugf(format string, a ...any)  { l.entry.Debugf(format, a...) }
func (l *Logger) Infoln(args ...any)              { l.entry.Infoln(args...) }
func (l *Logger) Infof(format string, a ...any)   { l.entry.Infof(format, a...) }
func (l *Logger) Warningln(args ...any)           { l.entry.Warnln(args...) }
func (l *Logger) Warningf(format string, a ...any) { l.entry.Warnf(format, a...) }
func (l *Logger) Errorln(args ...any)             { l.entry.Errorln(args...) }
func (l *Logger) Error(err error)                 { l.entry.Errorln(err) }
