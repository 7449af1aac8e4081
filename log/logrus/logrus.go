// Package logrus adapts a *logrus.Entry to adaptcache.Logger.
package logrus

import (
	"github.com/sirupsen/logrus"
	"github.com/unkn0wn-root/adaptcache"
)

var _ adaptcache.Logger = Logger{}

type Logger struct{ E *logrus.Entry }

// New wraps l with a "component" field set to adaptcache.
func New(l *logrus.Logger) Logger {
	return Logger{E: l.WithField("component", "adaptcache")}
}

func (l Logger) Debug(msg string, f adaptcache.Fields) { l.E.WithFields(logrus.Fields(f)).Debug(msg) }
func (l Logger) Info(msg string, f adaptcache.Fields)  { l.E.WithFields(logrus.Fields(f)).Info(msg) }
func (l Logger) Warn(msg string, f adaptcache.Fields)  { l.E.WithFields(logrus.Fields(f)).Warn(msg) }
func (l Logger) Error(msg string, f adaptcache.Fields) { l.E.WithFields(logrus.Fields(f)).Error(msg) }
