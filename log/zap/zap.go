// Package zap adapts a *zap.Logger to adaptcache.Logger.
package zap

import (
	"github.com/unkn0wn-root/adaptcache"
	"go.uber.org/zap"
)

var _ adaptcache.Logger = Logger{}

type Logger struct{ L *zap.Logger }

// New wraps l, falling back to zap.NewNop for nil.
func New(l *zap.Logger) Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return Logger{L: l}
}

func (z Logger) Debug(msg string, f adaptcache.Fields) { z.L.Debug(msg, fields(f)...) }
func (z Logger) Info(msg string, f adaptcache.Fields)  { z.L.Info(msg, fields(f)...) }
func (z Logger) Warn(msg string, f adaptcache.Fields)  { z.L.Warn(msg, fields(f)...) }
func (z Logger) Error(msg string, f adaptcache.Fields) { z.L.Error(msg, fields(f)...) }

func fields(f adaptcache.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(f))
	for k, v := range f {
		if err, ok := v.(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, v))
	}
	return out
}
