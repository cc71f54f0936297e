package logging

import (
	waLog "go.mau.fi/whatsmeow/util/log"
	"go.uber.org/zap"
)

type waLogger struct {
	s *zap.SugaredLogger
}

// WA adapts a zap logger to the whatsmeow logging interface.
func WA(logger *zap.Logger, module string) waLog.Logger {
	return &waLogger{s: logger.Named(module).Sugar()}
}

func (l *waLogger) Debugf(msg string, args ...any) { l.s.Debugf(msg, args...) }
func (l *waLogger) Infof(msg string, args ...any)  { l.s.Infof(msg, args...) }
func (l *waLogger) Warnf(msg string, args ...any)  { l.s.Warnf(msg, args...) }
func (l *waLogger) Errorf(msg string, args ...any) { l.s.Errorf(msg, args...) }

func (l *waLogger) Sub(module string) waLog.Logger {
	return &waLogger{s: l.s.Named(module)}
}
