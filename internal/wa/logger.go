package wa

import (
	waLog "go.mau.fi/whatsmeow/util/log"
	"go.uber.org/zap"
)

// zapLogger routes whatsmeow's internal logging into zap.
type zapLogger struct {
	s *zap.SugaredLogger
}

// NewLogger wraps logger as a whatsmeow logger.
func NewLogger(logger *zap.Logger) waLog.Logger {
	return zapLogger{s: logger.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (l zapLogger) Warnf(msg string, args ...interface{})  { l.s.Warnf(msg, args...) }
func (l zapLogger) Errorf(msg string, args ...interface{}) { l.s.Errorf(msg, args...) }
func (l zapLogger) Infof(msg string, args ...interface{})  { l.s.Infof(msg, args...) }
func (l zapLogger) Debugf(msg string, args ...interface{}) { l.s.Debugf(msg, args...) }

func (l zapLogger) Sub(module string) waLog.Logger {
	return zapLogger{s: l.s.With(zap.String("wa_module", module))}
}

var _ waLog.Logger = zapLogger{}
