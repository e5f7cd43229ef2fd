package orchestrator

import "go.uber.org/zap"

// ZapLogger adapts a *zap.SugaredLogger to the Logger interface the
// orchestrator and its providers depend on.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

func NewZapLogger(logger *zap.Logger) *ZapLogger {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &ZapLogger{sugar: logger.Sugar()}
}

func (z *ZapLogger) Debug(msg string, args ...interface{}) {
	z.sugar.Debugw(msg, args...)
}

func (z *ZapLogger) Info(msg string, args ...interface{}) {
	z.sugar.Infow(msg, args...)
}

func (z *ZapLogger) Warn(msg string, args ...interface{}) {
	z.sugar.Warnw(msg, args...)
}

func (z *ZapLogger) Error(msg string, args ...interface{}) {
	z.sugar.Errorw(msg, args...)
}

func (z *ZapLogger) Sync() error {
	return z.sugar.Sync()
}
