package logger

import (
	"errors"

	"github.com/m-mizutani/goerr/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func New(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// ErrFields expands err into zap fields, adding the values and stack carried
// by a goerr error.
func ErrFields(err error) []zap.Field {
	fields := []zap.Field{zap.Error(err)}

	var ge *goerr.Error
	if errors.As(err, &ge) {
		fields = append(fields,
			zap.Any("values", ge.Values()),
			zap.Any("stack", ge.Stacks()),
		)
	}
	return fields
}
