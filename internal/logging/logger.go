package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap logger for the given environment: colourised development
// output for dev/qa/test, JSON on stdout otherwise.
func New(env string) (*zap.Logger, error) {
	var cfg zap.Config
	switch env {
	case "dev", "qa", "test":
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		cfg = zap.NewProductionConfig()
		cfg.OutputPaths = []string{"stdout"}
		cfg.ErrorOutputPaths = []string{"stderr"}
	}
	return cfg.Build(zap.AddStacktrace(zap.DPanicLevel))
}

// Must is New that panics on error, for process entrypoints.
func Must(env string) *zap.Logger {
	l, err := New(env)
	if err != nil {
		panic(err)
	}
	return l
}
