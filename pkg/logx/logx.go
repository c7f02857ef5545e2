package logx

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var lg *zap.SugaredLogger

// Init builds the process logger from LOG_LEVEL and LOG_FORMAT. The service
// name is attached to every line.
func Init(service string) {
	level := zapcore.InfoLevel
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.Encoding = "json"
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "console") {
		cfg.Encoding = "console"
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	z, err := cfg.Build()
	if err != nil {
		z = zap.NewNop()
	}
	if service != "" {
		z = z.With(zap.String("service", service))
	}
	lg = z.Sugar()
}

func L() *zap.SugaredLogger {
	if lg == nil {
		Init("")
	}
	return lg
}

// Campaign returns a logger scoped to one campaign.
func Campaign(id string) *zap.SugaredLogger { return L().With("campaign_id", id) }

// SetForTest swaps the global logger and returns a restore func.
func SetForTest(l *zap.SugaredLogger) func() {
	prev := lg
	lg = l
	return func() { lg = prev }
}

func Sync() { _ = L().Sync() }
