package config

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger builds the service logger: JSON in production format, colored
// console output otherwise.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}

	var zc zap.Config
	if c.Log.Format == "console" {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zc = zap.NewProductionConfig()
		zc.EncoderConfig.TimeKey = "ts"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	log, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return log.With(zap.String("env", c.Env)), nil
}

func parseLevel(v string) (zapcore.Level, error) {
	if v == "" {
		return zapcore.InfoLevel, nil
	}
	level, err := zapcore.ParseLevel(v)
	if err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
