// Package logging builds the zap logger shared across the pipeline:
// console encoding for local runs, JSON for production, matching
// jordigilh-kubernaut's dev/prod split but replacing the teacher's plain
// `log.Println("[COMPONENT] ...")` prefixes with zap's structured
// fields, the way a sweep that interleaves several sources' progress
// lines needs to stay greppable.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a *zap.SugaredLogger. level is one of zap's level strings
// (debug, info, warn, error); an unrecognized value falls back to info.
// prod selects JSON encoding over the human-readable console encoder.
func New(level string, prod bool) (*zap.SugaredLogger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zapcore.InfoLevel
	}

	var cfg zap.Config
	if prod {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build zap logger: %w", err)
	}
	return logger.Sugar(), nil
}
