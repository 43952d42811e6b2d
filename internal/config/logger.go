package config

import (
	"fmt"

	"go.uber.org/zap"
)

// NewLogger builds the service logger: console output at debug level,
// JSON otherwise.
func NewLogger(level string) (*zap.Logger, error) {
	atom, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	cfg := zap.NewProductionConfig()
	if atom.Level() == zap.DebugLevel {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = atom
	return cfg.Build()
}
