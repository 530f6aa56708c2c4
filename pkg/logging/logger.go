// Package logging builds the process-wide zap logger and provides
// sanitizers for values that may carry credentials.
package logging

import (
	"fmt"

	"go.uber.org/zap"
)

// New constructs a zap logger for the given environment. "local" gets the
// human-readable development encoder; everything else logs production JSON.
func New(env string) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)

	if env == "local" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	return logger, nil
}
