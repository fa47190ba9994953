package utils

import "go.uber.org/zap"

// NewLogger returns a zap logger. DEBUG selects the development config
// (human-readable, debug level); anything else the production config
// (JSON, info level).
func NewLogger(level string) (*zap.Logger, error) {
	if level == "DEBUG" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
