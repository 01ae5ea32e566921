// Package server carries the shared structured logger used by the hub,
// clients, and session layer.
package server

import (
	"os"

	"github.com/rs/zerolog"
)

var logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

// SetLogger replaces the package logger. The entrypoint wires a console
// writer and the configured level here before the hub starts.
func SetLogger(l zerolog.Logger) {
	logger = l
}

// ParseLevel maps a configured level name onto a zerolog level, defaulting to
// info for anything unrecognized.
func ParseLevel(level string) zerolog.Level {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil || parsed == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return parsed
}
