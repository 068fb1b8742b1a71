/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures zerolog for the process.
func Setup(environment string) zerolog.Logger {
	return SetupWithWriter(environment, nil)
}

// SetupWithWriter configures zerolog and tees JSON lines to capture, which
// is typically a logbuffer.Writer.
//
// Development gets debug level and a console writer. Production logs JSON.
func SetupWithWriter(environment string, capture io.Writer) zerolog.Logger {
	return build(environment, os.Stdout, capture)
}

func build(environment string, out io.Writer, capture io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level := zerolog.InfoLevel
	var writer io.Writer = out
	switch environment {
	case "development", "test":
		level = zerolog.DebugLevel
		writer = zerolog.ConsoleWriter{Out: out}
	case "production":
	default:
		writer = zerolog.ConsoleWriter{Out: out}
	}

	if capture != nil {
		// ConsoleWriter only formats its own output; capture still sees JSON.
		writer = zerolog.MultiLevelWriter(writer, capture)
	}

	logger := zerolog.New(writer).With().Timestamp().Str("service", "grimnir_voice").Logger().Level(level)
	log.Logger = logger
	return logger
}
