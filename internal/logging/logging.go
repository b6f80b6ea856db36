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

// SetupWithWriter configures zerolog with an additional writer such as the
// in-memory log buffer. Development gets console output at debug level;
// other environments log JSON at info level.
func SetupWithWriter(environment string, additionalWriter io.Writer) zerolog.Logger {
	return newLogger(environment, os.Stdout, additionalWriter)
}

func newLogger(environment string, out io.Writer, additionalWriter io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level := zerolog.InfoLevel
	var primary io.Writer = out
	if environment == "development" {
		level = zerolog.DebugLevel
		primary = zerolog.ConsoleWriter{Out: out}
	}

	writer := primary
	if additionalWriter != nil {
		// The additional writer always receives JSON.
		writer = zerolog.MultiLevelWriter(primary, additionalWriter)
	}

	logger := zerolog.New(writer).With().Timestamp().Logger().Level(level)
	log.Logger = logger
	return logger
}
