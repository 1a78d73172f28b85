// Package nlog is the process-wide logger, called the same way aistore's own
// cmn/nlog is called at every site in this codebase (Infoln, Infof, Errorln,
// Warningln) but backed by zerolog rather than a bespoke ring-buffer sink.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package nlog

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

var logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}).With().Timestamp().Logger()

// SetLevel adjusts verbosity process-wide; "debug", "info", "warn", "error".
func SetLevel(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	logger = logger.Level(lvl)
}

func Infoln(v ...any)                 { logger.Info().Msg(sprint(v...)) }
func Infof(format string, v ...any)   { logger.Info().Msgf(format, v...) }
func Warningln(v ...any)              { logger.Warn().Msg(sprint(v...)) }
func Warningf(format string, v ...any) { logger.Warn().Msgf(format, v...) }
func Errorln(v ...any)                { logger.Error().Msg(sprint(v...)) }
func Errorf(format string, v ...any)  { logger.Error().Msgf(format, v...) }

// SetOutput is used by tests wanting to assert on log content.
func SetOutput(w zerolog.ConsoleWriter) { logger = zerolog.New(w).With().Timestamp().Logger() }

func sprint(v ...any) string {
	if len(v) == 1 {
		if s, ok := v[0].(string); ok {
			return s
		}
	}
	out := ""
	for i, x := range v {
		if i > 0 {
			out += " "
		}
		out += toStr(x)
	}
	return out
}

func toStr(x any) string {
	if s, ok := x.(string); ok {
		return s
	}
	if e, ok := x.(error); ok {
		return e.Error()
	}
	return fmt.Sprintf("%v", x)
}
