// Copyright (c) 2026 Canonical Ltd
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package logger configures the global zerolog logger.
package logger

import (
	"fmt"
	"io"
	"log/syslog"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Tag is the syslog identity of the daemon.
const Tag = "cwmpd"

// newSyslog is replaced in unit tests.
var newSyslog = func() (zerolog.LevelWriter, error) {
	w, err := syslog.New(syslog.LOG_DAEMON|syslog.LOG_INFO, Tag)
	if err != nil {
		return nil, err
	}

	return zerolog.SyslogLevelWriter(w), nil
}

// ParseLevel returns the zerolog level for name. If name is unknown,
// then INFO will be used.
func ParseLevel(name string) zerolog.Level {
	ll, err := zerolog.ParseLevel(name)
	if err != nil || ll == zerolog.NoLevel {
		return zerolog.InfoLevel
	}

	return ll
}

// Console returns a writer for a foreground process. Timestamps are left
// out, whoever captures stdout adds their own.
func Console(out io.Writer) io.Writer {
	w := zerolog.ConsoleWriter{Out: out, NoColor: true}
	w.PartsOrder = []string{
		zerolog.LevelFieldName,
		zerolog.CallerFieldName,
		zerolog.MessageFieldName,
	}

	return w
}

// Setup sets the global logger with the provided level. A detached daemon
// logs to syslog, falling back to stderr if syslog is not reachable.
func Setup(level string, toSyslog bool) {
	var w io.Writer = Console(os.Stderr)

	var syslogErr error

	if toSyslog {
		var sw zerolog.LevelWriter

		if sw, syslogErr = newSyslog(); syslogErr == nil {
			w = sw
		}
	}

	log.Logger = zerolog.New(w).With().Logger()

	ll := ParseLevel(level)
	zerolog.SetGlobalLevel(ll)

	if syslogErr != nil {
		log.Warn().Err(syslogErr).Msg("Syslog is not available, logging to stderr")
	}

	log.Info().Msg(fmt.Sprintf("Logger is configured with log level %q", ll.String()))
}
