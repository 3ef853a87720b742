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

package logger

import (
	"bytes"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
)

type bufferLevelWriter struct {
	bytes.Buffer
}

func (b *bufferLevelWriter) WriteLevel(_ zerolog.Level, p []byte) (int, error) {
	return b.Write(p)
}

func TestParseLevel(t *testing.T) {
	testcases := map[string]struct {
		in  string
		out zerolog.Level
	}{
		"debug":   {in: "debug", out: zerolog.DebugLevel},
		"error":   {in: "error", out: zerolog.ErrorLevel},
		"empty":   {in: "", out: zerolog.InfoLevel},
		"unknown": {in: "chatty", out: zerolog.InfoLevel},
	}

	for name, tc := range testcases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.out, ParseLevel(tc.in))
		})
	}
}

func TestConsole(t *testing.T) {
	var buf bytes.Buffer

	l := zerolog.New(Console(&buf))
	l.Warn().Str("session", "abc").Msg("Session failed")

	assert.Equal(t, "WRN Session failed session=abc\n", buf.String())
}

func TestSetupSyslog(t *testing.T) {
	defaultSyslog := newSyslog
	defaultLogger := log.Logger
	defaultLevel := zerolog.GlobalLevel()

	t.Cleanup(func() {
		newSyslog = defaultSyslog
		log.Logger = defaultLogger
		zerolog.SetGlobalLevel(defaultLevel)
	})

	t.Run("syslog", func(t *testing.T) {
		sink := &bufferLevelWriter{}
		newSyslog = func() (zerolog.LevelWriter, error) { return sink, nil }

		Setup("debug", true)
		log.Debug().Msg("hello")

		assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
		assert.Contains(t, sink.String(), `"message":"hello"`)
	})

	t.Run("syslog unavailable", func(t *testing.T) {
		calls := 0
		newSyslog = func() (zerolog.LevelWriter, error) {
			calls++
			return nil, errors.New("no syslog")
		}

		Setup("warn", true)

		assert.Equal(t, 1, calls)
		assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
	})
}
