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

package main

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"cwmpd.io/cwmpd/internal/certutil"
	"cwmpd.io/cwmpd/internal/daemon"
	"cwmpd.io/cwmpd/internal/session"
	"cwmpd.io/cwmpd/internal/soap"
	"cwmpd.io/cwmpd/internal/transport"
)

type parameterReader interface {
	Get(ctx context.Context, action, name string) (string, error)
}

// acsLoader builds the ACS transport from the configuration file with the
// management server parameters of the device on top.
type acsLoader struct {
	fs      afero.Fs
	reader  parameterReader
	file    string
	current daemon.ACSConfig
}

// overlay applies the ManagementServer URL and credentials reported by the
// device. Values that cannot be read leave the configured ones untouched.
func (l *acsLoader) overlay(ctx context.Context, acs daemon.ACSConfig) daemon.ACSConfig {
	get := func(name string) string {
		v, err := l.reader.Get(ctx, "value", name)
		if err != nil {
			log.Warn().Err(err).Str("parameter", name).Msg("Cannot read ACS parameter")
			return ""
		}

		return v
	}

	if u := get(soap.ParamURL); u != "" {
		res, err := acs.WithURL(u)
		if err != nil {
			log.Warn().Err(err).Str("url", u).Msg("Ignoring invalid ACS URL")
		} else {
			acs = res
		}
	}

	username, password := get(soap.ParamUsername), get(soap.ParamPassword)
	if username != "" || password != "" {
		acs = acs.WithCredentials(username, password)
	}

	return acs
}

// Load implements session.ReloadFunc. A configuration file that cannot be
// loaded any more keeps the previous ACS settings.
func (l *acsLoader) Load(ctx context.Context) (session.Transport, error) {
	acs := l.current

	if cfg, err := daemon.LoadConfig(l.fs, l.file); err != nil {
		log.Error().Err(err).Msg("Failed to reload configuration, keeping the previous one")
	} else {
		acs = cfg.ACS
	}

	acs = l.overlay(ctx, acs)

	var tlsConfig *tls.Config

	if acs.Scheme == "https" {
		var err error

		tlsConfig, err = certutil.NewClientTLSConfig(l.fs, acs.TLSOptions())
		if err != nil {
			return nil, fmt.Errorf("%w: %w", daemon.ErrConfig, err)
		}
	}

	l.current = acs

	return transport.NewClient(acs.URL(),
		transport.WithTLSConfig(tlsConfig),
		transport.WithUserAgent("cwmpd/"+version),
	), nil
}
