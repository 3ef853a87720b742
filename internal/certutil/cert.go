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

package certutil

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"

	"github.com/spf13/afero"
)

// LoadX509KeyPair works like tls.LoadX509KeyPair but allows using afero.Fs
func LoadX509KeyPair(fs afero.Fs, certFile string,
	keyFile string) (tls.Certificate, error) {
	keyPEM, err := afero.ReadFile(fs, keyFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to read private key: %w", err)
	}

	certPEM, err := afero.ReadFile(fs, certFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to read certificate: %w", err)
	}

	return tls.X509KeyPair(certPEM, keyPEM)
}

// LoadCAPool returns x509.SystemCertPool with added PEM data read from afero.Fs
func LoadCAPool(fs afero.Fs, caFile string) (*x509.CertPool, error) {
	caPEM, err := afero.ReadFile(fs, caFile)
	if err != nil {
		return nil, fmt.Errorf("read CA file: %w", err)
	}

	pool, err := x509.SystemCertPool()
	if err != nil {
		return nil, fmt.Errorf("system cert pool: %w", err)
	}

	if ok := pool.AppendCertsFromPEM(caPEM); !ok {
		return nil, fmt.Errorf("no certificates found in %s", caFile)
	}

	return pool, nil
}

// ClientOptions selects the TLS material presented to and expected from
// the ACS.
type ClientOptions struct {
	// CertFile holds the client certificate. KeyFile may be left empty
	// when the key is stored in the same PEM file.
	CertFile           string
	KeyFile            string
	CAFile             string
	InsecureSkipVerify bool
}

// NewClientTLSConfig builds the client TLS configuration for opts.
// Without a CA file the system pool is used.
func NewClientTLSConfig(fs afero.Fs, opts ClientOptions) (*tls.Config, error) {
	cfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
		//nolint:gosec // explicitly requested by the operator
		InsecureSkipVerify: opts.InsecureSkipVerify,
	}

	if opts.CertFile != "" {
		keyFile := opts.KeyFile
		if keyFile == "" {
			keyFile = opts.CertFile
		}

		cert, err := LoadX509KeyPair(fs, opts.CertFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("client certificate: %w", err)
		}

		cfg.Certificates = []tls.Certificate{cert}
	}

	if opts.CAFile != "" {
		pool, err := LoadCAPool(fs, opts.CAFile)
		if err != nil {
			return nil, err
		}

		cfg.RootCAs = pool
	}

	return cfg, nil
}
