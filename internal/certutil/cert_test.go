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
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	certtest "cwmpd.io/cwmpd/internal/testing/cert"
)

func TestLoadX509KeyPair(t *testing.T) {
	expected := certtest.GenerateTestCertificate(t)
	certFile := "cert.pem"
	keyFile := "cert.key"

	fs := afero.NewMemMapFs()

	require.NoError(t, afero.WriteFile(fs, certFile, expected.CertPEM, 0o644))
	require.NoError(t, afero.WriteFile(fs, keyFile, expected.KeyPEM, 0o600))

	got, err := LoadX509KeyPair(fs, certFile, keyFile)
	require.NoError(t, err)
	require.Equal(t, expected.Certificate, got)

	_, err = LoadX509KeyPair(fs, certFile, "missing.key")
	assert.Error(t, err)
}

func TestLoadCAPool(t *testing.T) {
	ca := certtest.GenerateTestCA(t)
	caFile := "ca.pem"

	fs := afero.NewMemMapFs()

	require.NoError(t, afero.WriteFile(fs, caFile, ca.CertPEM, 0o644))

	leaf, err := x509.ParseCertificate(ca.Certificate.Certificate[0])
	require.NoError(t, err)

	expected, err := x509.SystemCertPool()
	require.NoError(t, err)
	expected.AddCert(leaf)

	got, err := LoadCAPool(fs, caFile)
	require.NoError(t, err)
	require.True(t, expected.Equal(got))
}

func TestNewClientTLSConfig(t *testing.T) {
	ca := certtest.GenerateTestCA(t)
	client := certtest.GenerateTestCertificate(t, certtest.WithCA(ca))

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "ca.pem", ca.CertPEM, 0o644))
	require.NoError(t, afero.WriteFile(fs, "client.pem", client.CertPEM, 0o644))
	require.NoError(t, afero.WriteFile(fs, "client.key", client.KeyPEM, 0o600))
	require.NoError(t, afero.WriteFile(fs, "combined.pem",
		append(append([]byte{}, client.CertPEM...), client.KeyPEM...), 0o600))
	require.NoError(t, afero.WriteFile(fs, "garbage.pem", []byte("garbage"), 0o644))

	testcases := map[string]struct {
		in       ClientOptions
		certs    int
		rootCAs  bool
		insecure bool
		err      bool
	}{
		"system defaults": {},
		"insecure": {
			in:       ClientOptions{InsecureSkipVerify: true},
			insecure: true,
		},
		"separate key": {
			in:    ClientOptions{CertFile: "client.pem", KeyFile: "client.key"},
			certs: 1,
		},
		"combined PEM": {
			in:    ClientOptions{CertFile: "combined.pem"},
			certs: 1,
		},
		"custom CA": {
			in:      ClientOptions{CAFile: "ca.pem"},
			rootCAs: true,
		},
		"certificate without key": {
			in:  ClientOptions{CertFile: "client.pem"},
			err: true,
		},
		"invalid CA": {
			in:  ClientOptions{CAFile: "garbage.pem"},
			err: true,
		},
		"missing CA": {
			in:  ClientOptions{CAFile: "missing.pem"},
			err: true,
		},
	}

	for name, tc := range testcases {
		t.Run(name, func(t *testing.T) {
			cfg, err := NewClientTLSConfig(fs, tc.in)
			if tc.err {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
			assert.Len(t, cfg.Certificates, tc.certs)
			assert.Equal(t, tc.rootCAs, cfg.RootCAs != nil)
			assert.Equal(t, tc.insecure, cfg.InsecureSkipVerify)
		})
	}
}
