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

// Package cert generates throwaway certificates for tests.
package cert

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"testing"
	"time"
)

type certOptions struct {
	template *x509.Certificate
	parent   *x509.Certificate
	priv     any
}

// CertificateOption defines a function for customizing certificate generation.
type CertificateOption func(*certOptions)

// WithDNSNames sets the Subject Alternative Names (SANs).
func WithDNSNames(names ...string) CertificateOption {
	return func(o *certOptions) {
		o.template.DNSNames = append(o.template.DNSNames, names...)
	}
}

// WithIPAddresses adds IP SANs, e.g. for an httptest server on 127.0.0.1.
func WithIPAddresses(ips ...net.IP) CertificateOption {
	return func(o *certOptions) {
		o.template.IPAddresses = append(o.template.IPAddresses, ips...)
	}
}

// WithCA sets CA to sign the certificate. By default it is self-signed
func WithCA(ca Pair) CertificateOption {
	return func(o *certOptions) {
		parent, err := x509.ParseCertificate(ca.Certificate.Certificate[0])
		if err != nil {
			panic(fmt.Sprintf("invalid CA certificate: %v", err))
		}

		o.parent = parent
		o.priv = ca.Certificate.PrivateKey
	}
}

// Pair is a generated certificate along with its PEM encoding.
type Pair struct {
	Certificate tls.Certificate
	CertPEM     []byte
	KeyPEM      []byte
}

func generate(tb testing.TB, template *x509.Certificate, opts ...CertificateOption) Pair {
	tb.Helper()
	//nolint:gosec // 1024 bits is enough for testing
	key, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		tb.Fatalf("failed to generate private key: %v", err)
	}

	co := &certOptions{
		template: template,
		parent:   template,
		priv:     key,
	}

	for _, opt := range opts {
		opt(co)
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, co.parent,
		&key.PublicKey, co.priv)
	if err != nil {
		tb.Fatalf("failed to create certificate: %v", err)
	}

	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		tb.Fatalf("failed to marshal private key: %v", err)
	}

	res := Pair{
		CertPEM: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER}),
		KeyPEM:  pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER}),
	}

	res.Certificate, err = tls.X509KeyPair(res.CertPEM, res.KeyPEM)
	if err != nil {
		tb.Fatalf("failed to parse cert/key: %v", err)
	}

	return res
}

// GenerateTestCA returns a self-signed CA certificate.
func GenerateTestCA(tb testing.TB) Pair {
	return generate(tb, &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: tb.Name() + " CA"},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(24 * time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
	})
}

// GenerateTestCertificate returns a key and certificate used for testing.
func GenerateTestCertificate(tb testing.TB, opts ...CertificateOption) Pair {
	return generate(tb, &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: tb.Name()},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{
			x509.ExtKeyUsageClientAuth,
			x509.ExtKeyUsageServerAuth,
		},
	}, opts...)
}
