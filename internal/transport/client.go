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

package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"
)

const (
	defaultUserAgent = "cwmpd"
	defaultTimeout   = 30 * time.Second
)

// ErrTransport is returned when an exchange with the ACS fails.
var ErrTransport = errors.New("ACS transport failure")

// Client talks to the ACS. Each session gets its own cookie jar and
// connection pool, released by Close.
type Client struct {
	url        *url.URL
	username   string
	password   string
	tlsConfig  *tls.Config
	httpClient *http.Client
	userAgent  string
	timeout    time.Duration
}

type ClientOption func(*Client)

// WithTLSConfig sets the TLS configuration used for https ACS URLs.
func WithTLSConfig(cfg *tls.Config) ClientOption {
	return func(c *Client) { c.tlsConfig = cfg }
}

// WithUserAgent overrides the User-Agent header. (default: cwmpd)
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) { c.userAgent = ua }
}

// WithTimeout bounds a single HTTP exchange. (default: 30s)
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

// NewClient returns a Client for the ACS at u. Credentials carried in the
// URL are sent with HTTP Basic authentication.
func NewClient(u *url.URL, options ...ClientOption) *Client {
	target := *u

	c := &Client{
		url:       &target,
		userAgent: defaultUserAgent,
		timeout:   defaultTimeout,
	}

	if target.User != nil {
		c.username = target.User.Username()
		c.password, _ = target.User.Password()
		target.User = nil
	}

	for _, opt := range options {
		opt(c)
	}

	return c
}

// URL returns the ACS URL without credentials.
func (c *Client) URL() string {
	return c.url.String()
}

// Open starts a new session with an empty cookie jar.
func (c *Client) Open() error {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}

	c.httpClient = &http.Client{
		Jar:     jar,
		Timeout: c.timeout,
		Transport: &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: c.tlsConfig,
		},
	}

	return nil
}

// Post sends body, which may be empty, and returns the ACS reply.
// A nil reply means the ACS has nothing more to say.
func (c *Client) Post(ctx context.Context, body []byte) ([]byte, error) {
	if c.httpClient == nil {
		return nil, fmt.Errorf("%w: session is not open", ErrTransport)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url.String(),
		bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %w", ErrTransport, err)
	}

	req.Header.Set("Content-Type", `text/xml; charset="utf-8"`)
	req.Header.Set("User-Agent", c.userAgent)

	if c.username != "" || c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: request failed: %w", ErrTransport, err)
	}

	//nolint:errcheck // nothing useful to do with the error
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %w", ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: unexpected status %s", ErrTransport, resp.Status)
	}

	if resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	return data, nil
}

// Close ends the session and drops its cookies.
func (c *Client) Close() {
	if c.httpClient == nil {
		return
	}

	c.httpClient.CloseIdleConnections()
	c.httpClient = nil
}
