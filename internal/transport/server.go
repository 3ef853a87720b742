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
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/netutil"
)

const (
	defaultMaxConnections = 4
	requestTimeout        = 60 * time.Second
)

// ErrUnauthorized is returned when a connection request does not carry the
// expected credentials.
var ErrUnauthorized = errors.New("unauthorized connection request")

// CredentialsFunc resolves the credentials the ACS has to present.
type CredentialsFunc func(ctx context.Context) (username, password string, err error)

type serverStats struct {
	accepted atomic.Int64
	rejected atomic.Int64
}

// ConnectionRequestServer accepts connection requests from the ACS and
// notifies the session engine about the authenticated ones.
type ConnectionRequestServer struct {
	credentials CredentialsFunc
	onRequest   func()
	maxConns    int
	stats       serverStats
}

type ServerOption func(*ConnectionRequestServer)

// WithMaxConnections limits the number of connections served concurrently.
// (default: 4)
func WithMaxConnections(n int) ServerOption {
	return func(s *ConnectionRequestServer) { s.maxConns = n }
}

func NewConnectionRequestServer(credentials CredentialsFunc, onRequest func(),
	options ...ServerOption) *ConnectionRequestServer {
	s := &ConnectionRequestServer{
		credentials: credentials,
		onRequest:   onRequest,
		maxConns:    defaultMaxConnections,
	}

	for _, opt := range options {
		opt(s)
	}

	return s
}

// Handler returns the HTTP handler answering connection requests on any path.
func (s *ConnectionRequestServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.HandleFunc("/*", s.handle)

	return r
}

func (s *ConnectionRequestServer) handle(w http.ResponseWriter, r *http.Request) {
	if err := s.authorize(r); err != nil {
		s.stats.rejected.Add(1)

		log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("Connection request rejected")

		w.Header().Set("WWW-Authenticate", `Basic realm="default"`)
		w.Header().Set("Connection", "close")
		w.WriteHeader(http.StatusUnauthorized)

		return
	}

	s.stats.accepted.Add(1)

	log.Info().Str("remote", r.RemoteAddr).Msg("Connection request accepted")

	w.WriteHeader(http.StatusNoContent)

	s.onRequest()
}

func (s *ConnectionRequestServer) authorize(r *http.Request) error {
	username, password, ok := r.BasicAuth()
	if !ok {
		return fmt.Errorf("%w: missing or malformed Authorization header", ErrUnauthorized)
	}

	expectedUsername, expectedPassword, err := s.credentials(r.Context())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}

	if expectedUsername == "" {
		return fmt.Errorf("%w: no connection request username configured", ErrUnauthorized)
	}

	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(expectedUsername)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(expectedPassword)) == 1

	if !userOK || !passOK {
		return fmt.Errorf("%w: credentials mismatch", ErrUnauthorized)
	}

	return nil
}

// Serve answers connection requests on l until ctx is cancelled.
func (s *ConnectionRequestServer) Serve(ctx context.Context, l net.Listener) error {
	if s.maxConns > 0 {
		l = netutil.LimitListener(l, s.maxConns)
	}

	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: requestTimeout,
		ReadTimeout:       requestTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		//nolint:errcheck // shutting down
		server.Close()
	}()

	if err := server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// ListenAndServe listens on addr and calls Serve.
func (s *ConnectionRequestServer) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig

	l, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	log.Info().Str("addr", addr).Msg("Listening for connection requests")

	return s.Serve(ctx, l)
}
