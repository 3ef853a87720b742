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

// Package notify implements the local socket through which the device
// reports parameter changes and asks for an immediate Inform.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"

	"cwmpd.io/cwmpd/internal/event"
)

const (
	MethodNotify = "notify"
	MethodInform = "inform"
)

var (
	// ErrMalformed is returned for messages that cannot be acted upon.
	ErrMalformed = errors.New("malformed message")
)

// Message is one newline-delimited JSON request read from the socket.
type Message struct {
	Method    string `json:"method"`
	Parameter string `json:"parameter,omitempty"`
	Value     string `json:"value,omitempty"`
	// Event optionally overrides the event reported by an inform request,
	// e.g. "1 BOOT" or "value_change".
	Event string `json:"event,omitempty"`
}

// Validate checks that m carries what its method needs.
func (m *Message) Validate() error {
	switch m.Method {
	case MethodNotify:
		if m.Parameter == "" {
			return fmt.Errorf("%w: notify without parameter", ErrMalformed)
		}
	case MethodInform:
		if m.Event != "" {
			if _, err := event.ParseCode(m.Event); err != nil {
				return fmt.Errorf("%w: %w", ErrMalformed, err)
			}
		}
	default:
		return fmt.Errorf("%w: unknown method %q", ErrMalformed, m.Method)
	}

	return nil
}

// Receiver is the session engine side of the socket.
type Receiver interface {
	Notify(ctx context.Context, parameter, value string)
	InformNow(code event.Code)
}

// Listener serves local clients connected to the notification socket.
type Listener struct {
	receiver Receiver
	wg       sync.WaitGroup
}

func NewListener(receiver Receiver) *Listener {
	return &Listener{receiver: receiver}
}

// ListenAndServe creates the unix socket at path, replacing a stale one,
// and serves it until ctx is cancelled.
func (l *Listener) ListenAndServe(ctx context.Context, path string) error {
	if err := syscall.Unlink(path); err != nil {
		if !os.IsNotExist(err) {
			return err
		}
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return err
	}

	//nolint:gosec // local clients run as the daemon group
	if err := os.Chmod(path, 0660); err != nil {
		//nolint:errcheck // already failing
		listener.Close()
		return err
	}

	return l.Serve(ctx, listener)
}

// Serve accepts connections on listener until ctx is cancelled. Each
// connection may carry any number of messages.
func (l *Listener) Serve(ctx context.Context, listener net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()

		if err := listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Warn().Err(err).Send()
		}
	}()

	defer l.wg.Wait()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return err
		}

		l.wg.Add(1)

		go func() {
			defer l.wg.Done()
			l.read(ctx, conn)
		}()
	}
}

func (l *Listener) read(ctx context.Context, conn net.Conn) {
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}

		//nolint:errcheck // the peer might be gone already
		conn.Close()
	}()

	decoder := json.NewDecoder(conn)

	for {
		var msg Message

		err := decoder.Decode(&msg)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return
			}

			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &typeErr) {
				log.Warn().Err(err).Msg("Malformed local notification")
				continue
			}

			var syntaxErr *json.SyntaxError
			if !errors.As(err, &syntaxErr) {
				log.Warn().Err(err).Msg("Notification socket read failed")
				return
			}

			log.Warn().Err(err).Msg("Malformed local notification")
			// the rest of the stream cannot be trusted, drop what was buffered
			decoder = json.NewDecoder(conn)

			continue
		}

		if err := l.handle(ctx, &msg); err != nil {
			log.Warn().Err(err).Send()
		}
	}
}

func (l *Listener) handle(ctx context.Context, msg *Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	switch msg.Method {
	case MethodNotify:
		l.receiver.Notify(ctx, msg.Parameter, msg.Value)
	case MethodInform:
		code := event.ConnectionRequest

		if msg.Event != "" {
			//nolint:errcheck // checked by Validate
			code, _ = event.ParseCode(msg.Event)
		}

		log.Info().Stringer("event", code).Msg("Inform requested locally")
		l.receiver.InformNow(code)
	}

	return nil
}
