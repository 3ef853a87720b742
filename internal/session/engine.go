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

package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"cwmpd.io/cwmpd/internal/event"
	"cwmpd.io/cwmpd/internal/rpc"
	"cwmpd.io/cwmpd/internal/soap"
)

const defaultDebounce = 500 * time.Millisecond

// ErrEmptyResponse is returned when the ACS sends nothing where a message
// is mandatory.
var ErrEmptyResponse = errors.New("empty response")

// Transport carries one session worth of HTTP exchanges with the ACS.
type Transport interface {
	Open() error
	Post(ctx context.Context, body []byte) ([]byte, error)
	Close()
	URL() string
}

// ReloadFunc returns a Transport built from freshly loaded ACS settings.
type ReloadFunc func(ctx context.Context) (Transport, error)

type messageHandler interface {
	HandleMessage(ctx context.Context, data []byte) ([]byte, error)
}

type engineStats struct {
	succeeded  atomic.Int64
	failed     atomic.Int64
	rpcs       atomic.Int64
	retryCount atomic.Int64
}

// Engine runs CWMP sessions, one at a time, on a single goroutine.
// Triggers coming from other goroutines are coalesced and served in order
// once the running session, if any, is done.
type Engine struct {
	transport  Transport
	next       Transport
	reload     ReloadFunc
	gateway    rpc.Gateway
	dispatcher messageHandler
	store      *event.Store
	retry      backoff.BackOff
	tracer     trace.Tracer
	now        func() time.Time
	newID      func() string

	periodic   *time.Timer
	retryTimer *time.Timer
	debounce   *time.Timer

	informC  chan struct{}
	connReqC chan struct{}

	device           soap.Device
	// lastEvent is the active event of the last accepted Inform. It is
	// reported again when an Inform has nothing new to report.
	lastEvent        *event.Event
	periodicAt       time.Time
	periodicInterval time.Duration
	debounceDelay    time.Duration
	retryCount       int
	periodicEnabled  bool
	reloadRequired   bool

	connReqPending atomic.Bool
	state          atomic.Int32
	stats          engineStats
}

type Option func(*Engine)

// WithPeriodic sets the periodic inform schedule used until the device
// reports its own values.
func WithPeriodic(enabled bool, interval time.Duration) Option {
	return func(e *Engine) {
		e.periodicEnabled = enabled
		e.periodicInterval = interval
	}
}

// WithReloader sets the function used to rebuild the ACS transport after
// the ACS changed its own management server parameters.
func WithReloader(f ReloadFunc) Option {
	return func(e *Engine) { e.reload = f }
}

// WithDebounce sets the delay between an accepted connection request and
// the session it triggers. (default: 500ms)
func WithDebounce(d time.Duration) Option {
	return func(e *Engine) { e.debounceDelay = d }
}

// WithRetryBackOff replaces the retry schedule of failed sessions.
// (default: RetryPolicy)
func WithRetryBackOff(b backoff.BackOff) Option {
	return func(e *Engine) { e.retry = b }
}

// WithTracer sets the tracer used to record one span per session.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

func NewEngine(store *event.Store, gateway rpc.Gateway, transport Transport,
	device soap.Device, options ...Option) *Engine {
	e := &Engine{
		transport:     transport,
		gateway:       gateway,
		store:         store,
		device:        device,
		retry:         &RetryPolicy{},
		tracer:        tracenoop.NewTracerProvider().Tracer(""),
		now:           time.Now,
		newID:         uuid.NewString,
		debounceDelay: defaultDebounce,
		informC:       make(chan struct{}, 1),
		connReqC:      make(chan struct{}, 1),
		periodic:      newStoppedTimer(),
		retryTimer:    newStoppedTimer(),
		debounce:      newStoppedTimer(),
	}

	e.dispatcher = rpc.NewDispatcher(gateway, rpc.WithHooks(e))

	for _, opt := range options {
		opt(e)
	}

	return e
}

// State returns the current state of the session state machine.
func (e *Engine) State() State {
	return State(e.state.Load())
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
}

type session struct {
	log  zerolog.Logger
	span trace.Span
	err  error
	id   string
	snap event.Snapshot
	out  []byte
}

func eventList(events []event.Event) string {
	res := make([]string, 0, len(events))
	for _, e := range events {
		res = append(res, e.Code.String())
	}

	return strings.Join(res, ", ")
}

// runSession runs one session and, if a connection request came in while
// it was running, another one right away.
func (e *Engine) runSession(ctx context.Context) {
	for {
		e.connReqPending.Store(false)

		if ok := e.session(ctx); !ok || ctx.Err() != nil || !e.connReqPending.Load() {
			return
		}

		select {
		case <-e.connReqC:
		default:
		}

		e.debounce.Stop()

		log.Info().Msg("Connection request pending, starting a new session")
	}
}

func (e *Engine) session(ctx context.Context) bool {
	s := &session{id: e.newID()}
	s.log = log.With().Str("session", s.id).Logger()

	ctx, s.span = e.tracer.Start(ctx, "cwmp.session",
		trace.WithAttributes(attribute.String("cwmp.session_id", s.id)))
	defer s.span.End()

	state := StateBuildingInform

	for state != StateIdle {
		e.setState(state)
		s.log.Debug().Stringer("state", state).Send()

		switch state {
		case StateBuildingInform:
			state = e.buildInform(ctx, s)
		case StateAwaitingInformResponse:
			state = e.awaitInformResponse(ctx, s)
		case StateRPCLoop:
			state = e.rpcLoop(ctx, s)
		case StateSessionDone:
			state = e.sessionDone(s)
		case StateRetryScheduled:
			state = e.scheduleRetry(s)
		default:
			panic(fmt.Sprintf("unexpected session state %s", state))
		}
	}

	e.setState(StateIdle)

	return s.err == nil
}

func (e *Engine) fail(s *session, err error) State {
	s.err = err
	return StateRetryScheduled
}

func (e *Engine) buildInform(ctx context.Context, s *session) State {
	s.snap = e.store.Snapshot()

	if s.snap.HasActive {
		s.span.SetAttributes(attribute.String("cwmp.event", s.snap.Active.String()))
	}

	if err := e.transport.Open(); err != nil {
		return e.fail(s, err)
	}

	events := s.snap.Events
	if len(events) == 0 && e.lastEvent != nil {
		events = []event.Event{*e.lastEvent}
	}

	msg, err := soap.BuildInform(ctx, soap.Inform{
		ID:            s.id,
		CurrentTime:   e.now(),
		Device:        e.device,
		Events:        events,
		Notifications: s.snap.Notifications,
		RetryCount:    e.retryCount,
	}, e.gateway)
	if err != nil {
		return e.fail(s, fmt.Errorf("building Inform: %w", err))
	}

	s.out = msg

	s.log.Info().
		Str("events", eventList(events)).
		Int("notifications", len(s.snap.Notifications)).
		Int("retry_count", e.retryCount).
		Str("acs", e.transport.URL()).
		Msg("Sending Inform")

	return StateAwaitingInformResponse
}

func (e *Engine) awaitInformResponse(ctx context.Context, s *session) State {
	in, err := e.transport.Post(ctx, s.out)
	if err != nil {
		return e.fail(s, err)
	}

	if in == nil {
		return e.fail(s, fmt.Errorf("%w to Inform", ErrEmptyResponse))
	}

	if err := soap.ParseInformResponse(in); err != nil {
		return e.fail(s, err)
	}

	e.retryCount = 0
	e.stats.retryCount.Store(0)
	e.retry.Reset()
	e.retryTimer.Stop()
	e.store.Acknowledge(s.snap)

	for _, ev := range s.snap.Events {
		ev := ev
		if s.snap.HasActive && ev.Code == s.snap.Active {
			e.lastEvent = &ev
		}
	}

	s.log.Debug().Msg("Inform accepted")

	s.out = nil

	return StateRPCLoop
}

func (e *Engine) rpcLoop(ctx context.Context, s *session) State {
	for {
		in, err := e.transport.Post(ctx, s.out)
		if err != nil {
			return e.fail(s, err)
		}

		if in == nil {
			return StateSessionDone
		}

		out, err := e.dispatcher.HandleMessage(ctx, in)
		if err != nil {
			return e.fail(s, err)
		}

		if len(out) == 0 {
			return e.fail(s, fmt.Errorf("%w to ACS request", ErrEmptyResponse))
		}

		e.stats.rpcs.Add(1)
		s.out = out
	}
}

func (e *Engine) sessionDone(s *session) State {
	e.transport.Close()

	if e.next != nil {
		s.log.Info().Str("acs", e.next.URL()).Msg("Switching to reloaded ACS configuration")

		e.transport = e.next
		e.next = nil
	}

	e.stats.succeeded.Add(1)
	s.span.SetStatus(codes.Ok, "")
	s.log.Info().Msg("Session finished")

	return StateIdle
}

func (e *Engine) scheduleRetry(s *session) State {
	e.transport.Close()

	e.retryCount++
	e.stats.retryCount.Store(int64(e.retryCount))
	e.stats.failed.Add(1)

	delay := e.retry.NextBackOff()
	if delay == backoff.Stop {
		delay = RetryDelay(e.retryCount)
	}

	e.retryTimer.Reset(delay)

	s.span.RecordError(s.err)
	s.span.SetStatus(codes.Error, s.err.Error())
	s.log.Error().Err(s.err).
		Int("retry_count", e.retryCount).
		Dur("delay", delay).
		Msg("Session failed, retry scheduled")

	return StateIdle
}
