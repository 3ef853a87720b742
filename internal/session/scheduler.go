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
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"cwmpd.io/cwmpd/internal/event"
	"cwmpd.io/cwmpd/internal/soap"
)

func newStoppedTimer() *time.Timer {
	t := time.NewTimer(time.Hour)
	t.Stop()

	return t
}

// Run loads the periodic inform settings, runs the initial session and then
// serves triggers until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	defer func() {
		e.periodic.Stop()
		e.retryTimer.Stop()
		e.debounce.Stop()
	}()

	e.loadPeriodic(ctx)
	e.armPeriodic()

	e.runSession(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-e.periodic.C:
			e.onPeriodic(ctx)
		case <-e.retryTimer.C:
			log.Debug().Int("retry_count", e.retryCount).Msg("Retrying session")
			e.runSession(ctx)
		case <-e.connReqC:
			e.debounce.Reset(e.debounceDelay)
		case <-e.debounce.C:
			e.runSession(ctx)
		case <-e.informC:
			e.runSession(ctx)
		}
	}
}

func (e *Engine) loadPeriodic(ctx context.Context) {
	if v, err := e.gateway.Get(ctx, "value", soap.ParamPeriodicInformEnable); err != nil {
		log.Warn().Err(err).Msg("Failed to read periodic inform enable, using configured value")
	} else if enabled, ok := parseEnable(v); ok {
		e.periodicEnabled = enabled
	}

	if v, err := e.gateway.Get(ctx, "value", soap.ParamPeriodicInformInterval); err != nil {
		log.Warn().Err(err).Msg("Failed to read periodic inform interval, using configured value")
	} else if interval, ok := parseInterval(v); ok {
		e.periodicInterval = interval
	}
}

func parseEnable(v string) (bool, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return false, false
	}

	if b, err := strconv.ParseBool(v); err == nil {
		return b, true
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return false, false
	}

	return n != 0, true
}

func parseInterval(v string) (time.Duration, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		return 0, false
	}

	return time.Duration(n) * time.Second, true
}

// armPeriodic (re)programs the periodic timer, cancelling a pending fire.
func (e *Engine) armPeriodic() {
	e.periodic.Stop()

	if !e.periodicEnabled || e.periodicInterval <= 0 {
		e.periodicAt = time.Time{}
		return
	}

	e.periodic.Reset(e.periodicInterval)
	e.periodicAt = e.now().Add(e.periodicInterval)

	log.Debug().Dur("interval", e.periodicInterval).Msg("Periodic inform armed")
}

func (e *Engine) onPeriodic(ctx context.Context) {
	if !e.periodicEnabled {
		return
	}

	if e.periodicInterval > 0 {
		e.armPeriodic()
		e.store.AddEvent(event.Periodic, "")
	}

	e.runSession(ctx)
}

// ParameterWritten applies management server parameters that change the
// behaviour of the engine itself. It runs on the engine goroutine, between
// two messages of the same session.
func (e *Engine) ParameterWritten(name, value string) {
	switch name {
	case soap.ParamPeriodicInformEnable:
		if enabled, ok := parseEnable(value); ok {
			e.periodicEnabled = enabled
			e.armPeriodic()
		}
	case soap.ParamPeriodicInformInterval:
		if interval, ok := parseInterval(value); ok {
			e.periodicInterval = interval
			e.armPeriodic()
		}
	case soap.ParamURL, soap.ParamUsername, soap.ParamPassword,
		soap.ParamConnectionRequestUsername, soap.ParamConnectionRequestPassword:
		e.reloadRequired = true
	}
}

// Reload rebuilds the ACS transport if a write required it. The new
// transport is used from the next session on.
func (e *Engine) Reload(ctx context.Context) {
	if !e.reloadRequired || e.reload == nil {
		return
	}

	e.reloadRequired = false

	next, err := e.reload(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to reload ACS configuration, keeping the current one")
		return
	}

	if next.URL() != e.transport.URL() {
		log.Info().Str("acs", next.URL()).Msg("ACS URL changed")

		e.store.AddEvent(event.ValueChange, "")
		e.connReqPending.Store(true)
	}

	e.next = next
}

// Notify records a parameter change reported by the device. Changes of
// parameters without notification policy are dropped; active ones trigger
// a session right away.
func (e *Engine) Notify(ctx context.Context, parameter, value string) {
	policy, err := e.gateway.Get(ctx, "notification", parameter)
	if err != nil || policy == "" {
		log.Debug().Err(err).Str("parameter", parameter).Msg("Notification dropped")
		return
	}

	e.store.AddNotification(parameter, value)

	log.Debug().Str("parameter", parameter).Str("policy", policy).Msg("Notification queued")

	if strings.HasPrefix(policy, "2") {
		trigger(e.informC)
	}
}

// ConnectionRequest queues a connection request event and schedules a
// session after the debounce delay. Requests arriving during a session are
// served by another session right after it.
func (e *Engine) ConnectionRequest() {
	e.store.AddEvent(event.ConnectionRequest, "")
	e.connReqPending.Store(true)

	trigger(e.connReqC)
}

// InformNow queues code and starts a session as soon as the engine is idle.
func (e *Engine) InformNow(code event.Code) {
	e.store.AddEvent(code, "")

	trigger(e.informC)
}

func trigger(c chan struct{}) {
	select {
	case c <- struct{}{}:
	default:
	}
}
