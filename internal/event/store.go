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

package event

import (
	"sync"
)

// Event is a queued reason to contact the ACS.
type Event struct {
	Code Code
	// Key is the CommandKey reported alongside the code.
	Key string
	seq uint64
}

// Notification is a parameter value change waiting to be reported.
type Notification struct {
	Parameter string
	Value     string
	rev       uint64
}

// Snapshot is a consistent view of the store taken when an Inform is built.
// It is handed back to Acknowledge once the ACS accepted that Inform.
type Snapshot struct {
	Events        []Event
	Notifications []Notification
	Active        Code
	HasActive     bool
}

// Store accumulates events and notifications between sessions.
// Events are coalesced by code and notifications are upserted by parameter,
// both keeping insertion order.
type Store struct {
	events        []Event
	notifications []Notification
	index         map[string]int
	seq           uint64
	mu            sync.Mutex
}

// NewStore returns a Store seeded with the given start-up events.
func NewStore(initial ...Code) *Store {
	s := &Store{
		index: make(map[string]int),
	}

	for _, code := range initial {
		s.AddEvent(code, "")
	}

	return s
}

// AddEvent queues code unless an event with the same code is already queued,
// in which case the queued event keeps its key and position but counts as
// raised again. It reports whether the event was inserted.
func (s *Store) AddEvent(code Code, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.addEvent(code, key)
}

func (s *Store) addEvent(code Code, key string) bool {
	s.seq++

	for i := range s.events {
		if s.events[i].Code == code {
			s.events[i].seq = s.seq
			return false
		}
	}

	s.events = append(s.events, Event{Code: code, Key: key, seq: s.seq})

	return true
}

// AddNotification records a value change for parameter, replacing any value
// still pending for it, and queues a VALUE CHANGE event.
func (s *Store) AddNotification(parameter, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++

	if i, ok := s.index[parameter]; ok {
		s.notifications[i].Value = value
		s.notifications[i].rev = s.seq
	} else {
		s.index[parameter] = len(s.notifications)
		s.notifications = append(s.notifications,
			Notification{Parameter: parameter, Value: value, rev: s.seq})
	}

	s.addEvent(ValueChange, "")
}

// Active returns the highest priority queued event code. When several codes
// share a priority the most recently queued one wins.
func (s *Store) Active() (Code, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.active()
}

func (s *Store) active() (Code, bool) {
	if len(s.events) == 0 {
		return 0, false
	}

	best := s.events[0]

	for _, e := range s.events[1:] {
		if e.Code.priority() >= best.Code.priority() {
			best = e
		}
	}

	return best.Code, true
}

// Events returns a copy of the queued events in insertion order.
func (s *Store) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]Event(nil), s.events...)
}

// Notifications returns a copy of the pending notifications in insertion order.
func (s *Store) Notifications() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]Notification(nil), s.notifications...)
}

// Snapshot captures everything that the next Inform has to report.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	active, ok := s.active()

	return Snapshot{
		Events:        append([]Event(nil), s.events...),
		Notifications: append([]Notification(nil), s.notifications...),
		Active:        active,
		HasActive:     ok,
	}
}

// Acknowledge removes the events and notifications reported by snap.
// Anything queued after the snapshot was taken, including a newer value of
// an already reported parameter or a reported event raised again, stays for
// the next Inform.
func (s *Store) Acknowledge(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reported := make(map[uint64]struct{}, len(snap.Events))
	for _, e := range snap.Events {
		reported[e.seq] = struct{}{}
	}

	events := s.events[:0]

	for _, e := range s.events {
		if _, ok := reported[e.seq]; !ok {
			events = append(events, e)
		}
	}

	s.events = events

	delivered := make(map[string]uint64, len(snap.Notifications))
	for _, n := range snap.Notifications {
		delivered[n.Parameter] = n.rev
	}

	notifications := s.notifications[:0]

	for _, n := range s.notifications {
		if rev, ok := delivered[n.Parameter]; ok && rev == n.rev {
			continue
		}

		notifications = append(notifications, n)
	}

	s.notifications = notifications

	clear(s.index)

	for i, n := range s.notifications {
		s.index[n.Parameter] = i
	}

	// Notifications that arrived after the snapshot were coalesced into the
	// VALUE CHANGE event that has just been delivered.
	if len(s.notifications) > 0 {
		s.addEvent(ValueChange, "")
	}
}
