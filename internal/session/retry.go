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
	"time"

	backoff "github.com/cenkalti/backoff/v4"
)

const (
	retryStep      = 10 * time.Second
	retryThreshold = 100
	retryMax       = 20 * time.Minute
)

var _ backoff.BackOff = (*RetryPolicy)(nil)

// RetryDelay returns how long to wait before the n-th retry of a failed
// session: n times 10 seconds, or 20 minutes once n reaches 100.
func RetryDelay(n int) time.Duration {
	if n >= retryThreshold {
		return retryMax
	}

	return time.Duration(n) * retryStep
}

// RetryPolicy is a backoff.BackOff following RetryDelay.
type RetryPolicy struct {
	attempts int
}

// NextBackOff counts one more failed attempt and returns the delay before
// the next one.
func (p *RetryPolicy) NextBackOff() time.Duration {
	p.attempts++
	return RetryDelay(p.attempts)
}

// Reset forgets all failed attempts.
func (p *RetryPolicy) Reset() {
	p.attempts = 0
}
