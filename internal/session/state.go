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

import "fmt"

// State is a step of the CWMP session state machine.
type State int32

const (
	StateIdle State = iota
	StateBuildingInform
	StateAwaitingInformResponse
	StateRPCLoop
	StateSessionDone
	StateRetryScheduled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateBuildingInform:
		return "BUILDING_INFORM"
	case StateAwaitingInformResponse:
		return "AWAITING_INFORM_RESPONSE"
	case StateRPCLoop:
		return "RPC_LOOP"
	case StateSessionDone:
		return "SESSION_DONE"
	case StateRetryScheduled:
		return "RETRY_SCHEDULED"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}
