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
	"fmt"
	"strings"
)

// Code is a CWMP event code as reported in the Inform EventStruct.
type Code int

const (
	Bootstrap Code = iota
	Boot
	Periodic
	Scheduled
	ValueChange
	Kicked
	ConnectionRequest
	TransferComplete
	DiagnosticsComplete
	RequestDownload
	AutonomousTransferComplete
)

var codeNames = [...]string{
	Bootstrap:                  "BOOTSTRAP",
	Boot:                       "BOOT",
	Periodic:                   "PERIODIC",
	Scheduled:                  "SCHEDULED",
	ValueChange:                "VALUE CHANGE",
	Kicked:                     "KICKED",
	ConnectionRequest:          "CONNECTION REQUEST",
	TransferComplete:           "TRANSFER COMPLETE",
	DiagnosticsComplete:        "DIAGNOSTICS COMPLETE",
	RequestDownload:            "REQUEST DOWNLOAD",
	AutonomousTransferComplete: "AUTONOMOUS TRANSFER COMPLETE",
}

// String returns the wire form of the code, e.g. "4 VALUE CHANGE".
func (c Code) String() string {
	if !c.Valid() {
		return fmt.Sprintf("%d UNKNOWN", int(c))
	}

	return fmt.Sprintf("%d %s", int(c), codeNames[c])
}

// Valid reports whether c is one of the defined event codes.
func (c Code) Valid() bool {
	return c >= Bootstrap && int(c) < len(codeNames)
}

// priority orders codes when picking the active one.
func (c Code) priority() int {
	switch c {
	case ConnectionRequest:
		return 4
	case ValueChange:
		return 3
	case Kicked, TransferComplete, DiagnosticsComplete, RequestDownload,
		AutonomousTransferComplete:
		return 2
	case Periodic, Scheduled:
		return 1
	default:
		return 0
	}
}

// ParseCode accepts either the wire form ("0 BOOTSTRAP") or a bare name in
// any case, with underscores or spaces ("bootstrap", "value_change").
func ParseCode(s string) (Code, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	name = strings.ReplaceAll(name, "_", " ")

	for i, n := range codeNames {
		if name == n || name == fmt.Sprintf("%d %s", i, n) {
			return Code(i), nil
		}
	}

	return 0, fmt.Errorf("unknown event code %q", s)
}
