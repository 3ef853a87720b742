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

package soap

const managementServer = "InternetGatewayDevice.ManagementServer."

// Parameters the CPE itself interprets.
const (
	ParamExternalIPAddress = "InternetGatewayDevice.WANDevice.1.WANConnectionDevice.1." +
		"WANIPConnection.1.ExternalIPAddress"

	ParamURL                       = managementServer + "URL"
	ParamUsername                  = managementServer + "Username"
	ParamPassword                  = managementServer + "Password"
	ParamPeriodicInformEnable      = managementServer + "PeriodicInformEnable"
	ParamPeriodicInformInterval    = managementServer + "PeriodicInformInterval"
	ParamConnectionRequestURL      = managementServer + "ConnectionRequestURL"
	ParamConnectionRequestUsername = managementServer + "ConnectionRequestUsername"
	ParamConnectionRequestPassword = managementServer + "ConnectionRequestPassword"
)
