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

package cli

import (
	"context"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"cwmpd.io/cwmpd/internal/daemon"
	"cwmpd.io/cwmpd/internal/notify"
	"cwmpd.io/cwmpd/internal/pathutil"
)

const sendTimeout = 5 * time.Second

// configFs is replaced in unit tests.
var configFs = afero.NewOsFs()

// socketPath resolves the notification socket of the running daemon: the
// flag value, the configured socket, or the default one.
func socketPath(flag string) string {
	if flag != "" {
		return flag
	}

	cfg, err := daemon.LoadConfig(configFs, pathutil.ConfigFile())
	if err != nil {
		return daemon.LocalConfig{}.NotifySocketPath()
	}

	return cfg.Local.NotifySocketPath()
}

func send(ctx context.Context, socket string, msg notify.Message) error {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	return notify.Send(ctx, socketPath(socket), msg)
}

func notifyCmd(ctx context.Context) *cobra.Command {
	var socket string

	cmd := &cobra.Command{
		Use:     "notify <parameter> <value>",
		Short:   "Report a parameter value change to the daemon.",
		Example: "cwmpd notify InternetGatewayDevice.LANDevice.1.WLANConfiguration.1.SSID home",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return send(ctx, socket, notify.Message{
				Method:    notify.MethodNotify,
				Parameter: args[0],
				Value:     args[1],
			})
		},
	}

	cmd.Flags().StringVar(&socket, "socket", "", "Notification socket of the daemon")

	return cmd
}

func informCmd(ctx context.Context) *cobra.Command {
	var (
		socket string
		code   string
	)

	cmd := &cobra.Command{
		Use:     "inform",
		Short:   "Ask the daemon to contact the ACS now.",
		Example: "cwmpd inform --event \"1 BOOT\"",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return send(ctx, socket, notify.Message{
				Method: notify.MethodInform,
				Event:  code,
			})
		},
	}

	cmd.Flags().StringVar(&socket, "socket", "", "Notification socket of the daemon")
	cmd.Flags().StringVarP(&code, "event", "e", "",
		"Event to report (default \"6 CONNECTION REQUEST\")")

	return cmd
}
