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

	"github.com/spf13/cobra"
)

// ServeFunc runs the daemon until ctx is cancelled.
type ServeFunc func(ctx context.Context, foreground bool) error

func RootCmd(ctx context.Context, serve ServeFunc) *cobra.Command {
	var foreground bool

	cmd := &cobra.Command{
		Use:   "cwmpd",
		Short: "cwmpd - TR-069 client for managed devices",
		Long: "cwmpd keeps the device in touch with its auto-configuration server:\n" +
			"it informs the ACS about events, serves its RPCs and accepts its\n" +
			"connection requests.",
		// Silence because we want to use our logger instead
		SilenceErrors:     true,
		SilenceUsage:      true,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		Args:              cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), foreground)
		},
	}

	cmd.SetContext(ctx)
	cmd.PersistentFlags().BoolP("help", "h", false,
		"Help information about a command")
	cmd.Flags().BoolVarP(&foreground, "foreground", "f", false,
		"Run in the foreground and log to stderr")

	cmd.AddCommand(notifyCmd(ctx))
	cmd.AddCommand(informCmd(ctx))

	return cmd
}

// HelpRequested reports whether the executed command only printed help.
func HelpRequested(cmd *cobra.Command) bool {
	if cmd == nil {
		return false
	}

	f := cmd.Flags().Lookup("help")

	return f != nil && f.Changed
}
