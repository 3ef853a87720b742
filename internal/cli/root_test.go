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
	"bytes"
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cwmpd.io/cwmpd/internal/event"
	"cwmpd.io/cwmpd/internal/notify"
)

func TestRootCmd(t *testing.T) {
	testcases := map[string]struct {
		args       []string
		served     bool
		foreground bool
		help       bool
		err        bool
	}{
		"daemon": {
			served: true,
		},
		"foreground": {
			args:       []string{"-f"},
			served:     true,
			foreground: true,
		},
		"long foreground": {
			args:       []string{"--foreground"},
			served:     true,
			foreground: true,
		},
		"help": {
			args: []string{"-h"},
			help: true,
		},
		"unknown flag": {
			args: []string{"-x"},
			err:  true,
		},
		"unexpected argument": {
			args: []string{"start"},
			err:  true,
		},
	}

	for name, tc := range testcases {
		t.Run(name, func(t *testing.T) {
			var (
				served     bool
				foreground bool
			)

			cmd := RootCmd(context.Background(), func(_ context.Context, fg bool) error {
				served = true
				foreground = fg

				return nil
			})

			var out bytes.Buffer

			cmd.SetOut(&out)
			cmd.SetErr(&out)
			cmd.SetArgs(tc.args)

			c, err := cmd.ExecuteC()
			if tc.err {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.served, served)
			assert.Equal(t, tc.foreground, foreground)
			assert.Equal(t, tc.help, HelpRequested(c))

			if tc.help {
				assert.Contains(t, out.String(), "--foreground")
			}
		})
	}
}

type fakeReceiver struct {
	mu            sync.Mutex
	notifications []string
	informs       []event.Code
}

func (r *fakeReceiver) Notify(_ context.Context, parameter, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.notifications = append(r.notifications, parameter+"="+value)
}

func (r *fakeReceiver) InformNow(code event.Code) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.informs = append(r.informs, code)
}

func (r *fakeReceiver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.notifications) + len(r.informs)
}

func TestClientCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notify.sock")
	receiver := &fakeReceiver{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- notify.NewListener(receiver).ListenAndServe(ctx, path)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
	})

	run := func(args ...string) error {
		cmd := RootCmd(ctx, func(context.Context, bool) error { return nil })
		cmd.SetArgs(args)

		return cmd.Execute()
	}

	require.Eventually(t, func() bool {
		return run("notify", "--socket", path, "Device.SSID", "home") == nil
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, run("inform", "--socket", path, "--event", "1 BOOT"))
	require.NoError(t, run("inform", "--socket", path))

	assert.Error(t, run("notify", "--socket", path, "Device.SSID"))
	assert.Error(t, run("inform", "--socket", path, "--event", "99 NOPE"))

	require.Eventually(t, func() bool {
		return receiver.count() == 3
	}, 5*time.Second, 10*time.Millisecond)

	receiver.mu.Lock()
	defer receiver.mu.Unlock()

	assert.Equal(t, []string{"Device.SSID=home"}, receiver.notifications)
	assert.ElementsMatch(t, []event.Code{event.Boot, event.ConnectionRequest}, receiver.informs)
}

func TestSocketPath(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/cwmpd/cwmpd.yaml", []byte(`local:
  notify_socket: /var/run/custom.sock
acs:
  hostname: acs
device:
  oui: "001122"
  serial_number: S1
`), 0o640))

	defaultFs := configFs
	configFs = fs

	t.Cleanup(func() { configFs = defaultFs })

	t.Setenv("CWMPD_RUN_DIR", "/tmp/run")
	t.Setenv("CWMPD_PREFIX", "")

	t.Run("flag", func(t *testing.T) {
		assert.Equal(t, "/x.sock", socketPath("/x.sock"))
	})

	t.Run("configured", func(t *testing.T) {
		t.Setenv("CWMPD_CONFIG", "/etc/cwmpd/cwmpd.yaml")
		assert.Equal(t, "/var/run/custom.sock", socketPath(""))
	})

	t.Run("no config", func(t *testing.T) {
		t.Setenv("CWMPD_CONFIG", "/missing.yaml")
		assert.Equal(t, "/tmp/run/notify.sock", socketPath(""))
	})
}
