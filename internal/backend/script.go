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

package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	shellquote "github.com/kballard/go-shellquote"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

const (
	defaultShell         = "/bin/sh"
	defaultPendingScript = "/tmp/cwmpd_set_actions.sh"
	defaultTimeout       = 60 * time.Second
)

// ErrBackend is returned when the parameter script fails.
var ErrBackend = errors.New("backend failure")

type scriptProc interface {
	Run() error
}

type scriptProcFactory func(ctx context.Context, stdout, stderr *bytes.Buffer,
	name string, arg ...string) scriptProc

func execProc(ctx context.Context, stdout, stderr *bytes.Buffer,
	name string, arg ...string) scriptProc {
	cmd := exec.CommandContext(ctx, name, arg...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	return cmd
}

// ScriptGateway reads and writes device parameters by invoking an external
// shell script. Writes are batched into a generated script that is run once
// per RPC.
type ScriptGateway struct {
	fs          afero.Fs
	procFactory scriptProcFactory
	script      string
	pending     string
	shell       string
	timeout     time.Duration
	mu          sync.Mutex
}

type ScriptGatewayOption func(*ScriptGateway)

// WithPendingScript sets the location of the generated write script.
// (default: /tmp/cwmpd_set_actions.sh)
func WithPendingScript(path string) ScriptGatewayOption {
	return func(g *ScriptGateway) { g.pending = path }
}

// WithTimeout bounds every script invocation. (default: 60s)
func WithTimeout(d time.Duration) ScriptGatewayOption {
	return func(g *ScriptGateway) { g.timeout = d }
}

// WithFs allows setting custom afero.Fs for the pending write script.
func WithFs(fs afero.Fs) ScriptGatewayOption {
	return func(g *ScriptGateway) { g.fs = fs }
}

func NewScriptGateway(script string, options ...ScriptGatewayOption) *ScriptGateway {
	g := &ScriptGateway{
		fs:          afero.NewOsFs(),
		procFactory: execProc,
		script:      script,
		pending:     defaultPendingScript,
		shell:       defaultShell,
		timeout:     defaultTimeout,
	}

	for _, opt := range options {
		opt(g)
	}

	return g
}

func (g *ScriptGateway) run(ctx context.Context, args ...string) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer

	log.Debug().Strs("args", args).Msg("Running parameter script")

	if err := g.procFactory(ctx, &stdout, &stderr, g.shell, args...).Run(); err != nil {
		log.Error().Err(err).
			Strs("args", args).
			Str("stdout", stdout.String()).
			Str("stderr", stderr.String()).
			Msg("Parameter script failed")

		return "", fmt.Errorf("%w: %s: %w", ErrBackend, strings.Join(args, " "), err)
	}

	return stdout.String(), nil
}

// Get returns the first line the script prints for the requested action
// ("value", "notification", ...) on name. An empty string means no value.
func (g *ScriptGateway) Get(ctx context.Context, action, name string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	out, err := g.run(ctx, g.script, "--newline", "--value", "get", action, name)
	if err != nil {
		return "", err
	}

	line, _, _ := strings.Cut(out, "\n")

	return strings.TrimRight(line, "\r"), nil
}

// QueueWrite appends a write to the pending script. Nothing is applied until
// ExecuteWrites is called.
func (g *ScriptGateway) QueueWrite(_ context.Context, action, name, value string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	exists, err := afero.Exists(g.fs, g.pending)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBackend, err)
	}

	f, err := g.fs.OpenFile(g.pending, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o700)
	if err != nil {
		return fmt.Errorf("%w: opening %s: %w", ErrBackend, g.pending, err)
	}

	//nolint:errcheck // the error of Close is checked below
	defer f.Close()

	var buf strings.Builder

	if !exists {
		buf.WriteString("#!/bin/sh\n")

		if err := g.fs.Chmod(g.pending, 0o700); err != nil {
			return fmt.Errorf("%w: %w", ErrBackend, err)
		}
	}

	buf.WriteString(shellquote.Join(g.shell, g.script, "set", action, name, value))
	buf.WriteString("\n")

	if _, err := f.WriteString(buf.String()); err != nil {
		return fmt.Errorf("%w: writing %s: %w", ErrBackend, g.pending, err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrBackend, err)
	}

	return nil
}

// ExecuteWrites runs the pending script once and removes it.
func (g *ScriptGateway) ExecuteWrites(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	exists, err := afero.Exists(g.fs, g.pending)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBackend, err)
	}

	if !exists {
		return nil
	}

	_, runErr := g.run(ctx, g.pending)

	if err := g.fs.Remove(g.pending); err != nil {
		err = fmt.Errorf("%w: removing %s: %w", ErrBackend, g.pending, err)
		return errors.Join(runErr, err)
	}

	return runErr
}

// Discard drops queued writes without applying them.
func (g *ScriptGateway) Discard() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.fs.Remove(g.pending); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: %w", ErrBackend, err)
	}

	return nil
}

// RunSimpleAction invokes the script with a single argument such as
// "reboot" or "factory_reset".
func (g *ScriptGateway) RunSimpleAction(ctx context.Context, action string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	_, err := g.run(ctx, g.script, action)

	return err
}

// RunDownload asks the script to fetch and apply the file at url.
func (g *ScriptGateway) RunDownload(ctx context.Context, url, size string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	_, err := g.run(ctx, g.script, "download", "--url", url, "--size", size)

	return err
}
