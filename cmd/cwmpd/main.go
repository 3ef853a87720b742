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

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"cwmpd.io/cwmpd/internal/backend"
	"cwmpd.io/cwmpd/internal/cli"
	"cwmpd.io/cwmpd/internal/daemon"
	"cwmpd.io/cwmpd/internal/event"
	"cwmpd.io/cwmpd/internal/logger"
	"cwmpd.io/cwmpd/internal/notify"
	"cwmpd.io/cwmpd/internal/pathutil"
	"cwmpd.io/cwmpd/internal/session"
	"cwmpd.io/cwmpd/internal/soap"
	"cwmpd.io/cwmpd/internal/transport"
)

const (
	serviceName = "cwmpd"
	// detachedEnv marks the re-executed background process.
	detachedEnv = "CWMPD_DETACHED"
)

// version is set at build time.
var version = "dev"

func getOrCreateDir(path string) (string, error) {
	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		err = os.MkdirAll(path, os.ModeDir|0755)
	}

	if err != nil {
		return path, fmt.Errorf("failed getting dir %q: %w", path, err)
	}

	return path, nil
}

func serviceResource() (*resource.Resource, error) {
	return resource.Merge(resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
}

func setupMetrics(mux *http.ServeMux) (metric.MeterProvider, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, err
	}

	r, err := serviceResource()
	if err != nil {
		return nil, err
	}

	mux.Handle("/metrics", promhttp.Handler())

	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(r),
		sdkmetric.WithReader(exporter),
	), nil
}

func setupProfiling(mux *http.ServeMux) {
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
}

func setupTracer(ctx context.Context, endpoint string) (*sdktrace.TracerProvider, error) {
	traceExporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint), otlptracehttp.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	r, err := serviceResource()
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(r),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(traceExporter)),
	)

	// Set global propagator to tracecontext (the default is no-op).
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp, nil
}

// serveHTTP exposes metrics and profiling on a unix socket in runDir.
func serveHTTP(ctx context.Context, runDir string, mux *http.ServeMux) error {
	socketPath := filepath.Join(runDir, "cwmpd-http.sock")

	if err := syscall.Unlink(socketPath); err != nil {
		if !os.IsNotExist(err) {
			return err
		}
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return err
	}

	//nolint:gosec // we know what we are doing here and we need 0660
	if err := os.Chmod(socketPath, 0660); err != nil {
		return err
	}

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		//nolint:errcheck // shutting down
		server.Close()
	}()

	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// detach re-executes the binary in a new session, without a terminal.
func detach() error {
	self, err := os.Executable()
	if err != nil {
		return err
	}

	//nolint:gosec // re-executing ourselves
	cmd := exec.Command(self, os.Args[1:]...)
	cmd.Env = append(os.Environ(), detachedEnv+"=1")
	cmd.Dir = "/"
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to detach: %w", err)
	}

	return cmd.Process.Release()
}

func connectionRequestCredentials(reader parameterReader) transport.CredentialsFunc {
	return func(ctx context.Context) (string, string, error) {
		username, err := reader.Get(ctx, "value", soap.ParamConnectionRequestUsername)
		if err != nil {
			return "", "", err
		}

		password, err := reader.Get(ctx, "value", soap.ParamConnectionRequestPassword)
		if err != nil {
			return "", "", err
		}

		return username, password, nil
	}
}

func serve(ctx context.Context, foreground bool) error {
	detached := os.Getenv(detachedEnv) == "1"

	if !foreground && !detached {
		return detach()
	}

	fs := afero.NewOsFs()
	file := pathutil.ConfigFile()

	cfg, err := daemon.LoadConfig(fs, file)
	if err != nil {
		return err
	}

	logger.Setup(string(cfg.LogLevel), !foreground)

	runDir, err := getOrCreateDir(pathutil.RunDir())
	if err != nil {
		return err
	}

	mux := http.NewServeMux()

	var meterProvider metric.MeterProvider = metricnoop.NewMeterProvider()

	if cfg.Observability.Metrics.Enabled {
		if meterProvider, err = setupMetrics(mux); err != nil {
			return fmt.Errorf("failed to setup metrics: %w", err)
		}
	}

	if cfg.Observability.Profiling.Enabled {
		setupProfiling(mux)
	}

	var tracerProvider trace.TracerProvider = tracenoop.NewTracerProvider()

	if cfg.Observability.Tracing.Enabled {
		tp, err := setupTracer(ctx, cfg.Observability.Tracing.OTLPHTTPEndpoint)
		if err != nil {
			return err
		}

		defer func() {
			//nolint:errcheck // best effort flush on exit
			tp.Shutdown(context.Background())
		}()

		tracerProvider = tp
	}

	startEvent, err := cfg.Local.StartEvent()
	if err != nil {
		return err
	}

	gateway := backend.NewScriptGateway(cfg.Backend.Script,
		backend.WithFs(fs),
		backend.WithPendingScript(cfg.Backend.PendingScript),
		backend.WithTimeout(cfg.Backend.Timeout),
	)

	// Writes left behind by a previous run are never replayed.
	if err := gateway.Discard(); err != nil {
		log.Warn().Err(err).Msg("Failed to discard pending writes")
	}

	loader := &acsLoader{fs: fs, reader: gateway, file: file, current: cfg.ACS}

	acs, err := loader.Load(ctx)
	if err != nil {
		return err
	}

	meter := meterProvider.Meter(serviceName)

	engine := session.NewEngine(event.NewStore(startEvent), gateway, acs, cfg.Device.Device(),
		session.WithReloader(loader.Load),
		session.WithTracer(tracerProvider.Tracer(serviceName)),
		session.WithMetrics(meter),
	)

	source, err := daemon.ResolveSource(ctx, cfg.Local.Source, cfg.Local.WaitSource)
	if err != nil {
		return err
	}

	crServer := transport.NewConnectionRequestServer(
		connectionRequestCredentials(gateway),
		engine.ConnectionRequest,
		transport.WithServerMetrics(meter),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return engine.Run(ctx) })
	g.Go(func() error {
		return crServer.ListenAndServe(ctx,
			net.JoinHostPort(source.String(), strconv.Itoa(cfg.Local.Port)))
	})
	g.Go(func() error {
		return notify.NewListener(engine).ListenAndServe(ctx, cfg.Local.NotifySocketPath())
	})

	if cfg.Observability.Metrics.Enabled || cfg.Observability.Profiling.Enabled {
		g.Go(func() error { return serveHTTP(ctx, runDir, mux) })
	}

	log.Info().Str("acs", acs.URL()).Stringer("event", startEvent).Msg("Service cwmpd started")

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Service failure")
		return err
	}

	log.Info().Msg("Service cwmpd stopped")

	return nil
}

func Run() int {
	unix.Umask(0o037)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 2)

	signal.Notify(sigs, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigs)

	go func() {
		select {
		case <-sigs:
			cancel()
		case <-ctx.Done():
		}
	}()

	cmd := cli.RootCmd(ctx, serve)

	c, err := cmd.ExecuteC()
	if err != nil {
		fmt.Fprintf(os.Stderr, "cwmpd: %s\n", err)
		return 1
	}

	if cli.HelpRequested(c) {
		return 1
	}

	return 0
}

func main() {
	os.Exit(Run())
}
