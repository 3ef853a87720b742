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
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}

	return v
}

type statsReporter interface {
	Stats() (handled, faults, unsupported int64)
}

// WithMetrics exports session counters through meter.
func WithMetrics(meter metric.Meter) Option {
	return func(e *Engine) {
		succeeded := attribute.String("result", "succeeded")
		failed := attribute.String("result", "failed")

		must(meter.Int64ObservableCounter("cwmp.sessions",
			metric.WithUnit("{session}"),
			metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
				o.Observe(e.stats.succeeded.Load(), metric.WithAttributes(succeeded))
				o.Observe(e.stats.failed.Load(), metric.WithAttributes(failed))

				return nil
			})))

		must(meter.Int64ObservableCounter("cwmp.rpcs",
			metric.WithUnit("{call}"),
			metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
				o.Observe(e.stats.rpcs.Load())
				return nil
			})))

		must(meter.Int64ObservableGauge("cwmp.retry_count",
			metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
				o.Observe(e.stats.retryCount.Load())
				return nil
			})))

		must(meter.Int64ObservableCounter("cwmp.rpc.faults",
			metric.WithUnit("{fault}"),
			metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
				r, ok := e.dispatcher.(statsReporter)
				if !ok {
					return nil
				}

				_, faults, unsupported := r.Stats()
				o.Observe(faults, metric.WithAttributes(attribute.String("kind", "request")))
				o.Observe(unsupported, metric.WithAttributes(attribute.String("kind", "unsupported")))

				return nil
			})))
	}
}
