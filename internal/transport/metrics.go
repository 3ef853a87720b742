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

package transport

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

// WithServerMetrics exports connection request counters.
func WithServerMetrics(meter metric.Meter) ServerOption {
	return func(s *ConnectionRequestServer) {
		accepted := attribute.String("result", "accepted")
		rejected := attribute.String("result", "rejected")

		must(meter.Int64ObservableCounter("cwmp.connection_requests",
			metric.WithUnit("{count}"),
			metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
				o.Observe(s.stats.accepted.Load(), metric.WithAttributes(accepted))
				o.Observe(s.stats.rejected.Load(), metric.WithAttributes(rejected))

				return nil
			})))
	}
}
