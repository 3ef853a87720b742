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

package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"github.com/vishvananda/netlink"
)

const sourceWaitLimit = 2 * time.Minute

// ErrSourceUnavailable is returned when the local source interface has no
// usable address.
var ErrSourceUnavailable = errors.New("local source address unavailable")

var (
	// lookupAddrs returns the addresses assigned to an interface. It is
	// replaced in unit tests.
	lookupAddrs = linkAddrs
	// sourceBackOff is the schedule used while waiting for the source
	// interface to come up.
	sourceBackOff = func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = time.Second
		b.MaxInterval = 15 * time.Second
		b.MaxElapsedTime = sourceWaitLimit

		return b
	}
)

func linkAddrs(name string) ([]net.IP, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return nil, err
	}

	addrs, err := netlink.AddrList(link, netlink.FAMILY_ALL)
	if err != nil {
		return nil, err
	}

	res := make([]net.IP, 0, len(addrs))
	for _, addr := range addrs {
		res = append(res, addr.IP)
	}

	return res, nil
}

// pickAddr prefers a global IPv4 address over a global IPv6 one.
func pickAddr(addrs []net.IP) net.IP {
	var v6 net.IP

	for _, ip := range addrs {
		if !ip.IsGlobalUnicast() {
			continue
		}

		if ip.To4() != nil {
			return ip
		}

		if v6 == nil {
			v6 = ip
		}
	}

	return v6
}

// ResolveSource returns the address connection requests are accepted on.
// source is either an IP address or an interface name. With wait, a
// missing interface or address is retried until it shows up or ctx ends.
func ResolveSource(ctx context.Context, source string, wait bool) (net.IP, error) {
	if ip := net.ParseIP(source); ip != nil {
		return ip, nil
	}

	resolve := func() (net.IP, error) {
		addrs, err := lookupAddrs(source)
		if err != nil {
			return nil, fmt.Errorf("%w: interface %s: %w", ErrSourceUnavailable, source, err)
		}

		ip := pickAddr(addrs)
		if ip == nil {
			return nil, fmt.Errorf("%w: interface %s has no global address",
				ErrSourceUnavailable, source)
		}

		return ip, nil
	}

	if !wait {
		return resolve()
	}

	var ip net.IP

	err := backoff.RetryNotify(func() error {
		var err error

		ip, err = resolve()

		return err
	}, backoff.WithContext(sourceBackOff(), ctx), func(err error, d time.Duration) {
		log.Info().Err(err).Dur("delay", d).Msg("Waiting for local source")
	})
	if err != nil {
		return nil, err
	}

	return ip, nil
}
